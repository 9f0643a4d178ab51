package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"othello-relay/internal/config"
)

// InitOptions are the flags of the init command.
type InitOptions struct {
	Force bool
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigPath
			if path == "" {
				var err error
				if path, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}
			if err := RunInit(path, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

// RunInit writes the default configuration to path.
func RunInit(path string, opts *InitOptions) error {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil && !opts.Force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", expanded)
	}
	if err := config.SaveTo(config.Default(), expanded); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
