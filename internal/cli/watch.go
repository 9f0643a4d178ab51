package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"othello-relay/internal/session"
	"othello-relay/internal/viewer"
)

const clearScreen = "\x1b[H\x1b[2J"

// WatchOptions are the flags of the watch command.
type WatchOptions struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ChatLines         int
}

// NewWatchCmd creates the watch command, a read-only terminal viewer.
func NewWatchCmd() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a relay as a read-only viewer",
		Long: `Connect to a relay as a viewer and redraw the board, banner and chat
whenever the session changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.URL == "" {
				cliCtx := GetCLIContext(cmd)
				if cliCtx == nil {
					return fmt.Errorf("CLI context not initialized")
				}
				opts.URL = fmt.Sprintf("ws://%s/ws", cliCtx.Config.Gateway.Addr())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return RunWatch(ctx, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "relay WebSocket URL (default from config)")
	cmd.Flags().IntVar(&opts.ReconnectAttempts, "reconnect", 3, "reconnect attempts after the link drops (0 disables)")
	cmd.Flags().DurationVar(&opts.ReconnectDelay, "reconnect-delay", 2*time.Second, "delay between reconnect attempts")
	cmd.Flags().IntVar(&opts.ChatLines, "chat-lines", 5, "chat entries to show")

	return cmd
}

// RunWatch renders every snapshot to out until ctx is done or the relay is
// gone for good.
func RunWatch(ctx context.Context, out io.Writer, opts *WatchOptions) error {
	// Redraw in place on a terminal; append frames otherwise.
	sep := "\n"
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		sep = clearScreen
	}

	m := session.NewMachine(nil)
	cancel := m.OnChange(func(s session.Snapshot) {
		_, _ = io.WriteString(out, sep)
		_ = viewer.Render(out, s, opts.ChatLines)
	})
	defer cancel()

	c := viewer.New(m, viewer.Options{
		URL:               opts.URL,
		ReconnectAttempts: opts.ReconnectAttempts,
		ReconnectDelay:    opts.ReconnectDelay,
	})

	err := c.Run(ctx)
	if errors.Is(err, viewer.ErrReconnectFailed) {
		return fmt.Errorf("relay at %s unreachable: %w", opts.URL, err)
	}
	return err
}
