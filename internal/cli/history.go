package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"othello-relay/internal/storage"
)

// HistoryOptions are the flags of the history command.
type HistoryOptions struct {
	Path  string
	Limit int
	Since int64
	JSON  bool
}

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print journaled engine events",
		Long: `Print events recorded by the relay's event journal, oldest first.
The journal must be enabled (journal.enabled) for the relay to record events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Path == "" {
				cliCtx := GetCLIContext(cmd)
				if cliCtx == nil {
					return fmt.Errorf("CLI context not initialized")
				}
				opts.Path = cliCtx.Config.Journal.Path
			}
			return RunHistory(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Path, "path", "", "journal database (default from config)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of events to print")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "print events after this sequence number")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "output as JSON")

	return cmd
}

// RunHistory prints journal records from the database at opts.Path.
func RunHistory(out io.Writer, opts *HistoryOptions) error {
	if opts.Limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	db, err := storage.Open(opts.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	var records []storage.EventRecord
	if opts.Since > 0 {
		records, err = db.EventsSince(opts.Since, opts.Limit)
	} else {
		records, err = db.RecentEvents(opts.Limit)
	}
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	if opts.JSON {
		if records == nil {
			records = []storage.EventRecord{}
		}
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No events recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tTYPE\tEVENT")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Seq, r.CreatedAt.Local().Format(time.DateTime), r.Type, r.Data)
	}
	return tw.Flush()
}
