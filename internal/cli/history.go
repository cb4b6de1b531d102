package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history <content-id>",
	Short: "Show the audit trail for a piece of content",
	Long: `Show the append-only audit trail for a piece of content: every
create, restore, branch and archive event, newest first.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		events, err := s.GetHistory(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}

		if len(events) == 0 {
			fmt.Printf("No history for content '%s'.\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tACTION\tVERSION\tDETAILS")
		for _, e := range events {
			details := e.Details
			if details == "" {
				details = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.CreatedAt.Format("2006-01-02 15:04"),
				e.Action,
				e.VersionID,
				details,
			)
		}
		w.Flush()
		return nil
	})
}
