package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their status and sample counts.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		experiments, err := s.ListExperiments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(experiments) == 0 {
			fmt.Println("No experiments yet.")
			fmt.Println()
			fmt.Println("Create one with: contentmill create <name> --variants \"A,B\"")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tVARIANTS\tSAMPLES\tCREATED")

		for _, exp := range experiments {
			aggregates, err := s.VariantAggregates(ctx, exp.ID)
			if err != nil {
				return fmt.Errorf("failed to get samples for experiment %s: %w", exp.ID, err)
			}

			totalSamples := 0
			for _, agg := range aggregates {
				totalSamples += agg.SampleCount
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				exp.ID,
				exp.Name,
				strings.ToUpper(string(exp.Status)),
				len(exp.Variants),
				totalSamples,
				exp.CreatedAt.Format("2006-01-02"),
			)
		}

		w.Flush()
		return nil
	})
}
