package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/diff"
	"github.com/contentmill/contentmill/internal/store"
)

var compareCmd = &cobra.Command{
	Use:   "compare <version-a> <version-b>",
	Short: "Compare two versions",
	Long: `Compare two versions of content: hash equality, quality metric
deltas (B minus A), and a field-level diff of the artifacts.`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		a, err := s.GetVersion(ctx, args[0])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("version '%s' not found", args[0])
			}
			return fmt.Errorf("failed to get version: %w", err)
		}
		b, err := s.GetVersion(ctx, args[1])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("version '%s' not found", args[1])
			}
			return fmt.Errorf("failed to get version: %w", err)
		}

		comparison := diff.Compare(a, b)

		fmt.Printf("A: %s (v%d on %s)\n", a.ID, a.VersionNumber, a.BranchName)
		fmt.Printf("B: %s (v%d on %s)\n", b.ID, b.VersionNumber, b.BranchName)
		if comparison.HashesEqual {
			fmt.Println("Content is identical.")
			return nil
		}
		fmt.Println()

		if len(comparison.MetricDeltas) > 0 {
			fmt.Println("Metric deltas (B - A):")
			names := make([]string, 0, len(comparison.MetricDeltas))
			for name := range comparison.MetricDeltas {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %-20s %+.3f\n", name, comparison.MetricDeltas[name])
			}
			fmt.Println()
		}

		if len(comparison.FieldDiff) == 0 {
			fmt.Println("No field-level differences.")
			return nil
		}

		fmt.Println("Field changes:")
		for _, change := range comparison.FieldDiff {
			switch change.Change {
			case diff.FieldAdded:
				fmt.Printf("  + %s: %v\n", change.Field, change.To)
			case diff.FieldRemoved:
				fmt.Printf("  - %s: %v\n", change.Field, change.From)
			default:
				fmt.Printf("  ~ %s: %v -> %v\n", change.Field, change.From, change.To)
			}
		}
		return nil
	})
}
