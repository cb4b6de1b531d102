package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/experiment"
	"github.com/contentmill/contentmill/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results <experiment-id>",
	Short: "Show detailed results for an experiment",
	Long: `Show per-variant statistics and the two-variant significance
comparison. For completed or stopped experiments this prints the
frozen analysis snapshot taken when the experiment ended.`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withController(func(_ *store.SQLiteStore, ctrl *experiment.Controller) error {
		ctx := context.Background()

		exp, err := ctrl.Get(ctx, args[0])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", args[0])
			}
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		result, err := ctrl.Analyze(ctx, exp.ID)
		if err != nil {
			return fmt.Errorf("failed to analyze experiment: %w", err)
		}

		fmt.Printf("EXPERIMENT: %s\n", exp.Name)
		fmt.Printf("STATUS: %s\n", strings.ToUpper(string(exp.Status)))
		if len(exp.SuccessMetrics) > 0 {
			fmt.Printf("METRICS: %s\n", strings.Join(exp.SuccessMetrics, ", "))
		}
		fmt.Printf("CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
		if exp.WinnerVariantID != nil {
			fmt.Printf("WINNER: %s\n", *exp.WinnerVariantID)
		}
		fmt.Println()

		fmt.Println("VARIANT           SAMPLES  QUALITY  ENGAGEMENT  CONV     95% CI")
		fmt.Println(strings.Repeat("─", 72))

		for _, v := range result.Variants {
			indicator := ""
			if exp.WinnerVariantID != nil && v.VariantID == *exp.WinnerVariantID {
				indicator = " ← WINNER"
			}

			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.ConversionLower*100, v.ConversionUpper*100)
			if v.SampleCount == 0 {
				ciStr = "N/A"
			}

			name := v.Name
			if len(name) > 16 {
				name = name[:13] + "..."
			}

			fmt.Printf("%-16s  %-7d  %-7.2f  %-10.2f  %-7s  %s%s\n",
				name,
				v.SampleCount,
				v.QualityMean,
				v.EngagementMean,
				formatPercent(v.ConversionRate),
				ciStr,
				indicator,
			)
		}

		fmt.Println()

		if result.ComparedA != "" && result.ComparedB != "" {
			fmt.Printf("Comparison (%s vs %s): t=%.3f, p≈%.2f\n",
				result.ComparedA, result.ComparedB, result.TStatistic, result.PValue)
		}
		if result.IsSignificant {
			fmt.Printf("Statistical significance: significant at the %.0f%% confidence level\n",
				exp.ConfidenceLevel*100)
		} else if result.Note != "" {
			fmt.Printf("Statistical significance: %s\n", result.Note)
		} else {
			fmt.Println("Statistical significance: not significant")
		}

		return nil
	})
}
