package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/experiment"
	"github.com/contentmill/contentmill/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		variants   string
		split      string
		metrics    string
		mods       []string
		confidence float64
		duration   int
		minSamples int
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create a new experiment with the specified name and variants.

Variant modifications are key=value generation overrides, prefixed
with the variant name.

Examples:
  contentmill create hero --variants "formal,casual"
  contentmill create hero --variants "A,B" --split "70,30"
  contentmill create tone-test --variants "A,B" \
    --mod "A:tone=formal" --mod "B:tone=casual"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			variantNames := splitList(variants)
			if len(variantNames) < 2 {
				return fmt.Errorf("need at least 2 variants. Example: --variants \"A,B\"")
			}

			modsByVariant, err := parseVariantMods(mods, variantNames)
			if err != nil {
				return err
			}

			variantList := make([]store.Variant, len(variantNames))
			for i, vn := range variantNames {
				variantList[i] = store.Variant{Name: vn, Modifications: modsByVariant[vn]}
			}

			trafficSplit, err := parseSplit(split)
			if err != nil {
				return err
			}

			return withController(func(_ *store.SQLiteStore, ctrl *experiment.Controller) error {
				exp, err := ctrl.Create(context.Background(), experiment.Config{
					Name:            name,
					Variants:        variantList,
					TrafficSplit:    trafficSplit,
					SuccessMetrics:  splitList(metrics),
					ConfidenceLevel: confidence,
					MinSampleSize:   minSamples,
					DurationDays:    duration,
				})
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment '%s' (%s) with %d variants:\n", exp.Name, exp.ID, len(exp.Variants))
				for i, v := range exp.Variants {
					fmt.Printf("  %s: %s (%.1f%%)\n", v.ID, v.Name, exp.TrafficSplit[i])
				}
				fmt.Println("\nStart it with: contentmill start", exp.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated variant names (required)")
	cmd.Flags().StringVar(&split, "split", "", "comma-separated traffic percentages (default: even)")
	cmd.Flags().StringVar(&metrics, "metrics", "", "comma-separated success metrics (default: quality_score,engagement_score)")
	cmd.Flags().StringArrayVar(&mods, "mod", nil, "variant modification as 'variant:key=value' (repeatable)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "confidence level (default 0.95)")
	cmd.Flags().IntVar(&duration, "duration", 0, "experiment duration in days (default 14)")
	cmd.Flags().IntVar(&minSamples, "min-samples", 0, "minimum sample size (default 100)")
	cmd.MarkFlagRequired("variants")

	return cmd
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseSplit(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := splitList(s)
	weights := make([]float64, len(parts))
	for i, p := range parts {
		w, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid traffic split weight %q", p)
		}
		weights[i] = w
	}
	return weights, nil
}

// parseVariantMods decodes repeated "variant:key=value" flags.
func parseVariantMods(mods, variantNames []string) (map[string]map[string]any, error) {
	if len(mods) == 0 {
		return nil, nil
	}

	known := make(map[string]bool, len(variantNames))
	for _, n := range variantNames {
		known[n] = true
	}

	out := make(map[string]map[string]any)
	for _, mod := range mods {
		variant, pair, found := strings.Cut(mod, ":")
		if !found || !known[variant] {
			return nil, fmt.Errorf("invalid --mod %q: expected 'variant:key=value' with a known variant", mod)
		}
		kv, err := parseKeyValues([]string{pair})
		if err != nil {
			return nil, err
		}
		if out[variant] == nil {
			out[variant] = make(map[string]any)
		}
		for k, v := range kv {
			out[variant][k] = v
		}
	}
	return out, nil
}
