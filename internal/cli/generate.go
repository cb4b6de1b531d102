package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/engine"
	"github.com/contentmill/contentmill/internal/experiment"
	"github.com/contentmill/contentmill/internal/pipeline"
	"github.com/contentmill/contentmill/internal/store"
)

func init() {
	rootCmd.AddCommand(newGenerateCmd())
}

func newGenerateCmd() *cobra.Command {
	var (
		contentID string
		variantID string
		branch    string
		params    []string
	)

	cmd := &cobra.Command{
		Use:   "generate <experiment-id>",
		Short: "Generate content through a running experiment",
		Long: `Generate content for a running experiment. A variant is selected
by traffic split unless --variant pins one. The artifact produced by
the pipeline is stored as a new version tagged with the experiment
and variant, and a metric sample is recorded.

Requires pipeline.url in the config file or CONTENTMILL_PIPELINE_URL.

Example:
  contentmill generate 4f1c2e8a-... --content article-42 --param topic=go`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Pipeline.URL == "" {
				return fmt.Errorf("no pipeline configured: set pipeline.url in contentmill.yaml or CONTENTMILL_PIPELINE_URL")
			}

			request, err := parseKeyValues(params)
			if err != nil {
				return err
			}
			if request == nil {
				request = make(map[string]any)
			}
			request["content_id"] = contentID
			if branch != "" {
				request["branch_name"] = branch
			}

			return withController(func(s *store.SQLiteStore, ctrl *experiment.Controller) error {
				client := pipeline.NewClient(cfg.Pipeline.URL, cfg.Pipeline.Timeout)

				opts := []engine.Option{engine.WithTimeout(cfg.Pipeline.Timeout)}
				if cfg.Advisor.URL != "" {
					advisor := pipeline.NewAdvisorClient(cfg.Advisor.URL, cfg.Pipeline.Timeout)
					opts = append(opts, engine.WithAdvisor(advisor, cfg.Advisor.MinConfidence))
				}
				eng := engine.New(s, ctrl, client, opts...)

				result, err := eng.GenerateForExperiment(context.Background(), args[0], request, variantID)
				if err != nil {
					return fmt.Errorf("generation failed: %w", err)
				}

				fmt.Printf("Generated version %d of '%s' on branch '%s'\n",
					result.Version.VersionNumber, result.Version.ContentID, result.Version.BranchName)
				fmt.Printf("  Version ID: %s\n", result.Version.ID)
				fmt.Printf("  Variant: %s\n", result.VariantID)
				fmt.Printf("  Processing: %dms\n", result.ProcessingTimeMs)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&contentID, "content", "c", "", "content id to version the artifact under (required)")
	cmd.Flags().StringVar(&variantID, "variant", "", "pin a specific variant id (default: traffic split)")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to write the version to (default: main)")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "generation parameter as 'key=value' (repeatable)")
	cmd.MarkFlagRequired("content")

	return cmd
}
