package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/experiment"
	"github.com/contentmill/contentmill/internal/store"
)

func init() {
	rootCmd.AddCommand(newStopCmd())
}

func newStopCmd() *cobra.Command {
	var (
		abort bool
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "stop <experiment-id>",
		Short: "Stop a running experiment",
		Long: `Stop a running experiment, freeze its final analysis, and declare a
winner. Stopping is terminal: the experiment cannot be restarted.

With --abort the experiment is marked stopped without a winner.

Example:
  contentmill stop 4f1c2e8a-...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				prompt := promptui.Prompt{
					Label:     "Stopping is permanent. Continue",
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					if err == promptui.ErrInterrupt {
						os.Exit(0)
					}
					fmt.Println("Cancelled.")
					return nil
				}
			}

			return withController(func(_ *store.SQLiteStore, ctrl *experiment.Controller) error {
				ctx := context.Background()

				if abort {
					if _, err := ctrl.Abort(ctx, args[0]); err != nil {
						return fmt.Errorf("failed to abort experiment: %w", err)
					}
					fmt.Println("Experiment aborted. No winner declared.")
					return nil
				}

				analysis, err := ctrl.Stop(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to stop experiment: %w", err)
				}

				if analysis.WinnerVariantID != nil {
					fmt.Printf("Experiment completed. Winner: %s\n", *analysis.WinnerVariantID)
				} else {
					fmt.Println("Experiment completed. No winner (no samples recorded).")
				}
				fmt.Println("Run 'contentmill results' to view the frozen analysis.")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&abort, "abort", false, "mark stopped without declaring a winner")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")

	return cmd
}
