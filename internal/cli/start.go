package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/experiment"
	"github.com/contentmill/contentmill/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start <experiment-id>",
	Short: "Start a draft experiment",
	Long: `Start a draft experiment. Sets the start and end dates and begins
accepting metric samples and generation requests.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	return withController(func(_ *store.SQLiteStore, ctrl *experiment.Controller) error {
		exp, err := ctrl.Start(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to start experiment: %w", err)
		}

		fmt.Printf("Started experiment '%s'\n", exp.Name)
		fmt.Printf("  Runs until: %s\n", exp.EndDate.Format("2006-01-02"))
		return nil
	})
}
