package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/store"
)

func init() {
	rootCmd.AddCommand(newArchiveCmd())
}

func newArchiveCmd() *cobra.Command {
	var (
		branch string
		keep   int
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "archive <content-id>",
		Short: "Archive old versions of a piece of content",
		Long: `Archive all but the most recent versions of a piece of content on a
branch. Archived versions keep their version numbers and stay
restorable; they are just hidden from default listings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 1 {
				return fmt.Errorf("--keep must be at least 1")
			}

			if !yes {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Archive all but the %d most recent versions of '%s' on '%s'", keep, args[0], branch),
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

			return withStore(func(s *store.SQLiteStore) error {
				archived, err := s.ArchiveOlderThan(context.Background(), args[0], branch, keep)
				if err != nil {
					return fmt.Errorf("failed to archive versions: %w", err)
				}

				if archived == 0 {
					fmt.Println("Nothing to archive.")
					return nil
				}
				fmt.Printf("Archived %d version(s).\n", archived)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "main", "branch to archive on")
	cmd.Flags().IntVarP(&keep, "keep", "k", 10, "number of recent versions to keep active")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")

	return cmd
}
