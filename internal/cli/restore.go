package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/store"
)

func init() {
	rootCmd.AddCommand(newRestoreCmd())
}

func newRestoreCmd() *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:   "restore <version-id>",
		Short: "Restore an old version as the newest",
		Long: `Restore a version by copying its content into a new version at the
head of a branch. The original is untouched; the copy records the
restored version as its parent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				restored, err := s.RestoreVersion(context.Background(), args[0], branch)
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("version '%s' not found", args[0])
					}
					return fmt.Errorf("failed to restore version: %w", err)
				}

				fmt.Printf("Restored as version %d of '%s' on branch '%s' (%s)\n",
					restored.VersionNumber, restored.ContentID, restored.BranchName, restored.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to restore onto (default: the version's own branch)")

	return cmd
}
