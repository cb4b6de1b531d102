package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/store"
)

var branchCmd = &cobra.Command{
	Use:   "branch <version-id> <new-branch>",
	Short: "Fork a version onto a new branch",
	Long: `Fork a version onto a new branch. The branch starts at version 1
with the forked version as its parent. Branch names are unique per
piece of content.`,
	Args: cobra.ExactArgs(2),
	RunE: runBranch,
}

func init() {
	rootCmd.AddCommand(branchCmd)
}

func runBranch(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		forked, err := s.Branch(context.Background(), args[0], args[1])
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("version '%s' not found", args[0])
			case errors.Is(err, store.ErrAlreadyExists):
				return fmt.Errorf("branch '%s' already exists for this content", args[1])
			}
			return fmt.Errorf("failed to branch: %w", err)
		}

		fmt.Printf("Created branch '%s' of '%s' at version %d (%s)\n",
			forked.BranchName, forked.ContentID, forked.VersionNumber, forked.ID)
		return nil
	})
}
