package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/store"
)

func init() {
	rootCmd.AddCommand(newVersionsCmd())
}

func newVersionsCmd() *cobra.Command {
	var (
		branch          string
		includeArchived bool
		limit           int
		offset          int
	)

	cmd := &cobra.Command{
		Use:   "versions <content-id>",
		Short: "List versions of a piece of content",
		Long: `List the version lineage of a piece of content, newest first.
Archived versions are hidden unless --all is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				versions, hasMore, err := s.ListVersions(context.Background(), args[0], store.ListVersionsOptions{
					BranchName:      branch,
					IncludeArchived: includeArchived,
					Limit:           limit,
					Offset:          offset,
				})
				if err != nil {
					return fmt.Errorf("failed to list versions: %w", err)
				}

				if len(versions) == 0 {
					fmt.Printf("No versions for content '%s'.\n", args[0])
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tBRANCH\tID\tSTATUS\tEXPERIMENT\tCREATED")
				for _, v := range versions {
					expTag := "-"
					if v.ExperimentID != "" {
						expTag = v.ExperimentID
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
						v.VersionNumber,
						v.BranchName,
						v.ID,
						v.Status,
						expTag,
						v.CreatedAt.Format("2006-01-02 15:04"),
					)
				}
				w.Flush()

				if hasMore {
					fmt.Printf("\nMore versions available: rerun with --offset %d\n", offset+len(versions))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "only show versions on this branch")
	cmd.Flags().BoolVarP(&includeArchived, "all", "a", false, "include archived versions")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum versions to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "versions to skip")

	return cmd
}
