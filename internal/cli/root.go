package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/config"
)

var (
	cfgFile string
	dbPath  string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "contentmill",
	Short: "Contentmill - experimentation and versioning engine for generated content",
	Long: `Contentmill runs A/B experiments over machine-generated content and
tracks every generated artifact in a branch-aware version store.

Single Go binary, embedded SQLite. 'serve' starts the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		// Flag and env override the config file
		if !cmd.Flags().Changed("db") {
			if env := os.Getenv("CM_DB_PATH"); env != "" {
				dbPath = env
			} else if cfg.DBPath != "" {
				dbPath = cfg.DBPath
			}
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./contentmill.yaml or ~/.config/contentmill/contentmill.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./contentmill.db", "database path")
}
