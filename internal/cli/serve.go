package cli

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/engine"
	"github.com/contentmill/contentmill/internal/experiment"
	"github.com/contentmill/contentmill/internal/pipeline"
	"github.com/contentmill/contentmill/internal/server"
	"github.com/contentmill/contentmill/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the contentmill HTTP server.

The server provides:
  - Experiment lifecycle and results endpoints
  - Version store endpoints (create, list, restore, branch, archive)
  - Generation endpoint backed by the configured pipeline
  - Health check endpoint

Mutating endpoints require the access token printed at startup.

Example:
  contentmill serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default: config 'port' or 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	ctrl := experiment.NewController(s, rand.New(rand.NewSource(time.Now().UnixNano())))

	var pipe engine.Pipeline = pipeline.Unconfigured{}
	if cfg.Pipeline.URL != "" {
		pipe = pipeline.NewClient(cfg.Pipeline.URL, cfg.Pipeline.Timeout)
	}

	opts := []engine.Option{engine.WithTimeout(cfg.Pipeline.Timeout)}
	if cfg.Advisor.URL != "" {
		advisor := pipeline.NewAdvisorClient(cfg.Advisor.URL, cfg.Pipeline.Timeout)
		opts = append(opts, engine.WithAdvisor(advisor, cfg.Advisor.MinConfidence))
	}
	eng := engine.New(s, ctrl, pipe, opts...)

	port := servePort
	if port == 0 {
		port = cfg.Port
	}

	srv := server.New(s, ctrl, eng, port, tokenFilePath())

	fmt.Printf("contentmill listening on :%d\n", port)
	fmt.Printf("API token: %s (also via 'contentmill token')\n", srv.Token())
	if cfg.Pipeline.URL == "" {
		fmt.Println("Note: no pipeline configured; generation endpoints will fail.")
	}

	return srv.Start()
}
