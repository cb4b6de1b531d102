package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/contentmill/contentmill/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <experiment-id>",
	Short: "Export raw metric samples",
	Long: `Export an experiment's raw metric samples in CSV or JSON format.

Examples:
  contentmill export 4f1c2e8a-... --format csv > samples.csv
  contentmill export 4f1c2e8a-... --format json > samples.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		if _, err := s.GetExperiment(ctx, args[0]); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("experiment '%s' not found", args[0])
			}
			return fmt.Errorf("failed to get experiment: %w", err)
		}

		samples, err := s.GetSamples(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get samples: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(samples)
		}
		return exportJSON(samples)
	})
}

func exportCSV(samples []*store.MetricSample) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	header := []string{"timestamp", "variant_id", "session_id", "quality_score", "engagement_score", "converted", "processing_ms"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, sample := range samples {
		row := []string{
			strconv.FormatInt(sample.CreatedAt.Unix(), 10),
			sample.VariantID,
			sample.SessionID,
			strconv.FormatFloat(sample.QualityScore, 'f', -1, 64),
			strconv.FormatFloat(sample.EngagementScore, 'f', -1, 64),
			strconv.FormatBool(sample.ConversionFlag),
			strconv.FormatInt(sample.ProcessingTimeMs, 10),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

type jsonExport struct {
	Samples []jsonSample `json:"samples"`
}

type jsonSample struct {
	Timestamp       int64   `json:"timestamp"`
	VariantID       string  `json:"variant_id"`
	SessionID       string  `json:"session_id"`
	QualityScore    float64 `json:"quality_score"`
	EngagementScore float64 `json:"engagement_score"`
	Converted       bool    `json:"converted"`
	ProcessingMs    int64   `json:"processing_ms"`
}

func exportJSON(samples []*store.MetricSample) error {
	export := jsonExport{
		Samples: make([]jsonSample, len(samples)),
	}

	for i, sample := range samples {
		export.Samples[i] = jsonSample{
			Timestamp:       sample.CreatedAt.Unix(),
			VariantID:       sample.VariantID,
			SessionID:       sample.SessionID,
			QualityScore:    sample.QualityScore,
			EngagementScore: sample.EngagementScore,
			Converted:       sample.ConversionFlag,
			ProcessingMs:    sample.ProcessingTimeMs,
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
