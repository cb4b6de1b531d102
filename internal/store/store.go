package store

import (
	"context"
	"encoding/json"
	"time"
)

// CreateVersionInput carries everything needed to persist a new
// version. ParentVersionID must reference an existing version when
// set. ExperimentID/VariantID are optional tags linking the version
// to an experiment variant.
type CreateVersionInput struct {
	ContentID       string
	BranchName      string
	Artifact        json.RawMessage
	ParentVersionID *string
	QualityMetrics  map[string]float64
	ExperimentID    string
	VariantID       string
}

// ListVersionsOptions filters and pages a lineage listing.
type ListVersionsOptions struct {
	BranchName      string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// Store defines the persistence operations for versions, history,
// experiments and metric samples.
type Store interface {
	// Version operations
	CreateVersion(ctx context.Context, in CreateVersionInput) (*Version, error)
	GetVersion(ctx context.Context, versionID string) (*Version, error)
	ListVersions(ctx context.Context, contentID string, opts ListVersionsOptions) (versions []*Version, hasMore bool, err error)
	RestoreVersion(ctx context.Context, versionID, branchName string) (*Version, error)
	Branch(ctx context.Context, versionID, newBranchName string) (*Version, error)
	ArchiveOlderThan(ctx context.Context, contentID, branchName string, keep int) (int, error)
	GetHistory(ctx context.Context, contentID string) ([]*HistoryEvent, error)

	// Experiment operations
	CreateExperiment(ctx context.Context, exp *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	StartExperiment(ctx context.Context, id string, start, end time.Time) error
	FinishExperiment(ctx context.Context, id string, to ExperimentStatus, winnerVariantID *string, analysis json.RawMessage) error

	// Metric samples
	RecordSample(ctx context.Context, sample *MetricSample) error
	VariantAggregates(ctx context.Context, experimentID string) ([]VariantAggregate, error)
	GetSamples(ctx context.Context, experimentID string) ([]*MetricSample, error)

	// VariantVersionMetricMeans averages the quality metrics of
	// versions tagged with the experiment, keyed by variant id then
	// metric name.
	VariantVersionMetricMeans(ctx context.Context, experimentID string) (map[string]map[string]float64, error)

	// Lifecycle
	Close() error
}
