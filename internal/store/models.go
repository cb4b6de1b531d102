package store

import (
	"encoding/json"
	"math"
	"time"
)

type VersionStatus string

const (
	VersionActive   VersionStatus = "active"
	VersionArchived VersionStatus = "archived"
)

type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusRunning   ExperimentStatus = "running"
	StatusCompleted ExperimentStatus = "completed"
	StatusStopped   ExperimentStatus = "stopped"
)

type HistoryAction string

const (
	ActionCreate  HistoryAction = "CREATE"
	ActionRestore HistoryAction = "RESTORE"
	ActionBranch  HistoryAction = "BRANCH"
	ActionArchive HistoryAction = "ARCHIVE"
)

// Version is one immutable snapshot of a piece of content on a branch.
// Versions are never edited in place; the only mutation after creation
// is the active -> archived status flip.
type Version struct {
	ID              string             `json:"id"`
	ContentID       string             `json:"content_id"`
	BranchName      string             `json:"branch_name"`
	VersionNumber   int                `json:"version_number"`
	ParentVersionID *string            `json:"parent_version_id,omitempty"`
	ContentHash     string             `json:"content_hash"`
	Artifact        json.RawMessage    `json:"artifact"`
	QualityMetrics  map[string]float64 `json:"quality_metrics,omitempty"`
	ExperimentID    string             `json:"experiment_id,omitempty"` // optional experiment tag
	VariantID       string             `json:"variant_id,omitempty"`    // optional variant tag
	Status          VersionStatus      `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
}

// HistoryEvent is an append-only audit record written alongside every
// version store mutation.
type HistoryEvent struct {
	ID        int64         `json:"id"`
	ContentID string        `json:"content_id"`
	VersionID string        `json:"version_id"`
	Action    HistoryAction `json:"action"`
	Details   string        `json:"details,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type Experiment struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Status          ExperimentStatus `json:"status"`
	Variants        []Variant        `json:"variants"`
	TrafficSplit    []float64        `json:"traffic_split"`
	SuccessMetrics  []string         `json:"success_metrics"`
	TestParameters  map[string]any   `json:"test_parameters,omitempty"`
	ConfidenceLevel float64          `json:"confidence_level"`
	MinSampleSize   int              `json:"min_sample_size"`
	DurationDays    int              `json:"duration_days"`
	StartDate       *time.Time       `json:"start_date,omitempty"`
	EndDate         *time.Time       `json:"end_date,omitempty"`
	WinnerVariantID *string          `json:"winner_variant_id,omitempty"`
	Analysis        json.RawMessage  `json:"analysis,omitempty"` // frozen snapshot, set when the experiment goes terminal
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Variant is one candidate generation configuration within an
// experiment. Immutable once the owning experiment leaves draft.
type Variant struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Modifications map[string]any `json:"modifications,omitempty"`
	Weight        float64        `json:"weight"`
}

// MetricSample is a single recorded observation for a variant.
// Append-only, never updated.
type MetricSample struct {
	ID               string    `json:"id"`
	ExperimentID     string    `json:"experiment_id"`
	VariantID        string    `json:"variant_id"`
	SessionID        string    `json:"session_id,omitempty"`
	QualityScore     float64   `json:"quality_score"`
	EngagementScore  float64   `json:"engagement_score"`
	ConversionFlag   bool      `json:"conversion"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// VariantAggregate is the per-variant sample rollup that analysis
// works from. Sums are kept rather than means so stddev can be
// derived without a second pass over samples.
type VariantAggregate struct {
	VariantID       string
	SampleCount     int
	QualitySum      float64
	QualitySumSq    float64
	EngagementSum   float64
	Conversions     int
	ProcessingSumMs int64
}

func (a VariantAggregate) QualityMean() float64 {
	if a.SampleCount == 0 {
		return 0
	}
	return a.QualitySum / float64(a.SampleCount)
}

func (a VariantAggregate) EngagementMean() float64 {
	if a.SampleCount == 0 {
		return 0
	}
	return a.EngagementSum / float64(a.SampleCount)
}

func (a VariantAggregate) ConversionRate() float64 {
	if a.SampleCount == 0 {
		return 0
	}
	return float64(a.Conversions) / float64(a.SampleCount)
}

// QualityStdDev returns the sample standard deviation of quality scores.
func (a VariantAggregate) QualityStdDev() float64 {
	if a.SampleCount < 2 {
		return 0
	}
	n := float64(a.SampleCount)
	variance := (a.QualitySumSq - a.QualitySum*a.QualitySum/n) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}
