// Package engine is the entry point for "generate content for
// experiment X": it resolves a variant, delegates to the external
// content pipeline, and writes the result into the version store
// tagged with the experiment and variant ids.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/contentmill/contentmill/internal/experiment"
	"github.com/contentmill/contentmill/internal/store"
)

const (
	defaultPipelineTimeout = 2 * time.Minute
	defaultMinConfidence   = 0.6
	defaultBranch          = "main"
)

// Artifact is the opaque payload produced by the external content
// pipeline, plus the quality metric map extracted from it.
type Artifact struct {
	Payload        json.RawMessage
	QualityMetrics map[string]float64
}

// Pipeline produces a content artifact for a generation request.
// Possibly slow; calls are bounded by the engine's timeout and are
// never retried, so a failed generation surfaces to the caller
// instead of double-charging the provider.
type Pipeline interface {
	Produce(ctx context.Context, request map[string]any) (*Artifact, error)
}

// Recommendation is an optional set of parameter overrides from the
// feedback advisor.
type Recommendation struct {
	Overrides  map[string]any
	Confidence float64
}

// Advisor is the optional feedback collaborator. A nil advisor is
// valid; recommendations below the confidence threshold are ignored.
type Advisor interface {
	Recommend(ctx context.Context, request map[string]any) (*Recommendation, error)
}

// Result is the artifact with its version and experiment tags.
type Result struct {
	Version          *store.Version     `json:"version"`
	Artifact         json.RawMessage    `json:"artifact"`
	QualityMetrics   map[string]float64 `json:"quality_metrics"`
	ExperimentID     string             `json:"experiment_id"`
	VariantID        string             `json:"variant_id"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
}

type Engine struct {
	store         store.Store
	controller    *experiment.Controller
	pipeline      Pipeline
	advisor       Advisor
	timeout       time.Duration
	minConfidence float64
}

// Option configures an Engine.
type Option func(*Engine)

func WithAdvisor(a Advisor, minConfidence float64) Option {
	return func(e *Engine) {
		e.advisor = a
		if minConfidence > 0 {
			e.minConfidence = minConfidence
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func New(s store.Store, c *experiment.Controller, p Pipeline, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		controller:    c,
		pipeline:      p,
		timeout:       defaultPipelineTimeout,
		minConfidence: defaultMinConfidence,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GenerateForExperiment resolves a variant (selecting one when
// variantID is empty), builds the effective request, calls the
// pipeline, and persists the artifact as a new version tagged with
// the experiment and variant. A pipeline failure aborts the whole
// call: no version is written and no metric is recorded.
func (e *Engine) GenerateForExperiment(ctx context.Context, experimentID string, request map[string]any, variantID string) (*Result, error) {
	exp, err := e.controller.Get(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusRunning {
		return nil, fmt.Errorf("%w: experiment is %s", store.ErrInvalidState, exp.Status)
	}

	var variant *store.Variant
	if variantID != "" {
		variant = findVariant(exp, variantID)
		if variant == nil {
			return nil, fmt.Errorf("%w: variant %s", store.ErrNotFound, variantID)
		}
	} else {
		variant = findVariant(exp, e.controller.SelectVariant(exp))
	}

	effective := e.buildRequest(ctx, exp, variant, request)

	// Validate before the pipeline call: a bad request must not spend
	// a paid generation.
	contentID, _ := effective["content_id"].(string)
	if contentID == "" {
		return nil, fmt.Errorf("%w: request is missing content_id", store.ErrInvalidConfig)
	}
	branch, _ := effective["branch_name"].(string)
	if branch == "" {
		branch = defaultBranch
	}

	pipelineCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	artifact, err := e.pipeline.Produce(pipelineCtx, effective)
	if err != nil {
		return nil, fmt.Errorf("%w: content pipeline: %v", store.ErrUpstream, err)
	}
	processingMs := time.Since(started).Milliseconds()

	version, err := e.store.CreateVersion(ctx, store.CreateVersionInput{
		ContentID:      contentID,
		BranchName:     branch,
		Artifact:       artifact.Payload,
		QualityMetrics: artifact.QualityMetrics,
		ExperimentID:   exp.ID,
		VariantID:      variant.ID,
	})
	if err != nil {
		return nil, err
	}

	sample := store.MetricSample{
		SessionID:        sessionID(effective),
		QualityScore:     artifact.QualityMetrics["quality_score"],
		EngagementScore:  artifact.QualityMetrics["engagement_score"],
		ConversionFlag:   artifact.QualityMetrics["conversion"] > 0,
		ProcessingTimeMs: processingMs,
	}
	if err := e.controller.RecordMetric(ctx, exp.ID, variant.ID, sample); err != nil {
		return nil, err
	}

	return &Result{
		Version:          version,
		Artifact:         artifact.Payload,
		QualityMetrics:   artifact.QualityMetrics,
		ExperimentID:     exp.ID,
		VariantID:        variant.ID,
		ProcessingTimeMs: processingMs,
	}, nil
}

// buildRequest layers the generation parameters: advisor overrides
// land on unset request keys first, variant modifications win over
// everything, and experiment-level test parameters fill whatever is
// still unset.
func (e *Engine) buildRequest(ctx context.Context, exp *store.Experiment, variant *store.Variant, request map[string]any) map[string]any {
	effective := make(map[string]any, len(request))
	for k, v := range request {
		effective[k] = v
	}

	if e.advisor != nil {
		if rec, err := e.advisor.Recommend(ctx, effective); err == nil && rec != nil && rec.Confidence > e.minConfidence {
			for k, v := range rec.Overrides {
				if _, set := effective[k]; !set {
					effective[k] = v
				}
			}
		}
	}

	for k, v := range variant.Modifications {
		effective[k] = v
	}

	for k, v := range exp.TestParameters {
		if _, set := effective[k]; !set {
			effective[k] = v
		}
	}

	return effective
}

func sessionID(request map[string]any) string {
	id, _ := request["session_id"].(string)
	return id
}

func findVariant(exp *store.Experiment, variantID string) *store.Variant {
	for i := range exp.Variants {
		if exp.Variants[i].ID == variantID {
			return &exp.Variants[i]
		}
	}
	return nil
}
