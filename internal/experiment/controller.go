// Package experiment manages the experiment lifecycle: creation,
// start/stop transitions, variant traffic allocation, metric
// ingestion, and statistical analysis.
package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contentmill/contentmill/internal/stats"
	"github.com/contentmill/contentmill/internal/store"
)

const (
	defaultConfidenceLevel = 0.95
	defaultMinSampleSize   = 100
	defaultDurationDays    = 14
	splitTolerance         = 1e-6
)

var defaultSuccessMetrics = []string{stats.MetricQuality, stats.MetricEngagement}

// Config is the caller-supplied experiment definition.
type Config struct {
	Name            string
	Variants        []store.Variant
	TrafficSplit    []float64
	SuccessMetrics  []string
	TestParameters  map[string]any
	ConfidenceLevel float64
	MinSampleSize   int
	DurationDays    int
}

// Controller runs experiments against the store. Variant selection is
// the only non-deterministic operation; its random source is injected
// so tests can seed it.
type Controller struct {
	store store.Store

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rng *rand.Rand
}

func NewController(s store.Store, rng *rand.Rand) *Controller {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Controller{store: s, rng: rng}
}

// Create validates the config, fills defaults, and persists a draft
// experiment. At least two variants are required; the traffic split
// defaults to an even distribution.
func (c *Controller) Create(ctx context.Context, cfg Config) (*store.Experiment, error) {
	if len(cfg.Variants) < 2 {
		return nil, fmt.Errorf("%w: experiment needs at least 2 variants, got %d", store.ErrInvalidConfig, len(cfg.Variants))
	}

	variants := make([]store.Variant, len(cfg.Variants))
	copy(variants, cfg.Variants)
	for i := range variants {
		if variants[i].ID == "" {
			variants[i].ID = uuid.NewString()
		}
		if variants[i].Name == "" {
			variants[i].Name = fmt.Sprintf("variant_%d", i+1)
		}
	}

	split := cfg.TrafficSplit
	if len(split) == 0 {
		even := 100.0 / float64(len(variants))
		split = make([]float64, len(variants))
		for i := range split {
			split[i] = even
		}
	}
	if err := validateSplit(variants, split); err != nil {
		return nil, err
	}
	for i := range variants {
		variants[i].Weight = split[i]
	}

	successMetrics := cfg.SuccessMetrics
	if len(successMetrics) == 0 {
		successMetrics = append([]string(nil), defaultSuccessMetrics...)
	}

	exp := &store.Experiment{
		ID:              uuid.NewString(),
		Name:            cfg.Name,
		Status:          store.StatusDraft,
		Variants:        variants,
		TrafficSplit:    split,
		SuccessMetrics:  successMetrics,
		TestParameters:  cfg.TestParameters,
		ConfidenceLevel: cfg.ConfidenceLevel,
		MinSampleSize:   cfg.MinSampleSize,
		DurationDays:    cfg.DurationDays,
	}
	if exp.Name == "" {
		exp.Name = "experiment-" + exp.ID[:8]
	}
	if exp.ConfidenceLevel <= 0 || exp.ConfidenceLevel >= 1 {
		exp.ConfidenceLevel = defaultConfidenceLevel
	}
	if exp.MinSampleSize <= 0 {
		exp.MinSampleSize = defaultMinSampleSize
	}
	if exp.DurationDays <= 0 {
		exp.DurationDays = defaultDurationDays
	}

	if err := c.store.CreateExperiment(ctx, exp); err != nil {
		return nil, err
	}

	return exp, nil
}

func validateSplit(variants []store.Variant, split []float64) error {
	if len(split) != len(variants) {
		return fmt.Errorf("%w: traffic split has %d weights for %d variants", store.ErrInvalidConfig, len(split), len(variants))
	}

	sum := 0.0
	for _, w := range split {
		if w < 0 {
			return fmt.Errorf("%w: traffic split weights must be non-negative", store.ErrInvalidConfig)
		}
		sum += w
	}
	if math.Abs(sum-100) > splitTolerance {
		return fmt.Errorf("%w: traffic split must sum to 100, got %g", store.ErrInvalidConfig, sum)
	}

	return nil
}

func (c *Controller) Get(ctx context.Context, id string) (*store.Experiment, error) {
	return c.store.GetExperiment(ctx, id)
}

func (c *Controller) List(ctx context.Context) ([]*store.Experiment, error) {
	return c.store.ListExperiments(ctx)
}

// Start transitions a draft experiment to running and stamps the
// start/end dates. Racing starts lose on the store's optimistic guard.
func (c *Controller) Start(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := c.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	end := start.AddDate(0, 0, exp.DurationDays)
	if err := c.store.StartExperiment(ctx, id, start, end); err != nil {
		return nil, err
	}

	return c.store.GetExperiment(ctx, id)
}

// SelectVariant draws r in [0,100) and walks the cumulative traffic
// split in variant order, returning the first variant whose bound
// covers r. Rounding in the split can leave a sliver uncovered; that
// falls back to the first variant.
func (c *Controller) SelectVariant(exp *store.Experiment) string {
	c.mu.Lock()
	r := c.rng.Float64() * 100
	c.mu.Unlock()

	cumulative := 0.0
	for i, weight := range exp.TrafficSplit {
		cumulative += weight
		if r < cumulative {
			return exp.Variants[i].ID
		}
	}

	return exp.Variants[0].ID
}

// RecordMetric appends a sample for a variant of a running
// experiment. Samples are append-only and commutative; no ordering is
// required between concurrent recorders.
func (c *Controller) RecordMetric(ctx context.Context, experimentID, variantID string, sample store.MetricSample) error {
	exp, err := c.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return err
	}
	if exp.Status != store.StatusRunning {
		return fmt.Errorf("%w: cannot record metrics while experiment is %s", store.ErrInvalidState, exp.Status)
	}
	if findVariant(exp, variantID) == nil {
		return fmt.Errorf("%w: variant %s", store.ErrNotFound, variantID)
	}

	sample.ID = uuid.NewString()
	sample.ExperimentID = experimentID
	sample.VariantID = variantID
	sample.CreatedAt = time.Now()

	return c.store.RecordSample(ctx, &sample)
}

// Analyze returns the live analysis for a running experiment, or the
// frozen snapshot for a terminal one.
func (c *Controller) Analyze(ctx context.Context, id string) (*stats.AnalysisResult, error) {
	exp, err := c.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}

	if isTerminal(exp.Status) && len(exp.Analysis) > 0 {
		var frozen stats.AnalysisResult
		if err := json.Unmarshal(exp.Analysis, &frozen); err != nil {
			return nil, fmt.Errorf("failed to decode frozen analysis: %w", err)
		}
		return &frozen, nil
	}

	return c.analyze(ctx, exp)
}

func (c *Controller) analyze(ctx context.Context, exp *store.Experiment) (*stats.AnalysisResult, error) {
	aggregates, err := c.store.VariantAggregates(ctx, exp.ID)
	if err != nil {
		return nil, err
	}
	versionMeans, err := c.store.VariantVersionMetricMeans(ctx, exp.ID)
	if err != nil {
		return nil, err
	}

	return stats.Analyze(exp, aggregates, versionMeans), nil
}

// Stop transitions running -> completed, freezing the final analysis
// and winner onto the experiment. Subsequent Analyze calls return the
// frozen snapshot.
func (c *Controller) Stop(ctx context.Context, id string) (*stats.AnalysisResult, error) {
	return c.finish(ctx, id, store.StatusCompleted, true)
}

// Abort transitions running -> stopped. The analysis snapshot is
// still frozen for the record, but no winner is declared.
func (c *Controller) Abort(ctx context.Context, id string) (*stats.AnalysisResult, error) {
	return c.finish(ctx, id, store.StatusStopped, false)
}

func (c *Controller) finish(ctx context.Context, id string, to store.ExperimentStatus, declareWinner bool) (*stats.AnalysisResult, error) {
	exp, err := c.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusRunning {
		return nil, fmt.Errorf("%w: experiment is %s", store.ErrInvalidState, exp.Status)
	}

	analysis, err := c.analyze(ctx, exp)
	if err != nil {
		return nil, err
	}

	var winner *string
	if declareWinner {
		winner = stats.DetermineWinner(analysis, exp.SuccessMetrics)
		analysis.WinnerVariantID = winner
	}

	snapshot, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis snapshot: %w", err)
	}

	if err := c.store.FinishExperiment(ctx, id, to, winner, snapshot); err != nil {
		return nil, err
	}

	return analysis, nil
}

func findVariant(exp *store.Experiment, variantID string) *store.Variant {
	for i := range exp.Variants {
		if exp.Variants[i].ID == variantID {
			return &exp.Variants[i]
		}
	}
	return nil
}

func isTerminal(status store.ExperimentStatus) bool {
	return status == store.StatusCompleted || status == store.StatusStopped
}
