package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentmill/contentmill/internal/store"
)

func testExperiment(id string) *store.Experiment {
	return &store.Experiment{
		ID:     id,
		Name:   "tone-test",
		Status: store.StatusDraft,
		Variants: []store.Variant{
			{ID: "v-a", Name: "formal", Modifications: map[string]any{"tone": "formal"}, Weight: 50},
			{ID: "v-b", Name: "casual", Modifications: map[string]any{"tone": "casual"}, Weight: 50},
		},
		TrafficSplit:    []float64{50, 50},
		SuccessMetrics:  []string{"quality_score", "engagement_score"},
		TestParameters:  map[string]any{"length": "short"},
		ConfidenceLevel: 0.95,
		MinSampleSize:   100,
		DurationDays:    14,
	}
}

func TestCreateAndGetExperiment(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.CreateExperiment(ctx, testExperiment("exp-1")))

	got, err := s.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)

	assert.Equal(t, "tone-test", got.Name)
	assert.Equal(t, store.StatusDraft, got.Status)
	require.Len(t, got.Variants, 2)
	assert.Equal(t, "formal", got.Variants[0].Name)
	assert.Equal(t, "formal", got.Variants[0].Modifications["tone"])
	assert.Equal(t, []float64{50, 50}, got.TrafficSplit)
	assert.Equal(t, "short", got.TestParameters["length"])
	assert.Nil(t, got.StartDate)
	assert.Nil(t, got.WinnerVariantID)
}

func TestGetExperiment_NotFound(t *testing.T) {
	s := setupTestDB(t)

	_, err := s.GetExperiment(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStartExperiment_OnlyFromDraft(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.CreateExperiment(ctx, testExperiment("exp-1")))

	start := time.Now()
	end := start.AddDate(0, 0, 14)
	require.NoError(t, s.StartExperiment(ctx, "exp-1", start, end))

	got, err := s.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, got.Status)
	require.NotNil(t, got.StartDate)
	require.NotNil(t, got.EndDate)

	// Second start loses on the optimistic guard
	err = s.StartExperiment(ctx, "exp-1", start, end)
	assert.ErrorIs(t, err, store.ErrInvalidState)

	err = s.StartExperiment(ctx, "missing", start, end)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFinishExperiment_FreezesWinnerAndAnalysis(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.CreateExperiment(ctx, testExperiment("exp-1")))
	require.NoError(t, s.StartExperiment(ctx, "exp-1", time.Now(), time.Now().AddDate(0, 0, 14)))

	winner := "v-a"
	snapshot := json.RawMessage(`{"experiment_id":"exp-1","variants":[]}`)
	require.NoError(t, s.FinishExperiment(ctx, "exp-1", store.StatusCompleted, &winner, snapshot))

	got, err := s.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
	require.NotNil(t, got.WinnerVariantID)
	assert.Equal(t, "v-a", *got.WinnerVariantID)
	assert.JSONEq(t, string(snapshot), string(got.Analysis))

	// Already terminal; cannot finish twice
	err = s.FinishExperiment(ctx, "exp-1", store.StatusStopped, nil, nil)
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestFinishExperiment_RejectsNonTerminalTarget(t *testing.T) {
	s := setupTestDB(t)

	err := s.FinishExperiment(context.Background(), "exp-1", store.StatusRunning, nil, nil)
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestFinishExperiment_FromDraftRejected(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.CreateExperiment(ctx, testExperiment("exp-1")))

	err := s.FinishExperiment(ctx, "exp-1", store.StatusCompleted, nil, nil)
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestRecordSampleAndAggregates(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	samples := []struct {
		variant    string
		quality    float64
		engagement float64
		converted  bool
		processing int64
	}{
		{"v-a", 0.8, 0.6, true, 100},
		{"v-a", 0.6, 0.4, false, 300},
		{"v-b", 0.9, 0.7, true, 200},
	}
	for i, samp := range samples {
		require.NoError(t, s.RecordSample(ctx, &store.MetricSample{
			ID:               fmt.Sprintf("sample-%d", i),
			ExperimentID:     "exp-1",
			VariantID:        samp.variant,
			SessionID:        "sess-1",
			QualityScore:     samp.quality,
			EngagementScore:  samp.engagement,
			ConversionFlag:   samp.converted,
			ProcessingTimeMs: samp.processing,
			CreatedAt:        time.Now(),
		}))
	}

	aggregates, err := s.VariantAggregates(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, aggregates, 2)

	byVariant := make(map[string]store.VariantAggregate)
	for _, agg := range aggregates {
		byVariant[agg.VariantID] = agg
	}

	a := byVariant["v-a"]
	assert.Equal(t, 2, a.SampleCount)
	assert.InDelta(t, 0.7, a.QualityMean(), 1e-9)
	assert.InDelta(t, 0.5, a.EngagementMean(), 1e-9)
	assert.InDelta(t, 0.5, a.ConversionRate(), 1e-9)
	assert.Equal(t, int64(400), a.ProcessingSumMs)

	b := byVariant["v-b"]
	assert.Equal(t, 1, b.SampleCount)
	assert.InDelta(t, 1.0, b.ConversionRate(), 1e-9)

	raw, err := s.GetSamples(ctx, "exp-1")
	require.NoError(t, err)
	assert.Len(t, raw, 3)
}

func TestVariantAggregateStdDev(t *testing.T) {
	agg := store.VariantAggregate{
		SampleCount:  3,
		QualitySum:   0.6 + 0.8 + 1.0,
		QualitySumSq: 0.6*0.6 + 0.8*0.8 + 1.0*1.0,
	}
	assert.InDelta(t, 0.2, agg.QualityStdDev(), 1e-9)

	// Fewer than two samples has no spread
	assert.Zero(t, store.VariantAggregate{SampleCount: 1, QualitySum: 0.5, QualitySumSq: 0.25}.QualityStdDev())
}

func TestVariantVersionMetricMeans(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	for _, metrics := range []map[string]float64{
		{"eeat_score": 0.6, "readability": 0.8},
		{"eeat_score": 0.8},
	} {
		_, err := s.CreateVersion(ctx, store.CreateVersionInput{
			ContentID:      "article-1",
			BranchName:     "main",
			Artifact:       json.RawMessage(`{"body":"x"}`),
			QualityMetrics: metrics,
			ExperimentID:   "exp-1",
			VariantID:      "v-a",
		})
		require.NoError(t, err)
	}

	// A version outside the experiment must not contribute
	_, err := s.CreateVersion(ctx, store.CreateVersionInput{
		ContentID:      "article-1",
		BranchName:     "main",
		Artifact:       json.RawMessage(`{"body":"y"}`),
		QualityMetrics: map[string]float64{"eeat_score": 0.1},
	})
	require.NoError(t, err)

	means, err := s.VariantVersionMetricMeans(ctx, "exp-1")
	require.NoError(t, err)
	require.Contains(t, means, "v-a")
	assert.InDelta(t, 0.7, means["v-a"]["eeat_score"], 1e-9)
	assert.InDelta(t, 0.8, means["v-a"]["readability"], 1e-9)
}
