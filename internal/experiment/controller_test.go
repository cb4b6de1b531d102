package experiment_test

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentmill/contentmill/internal/experiment"
	"github.com/contentmill/contentmill/internal/store"
)

func setupController(t *testing.T, seed int64) (*store.SQLiteStore, *experiment.Controller) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s, experiment.NewController(s, rand.New(rand.NewSource(seed)))
}

func createRunning(t *testing.T, ctrl *experiment.Controller, cfg experiment.Config) *store.Experiment {
	t.Helper()

	exp, err := ctrl.Create(context.Background(), cfg)
	require.NoError(t, err)
	exp, err = ctrl.Start(context.Background(), exp.ID)
	require.NoError(t, err)
	return exp
}

func twoVariants() []store.Variant {
	return []store.Variant{
		{Name: "formal", Modifications: map[string]any{"tone": "formal"}},
		{Name: "casual", Modifications: map[string]any{"tone": "casual"}},
	}
}

func TestCreate_FillsDefaults(t *testing.T) {
	_, ctrl := setupController(t, 1)

	exp, err := ctrl.Create(context.Background(), experiment.Config{
		Name:     "tone-test",
		Variants: []store.Variant{{}, {}},
	})
	require.NoError(t, err)

	assert.Equal(t, store.StatusDraft, exp.Status)
	assert.Equal(t, 0.95, exp.ConfidenceLevel)
	assert.Equal(t, 100, exp.MinSampleSize)
	assert.Equal(t, 14, exp.DurationDays)
	assert.Equal(t, []float64{50, 50}, exp.TrafficSplit)
	assert.Equal(t, []string{"quality_score", "engagement_score"}, exp.SuccessMetrics)

	require.Len(t, exp.Variants, 2)
	assert.Equal(t, "variant_1", exp.Variants[0].Name)
	assert.Equal(t, "variant_2", exp.Variants[1].Name)
	assert.NotEmpty(t, exp.Variants[0].ID)
	assert.NotEqual(t, exp.Variants[0].ID, exp.Variants[1].ID)
	assert.Equal(t, 50.0, exp.Variants[0].Weight)
}

func TestCreate_RejectsBadConfig(t *testing.T) {
	_, ctrl := setupController(t, 1)
	ctx := context.Background()

	_, err := ctrl.Create(ctx, experiment.Config{Variants: []store.Variant{{Name: "only"}}})
	assert.ErrorIs(t, err, store.ErrInvalidConfig)

	_, err = ctrl.Create(ctx, experiment.Config{
		Variants:     twoVariants(),
		TrafficSplit: []float64{60, 60},
	})
	assert.ErrorIs(t, err, store.ErrInvalidConfig)

	_, err = ctrl.Create(ctx, experiment.Config{
		Variants:     twoVariants(),
		TrafficSplit: []float64{150, -50},
	})
	assert.ErrorIs(t, err, store.ErrInvalidConfig)

	_, err = ctrl.Create(ctx, experiment.Config{
		Variants:     twoVariants(),
		TrafficSplit: []float64{100},
	})
	assert.ErrorIs(t, err, store.ErrInvalidConfig)
}

func TestCreate_UnevenSplitAccepted(t *testing.T) {
	_, ctrl := setupController(t, 1)

	exp, err := ctrl.Create(context.Background(), experiment.Config{
		Variants:     twoVariants(),
		TrafficSplit: []float64{70, 30},
	})
	require.NoError(t, err)
	assert.Equal(t, 70.0, exp.Variants[0].Weight)
	assert.Equal(t, 30.0, exp.Variants[1].Weight)
}

func TestStart_StampsDates(t *testing.T) {
	_, ctrl := setupController(t, 1)

	exp, err := ctrl.Create(context.Background(), experiment.Config{
		Variants:     twoVariants(),
		DurationDays: 7,
	})
	require.NoError(t, err)

	started, err := ctrl.Start(context.Background(), exp.ID)
	require.NoError(t, err)

	assert.Equal(t, store.StatusRunning, started.Status)
	require.NotNil(t, started.StartDate)
	require.NotNil(t, started.EndDate)
	assert.Equal(t, started.StartDate.AddDate(0, 0, 7).Unix(), started.EndDate.Unix())

	// Already running
	_, err = ctrl.Start(context.Background(), exp.ID)
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestSelectVariant_RespectsSplit(t *testing.T) {
	_, ctrl := setupController(t, 42)

	exp := createRunning(t, ctrl, experiment.Config{
		Variants:     twoVariants(),
		TrafficSplit: []float64{50, 50},
	})

	const draws = 10000
	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		counts[ctrl.SelectVariant(exp)]++
	}

	// Seeded draws should land close to the even split
	share := float64(counts[exp.Variants[0].ID]) / draws
	assert.Less(t, math.Abs(share-0.5), 0.03, "got share %f for a 50/50 split", share)
}

func TestSelectVariant_ZeroWeightNeverSelected(t *testing.T) {
	_, ctrl := setupController(t, 7)

	exp := createRunning(t, ctrl, experiment.Config{
		Variants:     twoVariants(),
		TrafficSplit: []float64{100, 0},
	})

	for i := 0; i < 1000; i++ {
		assert.Equal(t, exp.Variants[0].ID, ctrl.SelectVariant(exp))
	}
}

func TestRecordMetric_OnlyWhileRunning(t *testing.T) {
	_, ctrl := setupController(t, 1)
	ctx := context.Background()

	exp, err := ctrl.Create(ctx, experiment.Config{Variants: twoVariants()})
	require.NoError(t, err)

	err = ctrl.RecordMetric(ctx, exp.ID, exp.Variants[0].ID, store.MetricSample{QualityScore: 0.8})
	assert.ErrorIs(t, err, store.ErrInvalidState)

	_, err = ctrl.Start(ctx, exp.ID)
	require.NoError(t, err)

	require.NoError(t, ctrl.RecordMetric(ctx, exp.ID, exp.Variants[0].ID, store.MetricSample{QualityScore: 0.8}))

	err = ctrl.RecordMetric(ctx, exp.ID, "no-such-variant", store.MetricSample{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStop_DeclaresWinnerAndFreezesAnalysis(t *testing.T) {
	_, ctrl := setupController(t, 1)
	ctx := context.Background()

	exp := createRunning(t, ctrl, experiment.Config{Variants: twoVariants()})

	// Variant A uniformly better
	for i := 0; i < 5; i++ {
		require.NoError(t, ctrl.RecordMetric(ctx, exp.ID, exp.Variants[0].ID,
			store.MetricSample{QualityScore: 0.9, EngagementScore: 0.8}))
		require.NoError(t, ctrl.RecordMetric(ctx, exp.ID, exp.Variants[1].ID,
			store.MetricSample{QualityScore: 0.3, EngagementScore: 0.2}))
	}

	analysis, err := ctrl.Stop(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, analysis.WinnerVariantID)
	assert.Equal(t, exp.Variants[0].ID, *analysis.WinnerVariantID)

	stopped, err := ctrl.Get(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, stopped.Status)
	require.NotNil(t, stopped.WinnerVariantID)
	assert.Equal(t, exp.Variants[0].ID, *stopped.WinnerVariantID)

	// The experiment stays closed
	err = ctrl.RecordMetric(ctx, exp.ID, exp.Variants[0].ID, store.MetricSample{QualityScore: 1})
	assert.ErrorIs(t, err, store.ErrInvalidState)

	// Analyze now serves the frozen snapshot: same totals as at stop
	frozen, err := ctrl.Analyze(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.Variants[0].SampleCount, frozen.Variants[0].SampleCount)
	require.NotNil(t, frozen.WinnerVariantID)
	assert.Equal(t, *analysis.WinnerVariantID, *frozen.WinnerVariantID)
}

func TestStop_RequiresRunning(t *testing.T) {
	_, ctrl := setupController(t, 1)
	ctx := context.Background()

	exp, err := ctrl.Create(ctx, experiment.Config{Variants: twoVariants()})
	require.NoError(t, err)

	_, err = ctrl.Stop(ctx, exp.ID)
	assert.ErrorIs(t, err, store.ErrInvalidState)

	_, err = ctrl.Stop(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAbort_NoWinner(t *testing.T) {
	_, ctrl := setupController(t, 1)
	ctx := context.Background()

	exp := createRunning(t, ctrl, experiment.Config{Variants: twoVariants()})
	require.NoError(t, ctrl.RecordMetric(ctx, exp.ID, exp.Variants[0].ID, store.MetricSample{QualityScore: 0.9}))

	analysis, err := ctrl.Abort(ctx, exp.ID)
	require.NoError(t, err)
	assert.Nil(t, analysis.WinnerVariantID)

	aborted, err := ctrl.Get(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusStopped, aborted.Status)
	assert.Nil(t, aborted.WinnerVariantID)
	assert.NotEmpty(t, aborted.Analysis, "snapshot is frozen even without a winner")
}

func TestAnalyze_LiveWhileRunning(t *testing.T) {
	_, ctrl := setupController(t, 1)
	ctx := context.Background()

	exp := createRunning(t, ctrl, experiment.Config{Variants: twoVariants()})

	before, err := ctrl.Analyze(ctx, exp.ID)
	require.NoError(t, err)
	assert.Zero(t, before.Variants[0].SampleCount)

	require.NoError(t, ctrl.RecordMetric(ctx, exp.ID, exp.Variants[0].ID, store.MetricSample{QualityScore: 0.5}))

	after, err := ctrl.Analyze(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Variants[0].SampleCount)
}
