package diff_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentmill/contentmill/internal/diff"
	"github.com/contentmill/contentmill/internal/store"
)

func version(id, hash, artifact string, metrics map[string]float64) *store.Version {
	return &store.Version{
		ID:             id,
		ContentHash:    hash,
		Artifact:       json.RawMessage(artifact),
		QualityMetrics: metrics,
	}
}

func TestCompare_SameVersionBothSides(t *testing.T) {
	v := version("v-1", "h1", `{"title":"x","body":"y"}`,
		map[string]float64{"quality_score": 0.8, "eeat_score": 0.6})

	c := diff.Compare(v, v)

	assert.Equal(t, "v-1", c.VersionA)
	assert.Equal(t, "v-1", c.VersionB)
	assert.True(t, c.HashesEqual)
	assert.Empty(t, c.FieldDiff)
	require.Len(t, c.MetricDeltas, 2)
	for name, delta := range c.MetricDeltas {
		assert.Zero(t, delta, "metric %s must have zero delta against itself", name)
	}
}

func TestCompare_IdenticalContent(t *testing.T) {
	a := version("v-1", "same", `{"title":"x"}`, nil)
	b := version("v-2", "same", `{"title":"x"}`, nil)

	c := diff.Compare(a, b)

	assert.Equal(t, "v-1", c.VersionA)
	assert.Equal(t, "v-2", c.VersionB)
	assert.True(t, c.HashesEqual)
	assert.Empty(t, c.FieldDiff)
}

func TestCompare_FieldChanges(t *testing.T) {
	a := version("v-1", "h1", `{"title":"old","tags":["go"],"draft":true}`, nil)
	b := version("v-2", "h2", `{"title":"new","body":"text","draft":true}`, nil)

	c := diff.Compare(a, b)
	require.False(t, c.HashesEqual)

	changes := make(map[string]diff.FieldChange)
	for _, fc := range c.FieldDiff {
		changes[fc.Field] = fc
	}

	require.Len(t, changes, 3)
	assert.Equal(t, diff.FieldChanged, changes["title"].Change)
	assert.Equal(t, "old", changes["title"].From)
	assert.Equal(t, "new", changes["title"].To)
	assert.Equal(t, diff.FieldAdded, changes["body"].Change)
	assert.Equal(t, diff.FieldRemoved, changes["tags"].Change)
	assert.NotContains(t, changes, "draft")
}

func TestCompare_FieldDiffSorted(t *testing.T) {
	a := version("v-1", "h1", `{"zeta":1,"alpha":1}`, nil)
	b := version("v-2", "h2", `{"zeta":2,"alpha":2}`, nil)

	c := diff.Compare(a, b)
	require.Len(t, c.FieldDiff, 2)
	assert.Equal(t, "alpha", c.FieldDiff[0].Field)
	assert.Equal(t, "zeta", c.FieldDiff[1].Field)
}

func TestCompare_MetricDeltas(t *testing.T) {
	a := version("v-1", "h1", `{}`, map[string]float64{"quality_score": 0.6, "only_a": 1})
	b := version("v-2", "h2", `{}`, map[string]float64{"quality_score": 0.8, "only_b": 2})

	c := diff.Compare(a, b)

	// Deltas are B minus A; one-sided metrics diff against zero
	assert.InDelta(t, 0.2, c.MetricDeltas["quality_score"], 1e-9)
	assert.InDelta(t, -1, c.MetricDeltas["only_a"], 1e-9)
	assert.InDelta(t, 2, c.MetricDeltas["only_b"], 1e-9)
}
