package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValues(t *testing.T) {
	got, err := parseKeyValues([]string{"tone=formal", "length=short"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tone": "formal", "length": "short"}, got)

	// Values may contain '='
	got, err = parseKeyValues([]string{"query=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "a=b", got["query"])

	got, err = parseKeyValues(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseKeyValues([]string{"no-separator"})
	assert.Error(t, err)

	_, err = parseKeyValues([]string{"=value"})
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList("a,b"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a , b "))
	assert.Equal(t, []string{"a"}, splitList("a,,"))
	assert.Nil(t, splitList(""))
}

func TestParseSplit(t *testing.T) {
	got, err := parseSplit("70,30")
	require.NoError(t, err)
	assert.Equal(t, []float64{70, 30}, got)

	got, err = parseSplit("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseSplit("70,lots")
	assert.Error(t, err)
}

func TestParseVariantMods(t *testing.T) {
	mods, err := parseVariantMods(
		[]string{"A:tone=formal", "A:length=short", "B:tone=casual"},
		[]string{"A", "B"},
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tone": "formal", "length": "short"}, mods["A"])
	assert.Equal(t, map[string]any{"tone": "casual"}, mods["B"])

	_, err = parseVariantMods([]string{"C:tone=formal"}, []string{"A", "B"})
	assert.Error(t, err, "unknown variant must be rejected")

	_, err = parseVariantMods([]string{"missing-colon=x"}, []string{"A"})
	assert.Error(t, err)

	mods, err = parseVariantMods(nil, []string{"A"})
	require.NoError(t, err)
	assert.Nil(t, mods)
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "0%", formatPercent(0))
	assert.Equal(t, "12.50%", formatPercent(0.125))
}
