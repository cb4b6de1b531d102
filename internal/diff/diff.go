// Package diff compares two content versions: hash equality, quality
// metric deltas, and a field-level diff of the artifact payloads.
package diff

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/contentmill/contentmill/internal/store"
)

type ChangeKind string

const (
	FieldAdded   ChangeKind = "added"
	FieldRemoved ChangeKind = "removed"
	FieldChanged ChangeKind = "changed"
)

// FieldChange describes one top-level artifact field that differs
// between the compared versions.
type FieldChange struct {
	Field  string     `json:"field"`
	Change ChangeKind `json:"change"`
	From   any        `json:"from,omitempty"`
	To     any        `json:"to,omitempty"`
}

// Comparison is the result of comparing version A against version B.
// Metric deltas are B minus A.
type Comparison struct {
	VersionA     string             `json:"version_a"`
	VersionB     string             `json:"version_b"`
	HashesEqual  bool               `json:"hashes_equal"`
	MetricDeltas map[string]float64 `json:"metric_deltas"`
	FieldDiff    []FieldChange      `json:"field_diff"`
}

// Compare never mutates its inputs. Versions with equal content
// hashes are content-identical regardless of metadata, so the field
// diff is empty in that case by construction.
func Compare(a, b *store.Version) *Comparison {
	return &Comparison{
		VersionA:     a.ID,
		VersionB:     b.ID,
		HashesEqual:  a.ContentHash == b.ContentHash,
		MetricDeltas: metricDeltas(a.QualityMetrics, b.QualityMetrics),
		FieldDiff:    fieldDiff(a.Artifact, b.Artifact),
	}
}

func metricDeltas(a, b map[string]float64) map[string]float64 {
	deltas := make(map[string]float64)
	for name, av := range a {
		deltas[name] = b[name] - av
	}
	for name, bv := range b {
		if _, seen := a[name]; !seen {
			deltas[name] = bv
		}
	}
	return deltas
}

// fieldDiff compares the top-level JSON fields of two artifacts.
// Non-object artifacts produce a single "changed" entry when unequal.
func fieldDiff(a, b json.RawMessage) []FieldChange {
	var aFields, bFields map[string]any
	if json.Unmarshal(a, &aFields) != nil || json.Unmarshal(b, &bFields) != nil {
		if string(a) == string(b) {
			return nil
		}
		return []FieldChange{{Field: "", Change: FieldChanged}}
	}

	var changes []FieldChange
	for field, av := range aFields {
		bv, ok := bFields[field]
		if !ok {
			changes = append(changes, FieldChange{Field: field, Change: FieldRemoved, From: av})
			continue
		}
		if !reflect.DeepEqual(av, bv) {
			changes = append(changes, FieldChange{Field: field, Change: FieldChanged, From: av, To: bv})
		}
	}
	for field, bv := range bFields {
		if _, ok := aFields[field]; !ok {
			changes = append(changes, FieldChange{Field: field, Change: FieldAdded, To: bv})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}
