package stats

import (
	"github.com/contentmill/contentmill/internal/store"
)

// Metric names recognized by winner scoring. Only metrics listed in
// an experiment's successMetrics contribute to the weighted score.
const (
	MetricQuality    = "quality_score"
	MetricEEAT       = "eeat_score"
	MetricEngagement = "engagement_score"
	MetricConversion = "conversion_rate"
)

var winnerWeights = map[string]float64{
	MetricQuality:    0.4,
	MetricEEAT:       0.3,
	MetricEngagement: 0.2,
	MetricConversion: 0.1,
}

const lowSampleNote = "insufficient samples for significance testing (need 30 per compared variant)"

// VariantResult contains aggregated statistics for a single variant.
type VariantResult struct {
	VariantID       string             `json:"variant_id"`
	Name            string             `json:"name"`
	SampleCount     int                `json:"sample_count"`
	QualityMean     float64            `json:"quality_mean"`
	QualityStdDev   float64            `json:"quality_std_dev"`
	EngagementMean  float64            `json:"engagement_mean"`
	ConversionRate  float64            `json:"conversion_rate"`
	ConversionLower float64            `json:"conversion_ci_lower"`
	ConversionUpper float64            `json:"conversion_ci_upper"`
	AvgProcessingMs float64            `json:"avg_processing_ms"`
	MetricMeans     map[string]float64 `json:"metric_means"`
}

// AnalysisResult is the outcome of analyzing a running experiment,
// and the snapshot frozen onto the experiment row when it stops.
type AnalysisResult struct {
	ExperimentID  string          `json:"experiment_id"`
	Variants      []VariantResult `json:"variants"`
	ComparedA     string          `json:"compared_a,omitempty"`
	ComparedB     string          `json:"compared_b,omitempty"`
	TStatistic    float64         `json:"t_statistic"`
	PValue        float64         `json:"p_value"`
	IsSignificant bool            `json:"is_significant"`
	Note          string          `json:"note,omitempty"`
	// WinnerVariantID is set when the experiment is stopped with a
	// declared winner.
	WinnerVariantID *string `json:"winner_variant_id,omitempty"`
}

// Analyze aggregates per-variant sample statistics and runs a
// two-sample comparison between the two variants with the most
// samples. versionMetricMeans contributes metric means (eeat and any
// other scored metric) computed from versions tagged with the
// experiment's variants.
func Analyze(exp *store.Experiment, aggregates []store.VariantAggregate, versionMetricMeans map[string]map[string]float64) *AnalysisResult {
	byVariant := make(map[string]store.VariantAggregate, len(aggregates))
	for _, a := range aggregates {
		byVariant[a.VariantID] = a
	}

	result := &AnalysisResult{
		ExperimentID: exp.ID,
		Variants:     make([]VariantResult, len(exp.Variants)),
	}

	for i, variant := range exp.Variants {
		agg := byVariant[variant.ID] // zero-valued when no samples yet

		ciLower, ciUpper := WilsonInterval(agg.Conversions, agg.SampleCount, 0.95)

		means := map[string]float64{
			MetricQuality:    agg.QualityMean(),
			MetricEngagement: agg.EngagementMean(),
			MetricConversion: agg.ConversionRate(),
		}
		for name, mean := range versionMetricMeans[variant.ID] {
			if _, fromSamples := means[name]; !fromSamples {
				means[name] = mean
			}
		}

		avgProcessing := 0.0
		if agg.SampleCount > 0 {
			avgProcessing = float64(agg.ProcessingSumMs) / float64(agg.SampleCount)
		}

		result.Variants[i] = VariantResult{
			VariantID:       variant.ID,
			Name:            variant.Name,
			SampleCount:     agg.SampleCount,
			QualityMean:     agg.QualityMean(),
			QualityStdDev:   agg.QualityStdDev(),
			EngagementMean:  agg.EngagementMean(),
			ConversionRate:  agg.ConversionRate(),
			ConversionLower: ciLower,
			ConversionUpper: ciUpper,
			AvgProcessingMs: avgProcessing,
			MetricMeans:     means,
		}
	}

	compareVariants(result, exp.ConfidenceLevel)
	return result
}

// compareVariants runs the two-sample t comparison between the two
// variants with the highest sample counts, first-in-order on ties.
func compareVariants(result *AnalysisResult, confidenceLevel float64) {
	if len(result.Variants) < 2 {
		result.PValue = PValueBucket(0)
		result.Note = lowSampleNote
		return
	}

	first, second := 0, 1
	if result.Variants[second].SampleCount > result.Variants[first].SampleCount {
		first, second = second, first
	}
	for i := 2; i < len(result.Variants); i++ {
		if result.Variants[i].SampleCount > result.Variants[first].SampleCount {
			second = first
			first = i
		} else if result.Variants[i].SampleCount > result.Variants[second].SampleCount {
			second = i
		}
	}

	a, b := result.Variants[first], result.Variants[second]
	result.ComparedA = a.VariantID
	result.ComparedB = b.VariantID
	result.TStatistic = TStatistic(a.SampleCount, a.QualityMean, a.QualityStdDev,
		b.SampleCount, b.QualityMean, b.QualityStdDev)
	result.PValue = PValueBucket(result.TStatistic)

	if a.SampleCount < MinComparisonSamples || b.SampleCount < MinComparisonSamples {
		result.IsSignificant = false
		result.Note = lowSampleNote
		return
	}

	result.IsSignificant = result.PValue < 1-confidenceLevel
}

// DetermineWinner scores each variant as a weighted combination of
// the experiment's success metrics and returns the id of the highest
// scorer. Ties resolve to the first variant in order. Returns nil
// when no variant has any samples.
func DetermineWinner(result *AnalysisResult, successMetrics []string) *string {
	var winner *string
	bestScore := 0.0
	anySamples := false

	for i := range result.Variants {
		v := &result.Variants[i]
		if v.SampleCount == 0 {
			continue
		}
		anySamples = true

		score := 0.0
		for _, metric := range successMetrics {
			weight, scored := winnerWeights[metric]
			if !scored {
				continue
			}
			score += weight * v.MetricMeans[metric]
		}

		if winner == nil || score > bestScore {
			winner = &v.VariantID
			bestScore = score
		}
	}

	if !anySamples {
		return nil
	}
	return winner
}
