package stats

import "math"

// MinComparisonSamples is the per-variant sample floor below which no
// significance claim is made, regardless of the mean difference.
const MinComparisonSamples = 30

// TStatistic computes the two-sample t-statistic
// (mean2-mean1)/pooledStdErr for the given variant summaries.
// Returns 0 when the pooled standard error is zero.
func TStatistic(n1 int, mean1, std1 float64, n2 int, mean2, std2 float64) float64 {
	if n1 == 0 || n2 == 0 {
		return 0
	}

	stderr := math.Sqrt(std1*std1/float64(n1) + std2*std2/float64(n2))
	if stderr == 0 {
		return 0
	}

	return (mean2 - mean1) / stderr
}

// PValueBucket maps |t| to a discrete p-value via a monotone
// threshold table. This deliberately mirrors the platform's original
// four-bucket behavior instead of an exact Student's-t CDF, so
// significance calls stay comparable across releases.
func PValueBucket(t float64) float64 {
	abs := math.Abs(t)
	switch {
	case abs > 2.576:
		return 0.01
	case abs > 1.96:
		return 0.05
	case abs > 1.645:
		return 0.10
	default:
		return 0.20
	}
}
