// Package stats computes population percentile and z-score statistics
// over a security's historical P/E ratio series, the read-only analog of
// the original source's pe_statistics.rs. The screening/recommendation
// scoring formulas built on top of these numbers are out of scope (spec
// §1 Non-goals); this package stops at the descriptive-statistics shape
// a caller would need to build that scoring on top of.
package stats

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Distribution summarizes a security's historical P/E values. Values are
// filtered to strictly-positive entries before any statistic is computed,
// matching the original's treatment of negative P/E as non-comparable.
type Distribution struct {
	Min          float64
	Max          float64
	Mean         float64
	Median       float64
	Percentile25 float64
	Percentile75 float64
	StdDev       float64
	DataPoints   int
}

// Calculate builds a Distribution from a raw P/E series in any order.
// Returns the zero Distribution when no strictly-positive value remains.
func Calculate(peValues []float64) Distribution {
	positive := make([]float64, 0, len(peValues))
	for _, v := range peValues {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) == 0 {
		return Distribution{}
	}
	sort.Float64s(positive)

	d := Distribution{
		Min:        positive[0],
		Max:        positive[len(positive)-1],
		Mean:       stat.Mean(positive, nil),
		DataPoints: len(positive),
	}
	d.Median = stat.Quantile(0.5, stat.Empirical, positive, nil)
	d.Percentile25 = stat.Quantile(0.25, stat.Empirical, positive, nil)
	d.Percentile75 = stat.Quantile(0.75, stat.Empirical, positive, nil)
	d.StdDev = stat.StdDev(positive, nil)
	return d
}

// ZScore reports how many standard deviations current sits from the
// distribution's mean. Returns 0 when the distribution has no spread
// (fewer than two data points, or StdDev is zero) since a z-score is
// undefined there.
func ZScore(current float64, d Distribution) float64 {
	if d.DataPoints < 2 || d.StdDev == 0 {
		return 0
	}
	return (current - d.Mean) / d.StdDev
}

// PercentileRank reports the fraction (0-100) of the distribution's
// values that are strictly below current, so the lowest value ranks 0.
// Returns 0 for an empty distribution.
func PercentileRank(current float64, sortedPositive []float64) float64 {
	n := len(sortedPositive)
	if n == 0 {
		return 0
	}
	idx := sort.SearchFloat64s(sortedPositive, current)
	return float64(idx) / float64(n) * 100
}

// InBottomDecile reports whether current falls in the distribution's
// bottom 10th percentile — the "P/E in bottom decile" read-model flag
// named in the original's value-screening surface.
func InBottomDecile(current float64, d Distribution, sortedPositive []float64) bool {
	if d.DataPoints == 0 {
		return false
	}
	return PercentileRank(current, sortedPositive) <= 10
}
