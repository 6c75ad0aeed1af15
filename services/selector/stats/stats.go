// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats implements the statistical primitives the comparative
// validator is built on: Welch's t-test, 2x2 categorical tests with an exact
// fallback, percentile bootstrap intervals, and the two-sample
// Kolmogorov-Smirnov test.
//
// Degenerate inputs (too few samples, zero variance, empty margins) return
// the sentinel errors below; callers translate them into "insufficient data"
// results rather than failures, so a multi-test comparison can still report
// its remaining tests.
package stats

import (
	"errors"
	"math"
	"sort"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInsufficientSamples indicates not enough samples for analysis.
	ErrInsufficientSamples = errors.New("insufficient samples for statistical analysis")

	// ErrZeroVariance indicates a sample set has zero variance.
	ErrZeroVariance = errors.New("sample set has zero variance")
)

// -----------------------------------------------------------------------------
// Welch's t-test
// -----------------------------------------------------------------------------

// TTestResult holds the results of a t-test.
type TTestResult struct {
	// TStatistic is the computed t-statistic.
	TStatistic float64

	// PValue is the two-tailed p-value.
	PValue float64

	// DegreesOfFreedom is the Welch-Satterthwaite df.
	DegreesOfFreedom float64

	// Significant is true if PValue < significance level.
	Significant bool

	// SignificanceLevel is the alpha used (e.g., 0.05).
	SignificanceLevel float64
}

// WelchTTest performs Welch's t-test for two sample sets.
//
// Description:
//
//	Welch's t-test is used when the two samples may have unequal variances.
//	It does not assume equal population variances, making it more robust
//	than Student's t-test.
//
// Inputs:
//   - samples1: First sample set. Must have at least 2 samples.
//   - samples2: Second sample set. Must have at least 2 samples.
//   - alpha: Significance level (e.g., 0.05 for 95% confidence).
//
// Outputs:
//   - *TTestResult: Test results with t-statistic, p-value, and significance.
//   - error: ErrInsufficientSamples or ErrZeroVariance.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func WelchTTest(samples1, samples2 []float64, alpha float64) (*TTestResult, error) {
	if len(samples1) < 2 || len(samples2) < 2 {
		return nil, ErrInsufficientSamples
	}

	mean1 := Mean(samples1)
	mean2 := Mean(samples2)

	var1 := sampleVariance(samples1, mean1)
	var2 := sampleVariance(samples2, mean2)

	n1 := float64(len(samples1))
	n2 := float64(len(samples2))

	se := math.Sqrt(var1/n1 + var2/n2)
	if se == 0 {
		return nil, ErrZeroVariance
	}

	tStat := (mean1 - mean2) / se

	// Welch-Satterthwaite degrees of freedom
	num := math.Pow(var1/n1+var2/n2, 2)
	denom := math.Pow(var1/n1, 2)/(n1-1) + math.Pow(var2/n2, 2)/(n2-1)
	if denom == 0 {
		return nil, ErrZeroVariance
	}
	df := num / denom

	pValue := tDistributionPValue(math.Abs(tStat), df)

	return &TTestResult{
		TStatistic:        tStat,
		PValue:            pValue,
		DegreesOfFreedom:  df,
		Significant:       pValue < alpha,
		SignificanceLevel: alpha,
	}, nil
}

// -----------------------------------------------------------------------------
// Confidence Intervals
// -----------------------------------------------------------------------------

// ConfidenceInterval represents a statistical confidence interval.
type ConfidenceInterval struct {
	// Lower is the lower bound.
	Lower float64 `json:"lower"`

	// Upper is the upper bound.
	Upper float64 `json:"upper"`

	// Level is the confidence level (e.g., 0.95).
	Level float64 `json:"level"`

	// Center is the point estimate.
	Center float64 `json:"center"`
}

// Contains returns true if the interval contains the value.
func (ci *ConfidenceInterval) Contains(v float64) bool {
	return v >= ci.Lower && v <= ci.Upper
}

// Width returns the interval width.
func (ci *ConfidenceInterval) Width() float64 {
	return ci.Upper - ci.Lower
}

// PercentileInterval builds the empirical percentile interval of bootstrap
// draws.
//
// Inputs:
//   - draws: Bootstrap statistic values, one per resampling iteration. Must
//     be non-empty; the slice is sorted in place.
//   - level: Confidence level (e.g., 0.95 for the 2.5/97.5 interval).
//   - center: Point estimate on the original (unresampled) data.
//
// Outputs:
//   - *ConfidenceInterval: Percentile-method interval.
//   - error: ErrInsufficientSamples when draws is empty.
func PercentileInterval(draws []float64, level float64, center float64) (*ConfidenceInterval, error) {
	if len(draws) == 0 {
		return nil, ErrInsufficientSamples
	}
	sort.Float64s(draws)

	alphaLower := (1 - level) / 2
	alphaUpper := 1 - alphaLower

	lowerIdx := int(alphaLower * float64(len(draws)))
	upperIdx := int(alphaUpper * float64(len(draws)))
	if lowerIdx < 0 {
		lowerIdx = 0
	}
	if upperIdx >= len(draws) {
		upperIdx = len(draws) - 1
	}

	return &ConfidenceInterval{
		Lower:  draws[lowerIdx],
		Upper:  draws[upperIdx],
		Level:  level,
		Center: center,
	}, nil
}

// -----------------------------------------------------------------------------
// Descriptive helpers
// -----------------------------------------------------------------------------

// Mean calculates the arithmetic mean. Returns 0 for an empty slice.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// Percentile returns the p-th percentile (0-100) of the samples using linear
// interpolation between order statistics. The input slice is sorted in place.
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	sort.Float64s(samples)
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	rank := p / 100 * float64(len(samples)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return samples[lo]
	}
	frac := rank - float64(lo)
	return samples[lo]*(1-frac) + samples[hi]*frac
}

// sampleVariance calculates the unbiased (n-1) sample variance.
func sampleVariance(samples []float64, mean float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		diff := s - mean
		sumSq += diff * diff
	}
	return sumSq / float64(len(samples)-1)
}

// normalCDF approximates the standard normal CDF.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt(2)))
}

// tDistributionPValue approximates the two-tailed p-value.
func tDistributionPValue(t, df float64) float64 {
	if df <= 0 {
		return 1
	}

	// For large df the t-distribution is close to normal.
	if df >= 30 {
		return 2 * (1 - normalCDF(t))
	}

	var pValue float64
	if df < 2 {
		// The variance widening below is undefined for df < 2, which a
		// Welch df reaches whenever one group has exactly two samples.
		// Fall back to the Cauchy (df=1) tail, the heaviest in this range.
		pValue = 1 - 2*math.Atan(t)/math.Pi
	} else {
		// Small df: widen the statistic to approximate the heavier tails.
		adjustedT := t * math.Sqrt(df/(df-2+0.001))
		pValue = 2 * (1 - normalCDF(adjustedT))
	}

	if math.IsNaN(pValue) || pValue > 1 {
		pValue = 1
	}
	if pValue < 0 {
		pValue = 0
	}
	return pValue
}
