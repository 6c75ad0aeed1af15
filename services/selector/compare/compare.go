// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compare runs the baseline-versus-candidate statistical validation:
// a Welch t-test on the yields of the two selected subsets, a 2x2
// categorical test on catch counts, and a seeded bootstrap confidence
// interval on a metric difference.
//
// Degenerate statistical situations (an empty selected subset, zero
// variance, an empty contingency margin) are not errors here: the affected
// sub-test reports StatusInsufficientData and the remaining tests still run.
package compare

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/AleutianAI/metrosel/services/selector/evaluate"
	"github.com/AleutianAI/metrosel/services/selector/policy"
	"github.com/AleutianAI/metrosel/services/selector/records"
	"github.com/AleutianAI/metrosel/services/selector/risk"
	"github.com/AleutianAI/metrosel/services/selector/stats"
)

// Status marks whether a sub-test produced a usable result.
type Status string

const (
	// StatusOK means the test ran normally.
	StatusOK Status = "ok"

	// StatusInsufficientData means the test hit a degenerate case (empty
	// subset, zero variance, empty margin) and reports no verdict.
	StatusInsufficientData Status = "insufficient_data"
)

// Metric selects which quantity the bootstrap interval is computed on.
type Metric string

const (
	// MetricRecall bootstraps the recall difference.
	MetricRecall Metric = "recall"

	// MetricCost bootstraps the normalized cost difference (selected
	// fraction of the set, a currency-free quantity).
	MetricCost Metric = "normalized_cost"
)

// ErrInvalidMetric indicates an unsupported bootstrap metric.
var ErrInvalidMetric = errors.New("unsupported bootstrap metric")

// YieldTest is the quality-of-selection comparison: do the two policies
// select populations with different outcome distributions?
type YieldTest struct {
	Status           Status  `json:"status"`
	TStatistic       float64 `json:"t_statistic"`
	PValue           float64 `json:"p_value"`
	DegreesOfFreedom float64 `json:"degrees_of_freedom"`
	Significant      bool    `json:"significant"`
}

// CategoricalTest compares (caught, missed) counts between the two methods.
type CategoricalTest struct {
	Status      Status  `json:"status"`
	Statistic   float64 `json:"statistic"`
	PValue      float64 `json:"p_value"`
	Exact       bool    `json:"exact"`
	Significant bool    `json:"significant"`
}

// BootstrapTest is the resampling interval on the candidate-minus-baseline
// metric difference.
type BootstrapTest struct {
	Status      Status                    `json:"status"`
	Metric      Metric                    `json:"metric"`
	Interval    *stats.ConfidenceInterval `json:"interval,omitempty"`
	Iterations  int                       `json:"iterations"`
	Seed        int64                     `json:"seed"`
	Significant bool                      `json:"significant"`
}

// Result is one baseline-versus-candidate comparison.
type Result struct {
	Baseline  string `json:"baseline"`
	Candidate string `json:"candidate"`

	Yield       YieldTest       `json:"yield_test"`
	Categorical CategoricalTest `json:"categorical_test"`
	Bootstrap   BootstrapTest   `json:"bootstrap_test"`

	// RecallDelta is candidate recall minus baseline recall.
	RecallDelta float64 `json:"recall_delta"`

	// SelectedFractionDelta is the normalized cost difference: candidate
	// selected fraction minus baseline selected fraction. Always expressed
	// as a ratio, never a currency amount.
	SelectedFractionDelta float64 `json:"selected_fraction_delta"`

	Alpha float64 `json:"alpha"`
}

// Validator runs the three-test comparison between two selection policies on
// an identical record set and ground truth.
type Validator struct {
	// Alpha is the significance level, fixed at 0.05 for this system.
	Alpha float64

	// Quantile is the high-risk labeling quantile, re-applied to every
	// bootstrap draw so ground truth tracks the resampled population.
	Quantile float64

	// BootstrapIterations is the resample count. Values below 100 are
	// raised to 100.
	BootstrapIterations int

	// BootstrapSeed feeds the resampling generator. Explicit, never
	// ambient, so comparisons are reproducible.
	BootstrapSeed int64

	// BootstrapMetric picks which difference the interval is computed on.
	BootstrapMetric Metric
}

// Compare evaluates baseline and candidate on the same records and ground
// truth and runs the three sub-tests.
//
// Description:
//
//	The yield test compares the yield values of the two selected subsets.
//	The categorical test compares (TP, FN) counts. The bootstrap test
//	resamples the record set with replacement, re-labels ground truth and
//	re-runs both policies on every draw, and reports the empirical
//	2.5/97.5 percentile interval of the metric difference, flagged
//	significant when it excludes zero.
//
// Outputs:
//   - *Result: The comparison. Sub-tests that hit degenerate data carry
//     StatusInsufficientData instead of failing the comparison.
//   - error: Configuration or selection failures only.
func (v *Validator) Compare(set *records.Set, highRisk []bool, baseline, candidate policy.Selector) (*Result, error) {
	if v.BootstrapMetric != MetricRecall && v.BootstrapMetric != MetricCost {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMetric, v.BootstrapMetric)
	}

	baseSel, err := baseline.Select(set)
	if err != nil {
		return nil, fmt.Errorf("baseline selection: %w", err)
	}
	candSel, err := candidate.Select(set)
	if err != nil {
		return nil, fmt.Errorf("candidate selection: %w", err)
	}

	baseMask := baseSel.Mask(set)
	candMask := candSel.Mask(set)

	baseMetrics, err := evaluate.Evaluate(set, highRisk, baseMask, 1)
	if err != nil {
		return nil, err
	}
	candMetrics, err := evaluate.Evaluate(set, highRisk, candMask, 1)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Baseline:              baseline.Name(),
		Candidate:             candidate.Name(),
		Alpha:                 v.Alpha,
		RecallDelta:           candMetrics.Recall - baseMetrics.Recall,
		SelectedFractionDelta: selectedFraction(candMetrics) - selectedFraction(baseMetrics),
	}

	result.Yield = v.yieldTest(set, baseMask, candMask)
	result.Categorical = v.categoricalTest(baseMetrics, candMetrics)

	boot, err := v.bootstrapTest(set, baseline, candidate)
	if err != nil {
		return nil, err
	}
	result.Bootstrap = *boot

	return result, nil
}

// yieldTest compares the selected subsets' yield distributions.
func (v *Validator) yieldTest(set *records.Set, baseMask, candMask []bool) YieldTest {
	baseYields := maskedYields(set, baseMask)
	candYields := maskedYields(set, candMask)

	tt, err := stats.WelchTTest(baseYields, candYields, v.Alpha)
	if err != nil {
		// Empty subset or degenerate variance: sentinel, not failure.
		return YieldTest{Status: StatusInsufficientData}
	}
	if math.IsNaN(tt.PValue) || math.IsInf(tt.PValue, 0) {
		// A non-finite p-value must never reach a JSON report.
		return YieldTest{Status: StatusInsufficientData}
	}
	return YieldTest{
		Status:           StatusOK,
		TStatistic:       tt.TStatistic,
		PValue:           tt.PValue,
		DegreesOfFreedom: tt.DegreesOfFreedom,
		Significant:      tt.Significant,
	}
}

// categoricalTest compares catch/miss counts between the two methods.
func (v *Validator) categoricalTest(base, cand *evaluate.Metrics) CategoricalTest {
	ct, err := stats.TwoByTwoTest(base.TP, base.FN, cand.TP, cand.FN, v.Alpha)
	if err != nil {
		return CategoricalTest{Status: StatusInsufficientData}
	}
	return CategoricalTest{
		Status:      StatusOK,
		Statistic:   ct.Statistic,
		PValue:      ct.PValue,
		Exact:       ct.Exact,
		Significant: ct.Significant,
	}
}

// bootstrapTest resamples the shared record set and recomputes both methods'
// metric each draw.
func (v *Validator) bootstrapTest(set *records.Set, baseline, candidate policy.Selector) (*BootstrapTest, error) {
	iters := v.BootstrapIterations
	if iters < 100 {
		iters = 100
	}
	rng := rand.New(rand.NewSource(v.BootstrapSeed))

	diffs := make([]float64, 0, iters)
	for i := 0; i < iters; i++ {
		draw := set.Resample(rng)
		diff, ok, err := v.metricDiff(draw, baseline, candidate)
		if err != nil {
			return nil, fmt.Errorf("bootstrap draw %d: %w", i, err)
		}
		if ok {
			diffs = append(diffs, diff)
		}
	}
	if len(diffs) == 0 {
		return &BootstrapTest{Status: StatusInsufficientData, Metric: v.BootstrapMetric}, nil
	}

	center, ok, err := v.metricDiff(set, baseline, candidate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &BootstrapTest{Status: StatusInsufficientData, Metric: v.BootstrapMetric}, nil
	}

	ci, err := stats.PercentileInterval(diffs, 0.95, center)
	if err != nil {
		return &BootstrapTest{Status: StatusInsufficientData, Metric: v.BootstrapMetric}, nil
	}

	return &BootstrapTest{
		Status:      StatusOK,
		Metric:      v.BootstrapMetric,
		Interval:    ci,
		Iterations:  iters,
		Seed:        v.BootstrapSeed,
		Significant: !ci.Contains(0),
	}, nil
}

// metricDiff computes candidate minus baseline for the configured metric on
// one (possibly resampled) record set. ok is false when ground truth
// labeling degenerates (k=0 on a tiny draw).
func (v *Validator) metricDiff(set *records.Set, baseline, candidate policy.Selector) (float64, bool, error) {
	mask, _, err := risk.Label(set, v.Quantile)
	if err != nil {
		return 0, false, err
	}

	baseSel, err := baseline.Select(set)
	if err != nil {
		return 0, false, err
	}
	candSel, err := candidate.Select(set)
	if err != nil {
		return 0, false, err
	}

	baseM, err := evaluate.Evaluate(set, mask, baseSel.Mask(set), 1)
	if err != nil {
		return 0, false, err
	}
	candM, err := evaluate.Evaluate(set, mask, candSel.Mask(set), 1)
	if err != nil {
		return 0, false, err
	}

	switch v.BootstrapMetric {
	case MetricRecall:
		if baseM.NHighRisk == 0 {
			return 0, false, nil
		}
		return candM.Recall - baseM.Recall, true, nil
	case MetricCost:
		return selectedFraction(candM) - selectedFraction(baseM), true, nil
	default:
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidMetric, v.BootstrapMetric)
	}
}

func selectedFraction(m *evaluate.Metrics) float64 {
	if m.NTotal == 0 {
		return 0
	}
	return float64(m.NSelected) / float64(m.NTotal)
}

func maskedYields(set *records.Set, mask []bool) []float64 {
	var out []float64
	for i := 0; i < set.Len(); i++ {
		if mask[i] {
			out = append(out, set.At(i).Yield)
		}
	}
	return out
}
