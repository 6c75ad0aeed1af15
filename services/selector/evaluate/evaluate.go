// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evaluate computes confusion-matrix metrics, cost aggregates, and
// yield summaries for a (records, ground truth, selection) triple.
//
// All rate denominators degrade to 0.0 rather than NaN, except cost per
// catch, which is defined as +Inf when nothing high-risk was caught.
package evaluate

import (
	"errors"
	"fmt"
	"math"

	"github.com/AleutianAI/metrosel/services/selector/records"
)

// ErrLengthMismatch indicates a mask whose length does not match the record
// set.
var ErrLengthMismatch = errors.New("mask length does not match record set")

// Metrics is the read-only evaluation of one selection against ground truth.
//
// Invariants: TP+FN == NHighRisk and TP+FP+FN+TN == NTotal.
type Metrics struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TN int `json:"tn"`

	NTotal    int `json:"n_total"`
	NHighRisk int `json:"n_high_risk"`
	NSelected int `json:"n_selected"`

	// Rates are 0.0, not NaN, when their denominator is zero.
	Recall            float64 `json:"recall"`
	Precision         float64 `json:"precision"`
	F1                float64 `json:"f1"`
	Specificity       float64 `json:"specificity"`
	FalsePositiveRate float64 `json:"false_positive_rate"`

	// TotalCost is NSelected times the unit cost, in absolute cost units.
	// Report-facing consumers should use Normalized instead.
	TotalCost float64 `json:"-"`

	// CostPerCatch is TotalCost/TP, +Inf when TP is zero.
	CostPerCatch float64 `json:"-"`

	MeanYieldSelected   float64 `json:"mean_yield_selected"`
	MeanYieldUnselected float64 `json:"mean_yield_unselected"`
	MeanYieldAll        float64 `json:"mean_yield_all"`
}

// Normalized is the currency-free view of Metrics: unit counts, fractions
// and ratios only. This is the externally safe default for any
// human-readable report; absolute cost figures never leave the core unless
// a caller explicitly reads Metrics.TotalCost.
type Normalized struct {
	UnitsSelected    int     `json:"units_selected"`
	SelectedFraction float64 `json:"selected_fraction"`

	// UnitsPerCatch is inspections spent per caught high-risk record.
	// Encoded as null in JSON when nothing was caught.
	UnitsPerCatch *float64 `json:"units_per_catch"`

	Recall            float64 `json:"recall"`
	Precision         float64 `json:"precision"`
	F1                float64 `json:"f1"`
	Specificity       float64 `json:"specificity"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// Evaluate scores one selection mask against the high-risk ground truth.
//
// Inputs:
//   - set: The evaluated record set.
//   - highRisk: Ground-truth mask aligned to set row order.
//   - selected: Selection mask aligned to set row order.
//   - unitCost: Cost of one measurement; must be non-negative.
//
// Outputs:
//   - *Metrics: The derived metrics.
//   - error: ErrLengthMismatch when a mask is misaligned.
//
// Thread Safety: Pure function; safe for concurrent use.
func Evaluate(set *records.Set, highRisk, selected []bool, unitCost float64) (*Metrics, error) {
	n := set.Len()
	if len(highRisk) != n || len(selected) != n {
		return nil, fmt.Errorf("%w: n=%d, ground truth=%d, selection=%d",
			ErrLengthMismatch, n, len(highRisk), len(selected))
	}

	m := &Metrics{NTotal: n}
	var sumSel, sumUnsel, sumAll float64
	for i := 0; i < n; i++ {
		y := set.At(i).Yield
		sumAll += y
		switch {
		case selected[i] && highRisk[i]:
			m.TP++
		case selected[i] && !highRisk[i]:
			m.FP++
		case !selected[i] && highRisk[i]:
			m.FN++
		default:
			m.TN++
		}
		if selected[i] {
			m.NSelected++
			sumSel += y
		} else {
			sumUnsel += y
		}
	}
	m.NHighRisk = m.TP + m.FN

	m.Recall = safeRate(m.TP, m.TP+m.FN)
	m.Precision = safeRate(m.TP, m.TP+m.FP)
	m.Specificity = safeRate(m.TN, m.TN+m.FP)
	m.FalsePositiveRate = safeRate(m.FP, m.FP+m.TN)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}

	m.TotalCost = float64(m.NSelected) * unitCost
	if m.TP == 0 {
		m.CostPerCatch = math.Inf(1)
	} else {
		m.CostPerCatch = m.TotalCost / float64(m.TP)
	}

	if m.NSelected > 0 {
		m.MeanYieldSelected = sumSel / float64(m.NSelected)
	}
	if unsel := n - m.NSelected; unsel > 0 {
		m.MeanYieldUnselected = sumUnsel / float64(unsel)
	}
	m.MeanYieldAll = sumAll / float64(n)

	return m, nil
}

// Normalized returns the currency-free view of the metrics.
func (m *Metrics) Normalized() *Normalized {
	norm := &Normalized{
		UnitsSelected:     m.NSelected,
		SelectedFraction:  safeRate(m.NSelected, m.NTotal),
		Recall:            m.Recall,
		Precision:         m.Precision,
		F1:                m.F1,
		Specificity:       m.Specificity,
		FalsePositiveRate: m.FalsePositiveRate,
	}
	if m.TP > 0 {
		upc := float64(m.NSelected) / float64(m.TP)
		norm.UnitsPerCatch = &upc
	}
	return norm
}

// safeRate divides counts, returning 0.0 on a zero denominator.
func safeRate(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
