// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sweep tests the robustness of a selection advantage: the
// sensitivity sweep recomputes both methods across a grid of cost ratios and
// classifies dominance per point, and the multi-seed sweep builds the random
// policy's recall reference band.
//
// A sweep is a robustness signal over the whole grid, never a single-point
// claim. Grid points and seeds are independent: every point builds its own
// selectors and shares no accumulator, so callers may parallelize freely.
package sweep

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/metrosel/services/selector/evaluate"
	"github.com/AleutianAI/metrosel/services/selector/policy"
	"github.com/AleutianAI/metrosel/services/selector/records"
	"github.com/AleutianAI/metrosel/services/selector/stats"
)

// domEps is the tolerance band for normalized-cost and recall equality at a
// grid point. Cost ratios are floats; exact comparison would flip dominance
// classes on rounding noise.
const domEps = 1e-9

var (
	// ErrEmptyGrid indicates a sensitivity sweep without cost ratios.
	ErrEmptyGrid = errors.New("cost ratio grid must not be empty")

	// ErrInvalidSeedCount indicates a multi-seed sweep with no seeds.
	ErrInvalidSeedCount = errors.New("seed count must be positive")
)

// Dominance classifies one grid point. DominanceNone is a normal outcome,
// not an error.
type Dominance string

const (
	// DominanceRecall: equal-or-lower normalized cost, strictly higher
	// recall.
	DominanceRecall Dominance = "recall_dominance"

	// DominanceCost: equal-or-higher recall, strictly lower normalized
	// cost.
	DominanceCost Dominance = "cost_dominance"

	// DominanceNone: neither condition holds.
	DominanceNone Dominance = "none"
)

// SelectorFactory builds a policy for one cost ratio. The budgeted policy
// changes shape with the ratio (the budget buys fewer measurements as unit
// cost rises); rate-based policies may ignore it.
type SelectorFactory func(costRatio float64) (policy.Selector, error)

// Point is one method's outcome at one grid point.
type Point struct {
	CostRatio float64 `json:"cost_ratio"`
	Method    string  `json:"method"`

	// NormalizedCost is total cost over record count, a currency-free
	// ratio suitable for external reporting.
	NormalizedCost float64 `json:"normalized_cost"`

	Recall float64 `json:"recall"`

	// DominanceType is filled on the framework row of each grid point;
	// baseline rows carry "none".
	DominanceType Dominance `json:"dominance_type"`
}

// SensitivityResult is the full sweep table plus dominance tallies.
type SensitivityResult struct {
	Points []Point `json:"points"`

	RecallDominanceCount int `json:"recall_dominance_count"`
	CostDominanceCount   int `json:"cost_dominance_count"`
	NoneCount            int `json:"none_count"`
}

// Sensitivity sweeps framework versus baseline across a cost-ratio grid.
type Sensitivity struct {
	// Ratios is the cost-ratio grid.
	Ratios []float64

	// Baseline and Framework build the two methods at each ratio.
	Baseline  SelectorFactory
	Framework SelectorFactory
}

// Run executes the sweep against one record set and ground truth.
//
// Description:
//
//	For each ratio r the two selectors are rebuilt, run, and evaluated at
//	unit cost r; the framework row is classified against the baseline row
//	with the domEps tolerance band. Tallies across the grid are the
//	robustness signal.
func (s *Sensitivity) Run(set *records.Set, highRisk []bool) (*SensitivityResult, error) {
	if len(s.Ratios) == 0 {
		return nil, ErrEmptyGrid
	}

	result := &SensitivityResult{Points: make([]Point, 0, 2*len(s.Ratios))}
	for _, ratio := range s.Ratios {
		base, err := s.evaluateAt(set, highRisk, s.Baseline, ratio)
		if err != nil {
			return nil, fmt.Errorf("baseline at ratio %v: %w", ratio, err)
		}
		fw, err := s.evaluateAt(set, highRisk, s.Framework, ratio)
		if err != nil {
			return nil, fmt.Errorf("framework at ratio %v: %w", ratio, err)
		}

		dom := classify(base, fw)
		switch dom {
		case DominanceRecall:
			result.RecallDominanceCount++
		case DominanceCost:
			result.CostDominanceCount++
		default:
			result.NoneCount++
		}

		result.Points = append(result.Points,
			Point{CostRatio: ratio, Method: "baseline", NormalizedCost: base.normCost, Recall: base.recall, DominanceType: DominanceNone},
			Point{CostRatio: ratio, Method: "framework", NormalizedCost: fw.normCost, Recall: fw.recall, DominanceType: dom},
		)
	}
	return result, nil
}

type sweepEval struct {
	normCost float64
	recall   float64
}

func (s *Sensitivity) evaluateAt(set *records.Set, highRisk []bool, build SelectorFactory, ratio float64) (*sweepEval, error) {
	sel, err := build(ratio)
	if err != nil {
		return nil, err
	}
	selection, err := sel.Select(set)
	if err != nil {
		return nil, err
	}
	m, err := evaluate.Evaluate(set, highRisk, selection.Mask(set), ratio)
	if err != nil {
		return nil, err
	}
	return &sweepEval{
		normCost: m.TotalCost / float64(m.NTotal),
		recall:   m.Recall,
	}, nil
}

// classify applies the dominance rules with the tolerance band.
func classify(base, fw *sweepEval) Dominance {
	switch {
	case fw.normCost <= base.normCost+domEps && fw.recall > base.recall+domEps:
		return DominanceRecall
	case fw.recall >= base.recall-domEps && fw.normCost < base.normCost-domEps:
		return DominanceCost
	default:
		return DominanceNone
	}
}

// -----------------------------------------------------------------------------
// Multi-seed sweep
// -----------------------------------------------------------------------------

// MultiSeedResult summarizes the random policy's recall distribution across
// independent seeds: the null-model reference band any claimed advantage
// must clear.
type MultiSeedResult struct {
	Rate      float64 `json:"rate"`
	SeedCount int     `json:"seed_count"`
	BaseSeed  int64   `json:"base_seed"`

	P5  float64 `json:"recall_p5"`
	P50 float64 `json:"recall_p50"`
	P95 float64 `json:"recall_p95"`

	Recalls []float64 `json:"recalls"`
}

// MultiSeed runs the random policy at a fixed rate across n consecutive
// seeds starting at baseSeed.
//
// Outputs:
//   - *MultiSeedResult: Recall percentiles (5th/50th/95th) and the raw
//     per-seed recalls.
//   - error: ErrInvalidSeedCount, or rate validation from the policy.
func MultiSeed(set *records.Set, highRisk []bool, rate float64, n int, baseSeed int64) (*MultiSeedResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSeedCount, n)
	}

	recalls := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		p, err := policy.NewRandom(rate, baseSeed+int64(i))
		if err != nil {
			return nil, err
		}
		sel, err := p.Select(set)
		if err != nil {
			return nil, err
		}
		m, err := evaluate.Evaluate(set, highRisk, sel.Mask(set), 1)
		if err != nil {
			return nil, err
		}
		recalls = append(recalls, m.Recall)
	}

	sorted := append([]float64(nil), recalls...)
	return &MultiSeedResult{
		Rate:      rate,
		SeedCount: n,
		BaseSeed:  baseSeed,
		P5:        stats.Percentile(sorted, 5),
		P50:       stats.Percentile(sorted, 50),
		P95:       stats.Percentile(sorted, 95),
		Recalls:   recalls,
	}, nil
}
