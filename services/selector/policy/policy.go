// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy implements the three selection policies that decide which
// records receive the costly follow-up measurement: seeded random draw,
// rule-based top-k by score, and budget-constrained selection with mandatory
// overrides.
//
// Every policy is deterministic for fixed inputs (the random policy takes an
// explicit seed, never ambient generator state) and returns a new immutable
// Selection; nothing is filtered in place.
package policy

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/AleutianAI/metrosel/services/selector/records"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidRate indicates a selection rate outside (0, 1].
	ErrInvalidRate = errors.New("selection rate must be in (0, 1]")

	// ErrInvalidUnitCost indicates a non-positive unit cost.
	ErrInvalidUnitCost = errors.New("unit cost must be positive")

	// ErrInconsistentBudget indicates budget parameters that contradict each
	// other (e.g. a total budget without a positive unit cost).
	ErrInconsistentBudget = errors.New("inconsistent budget configuration")
)

// Reason codes attached to per-record decisions.
const (
	ReasonRandomDraw    = "random draw"
	ReasonTopScore      = "top score"
	ReasonHighSeverity  = "high-severity"
	ReasonNotSelected   = "not selected: budget"
	reasonPredicateJoin = ","
)

// -----------------------------------------------------------------------------
// Selection
// -----------------------------------------------------------------------------

// Decision is the per-record outcome of a policy run.
type Decision struct {
	// ID is the record identifier.
	ID string `json:"id"`

	// Selected is true when the record receives the follow-up measurement.
	Selected bool `json:"selected"`

	// Cost is the measurement cost attributed to this record by a
	// cost-aware policy. The rate-based policies carry no cost model and
	// record zero here; their spend is computed at evaluation time from
	// the scenario unit cost. Always zero for unselected records.
	Cost float64 `json:"cost"`

	// Reason explains the decision: a policy reason code, or for mandatory
	// records the names of the predicates that fired.
	Reason string `json:"reason"`
}

// Selection is the immutable result of one policy run.
type Selection struct {
	// Policy names the policy that produced this selection.
	Policy string `json:"policy"`

	// Selected lists chosen records. For the budgeted policy the order is
	// severity descending; for the others, input row order.
	Selected []Decision `json:"selected"`

	// Remainder lists the unselected records, cost zero, tagged with a
	// "not selected" reason for downstream auditing.
	Remainder []Decision `json:"remainder"`

	// BudgetOverrun is true when the mandatory subset alone exceeded the
	// effective cap and was kept anyway.
	BudgetOverrun bool `json:"budget_overrun"`

	// selectedRows are the selected row indices in the originating set.
	// Kept alongside the IDs so masks stay exact on bootstrap draws, where
	// identifiers repeat.
	selectedRows []int
}

// Mask returns the selected flags aligned to the record set's row order.
func (s *Selection) Mask(set *records.Set) []bool {
	mask := make([]bool, set.Len())
	for _, r := range s.selectedRows {
		if r >= 0 && r < len(mask) {
			mask[r] = true
		}
	}
	return mask
}

// Size returns the number of selected records.
func (s *Selection) Size() int { return len(s.Selected) }

// Selector is the common policy contract: map a record set to a Selection,
// deterministically or seed-reproducibly.
type Selector interface {
	Name() string
	Select(set *records.Set) (*Selection, error)
}

// floorCount computes ⌊rate·n⌋ with a nudge so products that are integral up
// to float rounding land on the intended count.
func floorCount(rate float64, n int) int {
	return int(math.Floor(rate*float64(n) + 1e-9))
}

// -----------------------------------------------------------------------------
// Random policy
// -----------------------------------------------------------------------------

// Random selects ⌊N·rate⌋ records uniformly without replacement from a
// seeded generator. Identical (seed, rate, N) always yields the identical
// index set: the null-model reference every other policy is judged against.
type Random struct {
	rate float64
	seed int64
}

// NewRandom validates the rate and returns the policy.
func NewRandom(rate float64, seed int64) (*Random, error) {
	if rate <= 0 || rate > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRate, rate)
	}
	return &Random{rate: rate, seed: seed}, nil
}

// Name implements Selector.
func (p *Random) Name() string { return "random" }

// Select implements Selector.
func (p *Random) Select(set *records.Set) (*Selection, error) {
	n := set.Len()
	k := floorCount(p.rate, n)

	rng := rand.New(rand.NewSource(p.seed))
	perm := rng.Perm(n)
	chosen := append([]int(nil), perm[:k]...)
	sort.Ints(chosen)

	inSel := make([]bool, n)
	for _, i := range chosen {
		inSel[i] = true
	}

	sel := &Selection{Policy: p.Name(), selectedRows: chosen}
	for i := 0; i < n; i++ {
		d := Decision{ID: set.At(i).ID}
		if inSel[i] {
			d.Selected = true
			d.Reason = ReasonRandomDraw
			sel.Selected = append(sel.Selected, d)
		} else {
			d.Reason = ReasonNotSelected
			sel.Remainder = append(sel.Remainder, d)
		}
	}
	return sel, nil
}

// -----------------------------------------------------------------------------
// Rule-based policy
// -----------------------------------------------------------------------------

// RuleBased selects the top ⌊N·rate⌋ records by a named risk score,
// descending, ties broken by original row order.
type RuleBased struct {
	rate        float64
	scoreColumn string
}

// NewRuleBased validates the rate and returns the policy. The score column
// is checked at selection time against the actual record set.
func NewRuleBased(rate float64, scoreColumn string) (*RuleBased, error) {
	if rate <= 0 || rate > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRate, rate)
	}
	if scoreColumn == "" {
		return nil, fmt.Errorf("%w: score column name", records.ErrMissingColumn)
	}
	return &RuleBased{rate: rate, scoreColumn: scoreColumn}, nil
}

// Name implements Selector.
func (p *RuleBased) Name() string { return "rule_based" }

// Select implements Selector.
func (p *RuleBased) Select(set *records.Set) (*Selection, error) {
	scores, err := set.Score(p.scoreColumn)
	if err != nil {
		return nil, err
	}

	n := set.Len()
	k := floorCount(p.rate, n)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// Stable sort keeps row order for equal scores.
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	inSel := make([]bool, n)
	for _, i := range order[:k] {
		inSel[i] = true
	}

	sel := &Selection{Policy: p.Name(), selectedRows: append([]int(nil), order[:k]...)}
	for i := 0; i < n; i++ {
		d := Decision{ID: set.At(i).ID}
		if inSel[i] {
			d.Selected = true
			d.Reason = ReasonTopScore
			sel.Selected = append(sel.Selected, d)
		} else {
			d.Reason = ReasonNotSelected
			sel.Remainder = append(sel.Remainder, d)
		}
	}
	return sel, nil
}
