// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/AleutianAI/metrosel/services/selector/records"
)

// BudgetedMandatory selects the highest-severity candidates within a budget
// cap, but records matching any mandatory predicate are always selected.
//
// The defining invariant: when the mandatory subset alone reaches or exceeds
// the effective cap, the entire mandatory subset is selected (its size may
// exceed the cap) and BudgetOverrun is set. No mandatory record is ever
// dropped to fit a budget, even when an explicit max count below the
// budget-derived cap is configured: required inspections are never
// silently skipped.
type BudgetedMandatory struct {
	scoreColumn string
	predicates  []*Predicate
	unitCost    float64
	totalBudget float64 // 0 means no budget cap
	maxCount    int     // 0 means no explicit count cap
}

// BudgetedConfig configures a BudgetedMandatory policy.
type BudgetedConfig struct {
	// ScoreColumn names the severity score used for ranking.
	ScoreColumn string

	// Predicates are the mandatory-override conditions, in declaration
	// order. May be empty.
	Predicates []*Predicate

	// UnitCost is the cost of one measurement. Must be positive.
	UnitCost float64

	// TotalBudget caps total spend; the derived count cap is
	// ⌊TotalBudget/UnitCost⌋. Zero disables the budget cap.
	TotalBudget float64

	// MaxCount is an explicit count cap. Zero disables it. When both caps
	// are set, the effective cap is their minimum.
	MaxCount int
}

// NewBudgetedMandatory validates the configuration and returns the policy.
//
// Outputs:
//   - error: ErrInvalidUnitCost, ErrInconsistentBudget, or a missing-column
//     error for an empty score column. All raised before any selection runs.
func NewBudgetedMandatory(cfg BudgetedConfig) (*BudgetedMandatory, error) {
	if cfg.ScoreColumn == "" {
		return nil, fmt.Errorf("%w: severity score column name", records.ErrMissingColumn)
	}
	if cfg.UnitCost <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidUnitCost, cfg.UnitCost)
	}
	if cfg.TotalBudget < 0 {
		return nil, fmt.Errorf("%w: total budget %v is negative", ErrInconsistentBudget, cfg.TotalBudget)
	}
	if cfg.MaxCount < 0 {
		return nil, fmt.Errorf("%w: max count %d is negative", ErrInconsistentBudget, cfg.MaxCount)
	}
	if cfg.TotalBudget > 0 && cfg.TotalBudget < cfg.UnitCost {
		return nil, fmt.Errorf("%w: budget %v buys zero measurements at unit cost %v",
			ErrInconsistentBudget, cfg.TotalBudget, cfg.UnitCost)
	}
	return &BudgetedMandatory{
		scoreColumn: cfg.ScoreColumn,
		predicates:  cfg.Predicates,
		unitCost:    cfg.UnitCost,
		totalBudget: cfg.TotalBudget,
		maxCount:    cfg.MaxCount,
	}, nil
}

// Name implements Selector.
func (p *BudgetedMandatory) Name() string { return "budgeted_mandatory" }

// candidate is one deduplicated pool entry during selection.
type candidate struct {
	row       int
	id        string
	severity  float64
	mandatory bool
	fired     []string
}

// Select implements Selector.
//
// Description:
//
//	Runs the three-branch budget algorithm as a pure function over the
//	candidate pool:
//
//	 1. Deduplicate by identifier (severity read from the first occurrence)
//	    and order by severity descending (ties by row order). A selected
//	    identifier covers all rows carrying it.
//	 2. Mark the mandatory subset: any candidate with at least one true
//	    predicate.
//	 3. Effective cap = min(⌊budget/unit⌋, max count), considering only the
//	    caps that are configured; unbounded when neither is.
//	 4. Unbounded cap: everything is selected.
//	 5. Mandatory subset at or above the cap: exactly the mandatory subset
//	    is selected, BudgetOverrun is set, and no non-mandatory candidate
//	    is added.
//	 6. Otherwise: mandatory subset plus highest-severity non-mandatory
//	    candidates up to the cap.
//
//	The final selection is ordered severity descending. The unselected
//	remainder is returned alongside it, cost zero, for auditing.
func (p *BudgetedMandatory) Select(set *records.Set) (*Selection, error) {
	scores, err := set.Score(p.scoreColumn)
	if err != nil {
		return nil, err
	}

	// Step 1: dedupe, then order by severity descending. Every row sharing
	// an identifier collapses into one candidate, but all of its rows are
	// remembered: a with-replacement resample carries duplicates, and a
	// decision on a wafer covers every row of that wafer.
	rowsByID := make(map[string][]int, set.Len())
	pool := make([]*candidate, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		rec := set.At(i)
		if _, dup := rowsByID[rec.ID]; !dup {
			pool = append(pool, &candidate{row: i, id: rec.ID, severity: scores[i]})
		}
		rowsByID[rec.ID] = append(rowsByID[rec.ID], i)
	}
	sort.SliceStable(pool, func(a, b int) bool {
		return pool[a].severity > pool[b].severity
	})

	// Step 2: mandatory subset.
	mandatoryCount := 0
	for _, c := range pool {
		rec := set.At(c.row)
		for _, pred := range p.predicates {
			fired, err := pred.Eval(rec)
			if err != nil {
				return nil, err
			}
			if fired {
				c.fired = append(c.fired, pred.Name)
			}
		}
		if len(c.fired) > 0 {
			c.mandatory = true
			mandatoryCount++
		}
	}

	// Step 3: effective cap.
	limit, bounded := p.effectiveCap()

	// Steps 4-6: the three branches build a fresh selected list; nothing is
	// filtered in place, so no partial state can leak between branches.
	var chosen []*candidate
	overrun := false
	switch {
	case !bounded:
		chosen = append(chosen, pool...)
	case mandatoryCount >= limit:
		for _, c := range pool {
			if c.mandatory {
				chosen = append(chosen, c)
			}
		}
		overrun = true
	default:
		for _, c := range pool {
			if c.mandatory {
				chosen = append(chosen, c)
			}
		}
		for _, c := range pool {
			if len(chosen) >= limit {
				break
			}
			if !c.mandatory {
				chosen = append(chosen, c)
			}
		}
	}

	// Step 7: selection ordered severity descending, reasons attached.
	sort.SliceStable(chosen, func(a, b int) bool {
		return chosen[a].severity > chosen[b].severity
	})

	sel := &Selection{Policy: p.Name(), BudgetOverrun: overrun}
	inChosen := make(map[string]struct{}, len(chosen))
	for _, c := range chosen {
		inChosen[c.id] = struct{}{}
		sel.selectedRows = append(sel.selectedRows, rowsByID[c.id]...)
		reason := ReasonHighSeverity
		if c.mandatory {
			reason = strings.Join(c.fired, reasonPredicateJoin)
		}
		sel.Selected = append(sel.Selected, Decision{
			ID:       c.id,
			Selected: true,
			Cost:     p.unitCost,
			Reason:   reason,
		})
	}

	// Step 8: unselected remainder, partitioned separately for audit.
	for _, c := range pool {
		if _, ok := inChosen[c.id]; ok {
			continue
		}
		sel.Remainder = append(sel.Remainder, Decision{
			ID:     c.id,
			Reason: ReasonNotSelected,
		})
	}
	return sel, nil
}

// effectiveCap returns the count cap and whether any cap applies.
func (p *BudgetedMandatory) effectiveCap() (int, bool) {
	limit := math.MaxInt
	bounded := false
	if p.totalBudget > 0 {
		limit = int(math.Floor(p.totalBudget/p.unitCost + 1e-9))
		bounded = true
	}
	if p.maxCount > 0 && p.maxCount < limit {
		limit = p.maxCount
		bounded = true
	}
	return limit, bounded
}
