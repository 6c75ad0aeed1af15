// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package risk computes the ground-truth high-risk labeling for a record set.
//
// The rule is fixed-k bottom-quantile: the ⌊q·N⌋ records with the lowest
// outcome (yield) are high-risk. The labeling is a pure function of the
// outcome column, never of any score column, so every policy is judged
// against the same truth.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/metrosel/services/selector/records"
)

// TieBreakIDAscending is the only supported tie-break rule: records with
// equal yield are ordered by identifier ascending, so labeling is
// deterministic across runs and platforms.
const TieBreakIDAscending = "identifier_ascending"

// ErrInvalidQuantile indicates a quantile outside (0, 1].
var ErrInvalidQuantile = errors.New("quantile must be in (0, 1]")

// Definition records how the high-risk mask was derived. It is computed once
// per evaluation run, immutable, and persisted for audit.
type Definition struct {
	// Quantile is the requested bottom fraction q.
	Quantile float64 `json:"quantile"`

	// N is the number of records labeled.
	N int `json:"n"`

	// K is the exact count of high-risk records, ⌊q·N⌋.
	K int `json:"k"`

	// ThresholdYield is the yield of the rank-K record (the highest yield
	// still labeled high-risk). Zero when K is zero.
	ThresholdYield float64 `json:"threshold_yield"`

	// TieBreak names the deterministic tie-break rule applied.
	TieBreak string `json:"tie_break"`

	// SourceHash fingerprints the (ID, yield) input this definition was
	// computed from.
	SourceHash string `json:"source_hash"`
}

// Label computes the high-risk mask for a record set.
//
// Description:
//
//	Stable-sorts row indices ascending by (yield, ID) and marks the first
//	⌊q·N⌋ as high-risk. Exactly K entries of the returned mask are true for
//	every input, independent of any score column.
//
// Inputs:
//   - set: The record set. Must be non-nil and non-empty (guaranteed by
//     records.New).
//   - quantile: The bottom fraction q in (0, 1].
//
// Outputs:
//   - []bool: Mask aligned to set row order; true means high-risk.
//   - Definition: The audit record for this labeling.
//   - error: ErrInvalidQuantile when q is outside (0, 1].
//
// Thread Safety: Pure function; safe for concurrent use.
func Label(set *records.Set, quantile float64) ([]bool, Definition, error) {
	if quantile <= 0 || quantile > 1 {
		return nil, Definition{}, fmt.Errorf("%w: got %v", ErrInvalidQuantile, quantile)
	}

	n := set.Len()
	// Nudge before flooring so q·N values that are integers up to float
	// rounding (0.3·10 = 2.999…) land on the intended k.
	k := int(math.Floor(quantile*float64(n) + 1e-9))

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := set.At(order[a]), set.At(order[b])
		if ra.Yield != rb.Yield {
			return ra.Yield < rb.Yield
		}
		return ra.ID < rb.ID
	})

	mask := make([]bool, n)
	for i := 0; i < k; i++ {
		mask[order[i]] = true
	}

	def := Definition{
		Quantile:   quantile,
		N:          n,
		K:          k,
		TieBreak:   TieBreakIDAscending,
		SourceHash: set.SourceHash(),
	}
	if k > 0 {
		def.ThresholdYield = set.At(order[k-1]).Yield
	}
	return mask, def, nil
}
