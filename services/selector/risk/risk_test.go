// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package risk

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/metrosel/services/selector/records"
)

func uniformSet(t *testing.T, n int, seed int64) *records.Set {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	rows := make([]records.Record, n)
	for i := range rows {
		rows[i] = records.Record{
			ID:     fmt.Sprintf("w-%04d", i),
			Yield:  rng.Float64(),
			Scores: map[string]float64{"risk": rng.Float64()},
		}
	}
	set, err := records.New(rows)
	require.NoError(t, err)
	return set
}

func countTrue(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}

func TestLabel_ExactK(t *testing.T) {
	cases := []struct {
		n        int
		quantile float64
		wantK    int
	}{
		{200, 0.20, 40},
		{10, 0.30, 3},
		{7, 0.50, 3},
		{5, 1.00, 5},
		{100, 0.001, 0},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("n=%d q=%v", tc.n, tc.quantile), func(t *testing.T) {
			set := uniformSet(t, tc.n, 42)
			mask, def, err := Label(set, tc.quantile)
			require.NoError(t, err)

			assert.Equal(t, tc.wantK, countTrue(mask))
			assert.Equal(t, tc.wantK, def.K)
			assert.Equal(t, tc.n, def.N)
		})
	}
}

func TestLabel_IndependentOfScores(t *testing.T) {
	set := uniformSet(t, 200, 1)
	maskA, _, err := Label(set, 0.20)
	require.NoError(t, err)

	// Same yields, different score column.
	rows := make([]records.Record, set.Len())
	for i := range rows {
		r := set.At(i)
		r.Scores = map[string]float64{"risk": -r.Scores["risk"]}
		rows[i] = r
	}
	set2, err := records.New(rows)
	require.NoError(t, err)
	maskB, _, err := Label(set2, 0.20)
	require.NoError(t, err)

	assert.Equal(t, maskA, maskB)
}

func TestLabel_MarksLowestYields(t *testing.T) {
	rows := []records.Record{
		{ID: "a", Yield: 0.9},
		{ID: "b", Yield: 0.1},
		{ID: "c", Yield: 0.5},
		{ID: "d", Yield: 0.2},
	}
	set, err := records.New(rows)
	require.NoError(t, err)

	mask, def, err := Label(set, 0.5)
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true, false, true}, mask)
	assert.Equal(t, 0.2, def.ThresholdYield)
	assert.Equal(t, TieBreakIDAscending, def.TieBreak)
	assert.NotEmpty(t, def.SourceHash)
}

func TestLabel_TieBreakByID(t *testing.T) {
	rows := []records.Record{
		{ID: "c", Yield: 0.5},
		{ID: "a", Yield: 0.5},
		{ID: "b", Yield: 0.5},
	}
	set, err := records.New(rows)
	require.NoError(t, err)

	mask, _, err := Label(set, 0.34)
	require.NoError(t, err)

	// One slot; "a" wins the tie.
	assert.Equal(t, []bool{false, true, false}, mask)
}

func TestLabel_InvalidQuantile(t *testing.T) {
	set := uniformSet(t, 10, 3)
	for _, q := range []float64{0, -0.1, 1.01} {
		_, _, err := Label(set, q)
		assert.ErrorIs(t, err, ErrInvalidQuantile, "q=%v", q)
	}
}
