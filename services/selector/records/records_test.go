// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package records

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("rejects empty set", func(t *testing.T) {
		_, err := New(nil)
		assert.ErrorIs(t, err, ErrEmptySet)
	})

	t.Run("rejects duplicate identifiers", func(t *testing.T) {
		_, err := New([]Record{
			{ID: "w-001", Yield: 0.9},
			{ID: "w-002", Yield: 0.8},
			{ID: "w-001", Yield: 0.7},
		})
		assert.ErrorIs(t, err, ErrDuplicateID)
		assert.Contains(t, err.Error(), "w-001")
	})

	t.Run("copies input slice", func(t *testing.T) {
		rows := []Record{{ID: "w-001", Yield: 0.5}}
		set, err := New(rows)
		require.NoError(t, err)

		rows[0].Yield = 99.0
		assert.Equal(t, 0.5, set.At(0).Yield)
	})
}

func TestSet_Score(t *testing.T) {
	set, err := New([]Record{
		{ID: "a", Scores: map[string]float64{"risk": 0.3}},
		{ID: "b", Scores: map[string]float64{"risk": 0.7}},
	})
	require.NoError(t, err)

	col, err := set.Score("risk")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3, 0.7}, col)

	_, err = set.Score("absent")
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestSet_SourceHash(t *testing.T) {
	a, err := New([]Record{{ID: "a", Yield: 0.5}, {ID: "b", Yield: 0.6}})
	require.NoError(t, err)
	b, err := New([]Record{{ID: "a", Yield: 0.5}, {ID: "b", Yield: 0.6}})
	require.NoError(t, err)
	c, err := New([]Record{{ID: "a", Yield: 0.5}, {ID: "b", Yield: 0.61}})
	require.NoError(t, err)

	assert.Equal(t, a.SourceHash(), b.SourceHash())
	assert.NotEqual(t, a.SourceHash(), c.SourceHash())
	assert.Len(t, a.SourceHash(), 64)
}

func TestSet_Resample(t *testing.T) {
	rows := make([]Record, 20)
	for i := range rows {
		rows[i] = Record{ID: string(rune('a' + i)), Yield: float64(i)}
	}
	set, err := New(rows)
	require.NoError(t, err)

	r1 := set.Resample(rand.New(rand.NewSource(7)))
	r2 := set.Resample(rand.New(rand.NewSource(7)))

	require.Equal(t, set.Len(), r1.Len())
	for i := 0; i < r1.Len(); i++ {
		assert.Equal(t, r1.At(i).ID, r2.At(i).ID)
	}
}

func TestFromCSV(t *testing.T) {
	schema := CSVSchema{
		IDColumn:    "wafer_id",
		YieldColumn: "yield",
		ScoreCols:   []string{"risk_score"},
		FlagCols:    []string{"excursion"},
		LabelColumn: "predicted",
	}

	t.Run("decodes valid input", func(t *testing.T) {
		in := strings.Join([]string{
			"wafer_id,yield,risk_score,excursion,predicted",
			"w-001,0.91,0.12,false,pass",
			"w-002,0.42,0.88,1,fail",
		}, "\n")

		set, err := FromCSV(strings.NewReader(in), schema)
		require.NoError(t, err)
		require.Equal(t, 2, set.Len())

		r := set.At(1)
		assert.Equal(t, "w-002", r.ID)
		assert.Equal(t, 0.42, r.Yield)
		assert.Equal(t, 0.88, r.Scores["risk_score"])
		assert.True(t, r.Flags["excursion"])
		assert.Equal(t, "fail", r.PredictedLabel)
	})

	t.Run("missing header column", func(t *testing.T) {
		in := "wafer_id,yield\nw-001,0.9\n"
		_, err := FromCSV(strings.NewReader(in), schema)
		assert.ErrorIs(t, err, ErrMissingColumn)
	})

	t.Run("bad boolean cell", func(t *testing.T) {
		in := strings.Join([]string{
			"wafer_id,yield,risk_score,excursion,predicted",
			"w-001,0.91,0.12,maybe,pass",
		}, "\n")
		_, err := FromCSV(strings.NewReader(in), schema)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "excursion")
	})
}
