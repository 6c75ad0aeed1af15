// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sweep

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/metrosel/services/selector/policy"
	"github.com/AleutianAI/metrosel/services/selector/records"
	"github.com/AleutianAI/metrosel/services/selector/risk"
)

// antiCorrelatedSet builds records whose severity score is perfectly
// anti-correlated with yield.
func antiCorrelatedSet(t *testing.T, n int, seed int64) *records.Set {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	rows := make([]records.Record, n)
	for i := range rows {
		y := rng.Float64()
		rows[i] = records.Record{
			ID:     fmt.Sprintf("w-%04d", i),
			Yield:  y,
			Scores: map[string]float64{"severity": 1 - y},
		}
	}
	set, err := records.New(rows)
	require.NoError(t, err)
	return set
}

func randomFactory(rate float64, seed int64) SelectorFactory {
	return func(float64) (policy.Selector, error) {
		return policy.NewRandom(rate, seed)
	}
}

func ruleBasedFactory(rate float64) SelectorFactory {
	return func(float64) (policy.Selector, error) {
		return policy.NewRuleBased(rate, "severity")
	}
}

func TestSensitivity_RecallDominanceAcrossGrid(t *testing.T) {
	set := antiCorrelatedSet(t, 200, 11)
	highRisk, _, err := risk.Label(set, 0.20)
	require.NoError(t, err)

	sw := &Sensitivity{
		Ratios:    []float64{0.5, 1, 2, 5, 10},
		Baseline:  randomFactory(0.20, 3),
		Framework: ruleBasedFactory(0.20),
	}
	result, err := sw.Run(set, highRisk)
	require.NoError(t, err)
	require.Len(t, result.Points, 10)

	// Both policies select the same count, so normalized cost ties at
	// every ratio. A perfect score makes the framework row strictly better
	// on recall everywhere, unless the random draw happens to be perfect
	// too, which a fifth of 200 records cannot be.
	assert.Equal(t, len(sw.Ratios), result.RecallDominanceCount)
	assert.Zero(t, result.CostDominanceCount)
	assert.Zero(t, result.NoneCount)

	for i := 0; i < len(result.Points); i += 2 {
		base, fw := result.Points[i], result.Points[i+1]
		assert.Equal(t, "baseline", base.Method)
		assert.Equal(t, "framework", fw.Method)
		assert.Equal(t, base.CostRatio, fw.CostRatio)
		assert.InDelta(t, base.NormalizedCost, fw.NormalizedCost, 1e-12)
		assert.Equal(t, 1.0, fw.Recall)
		assert.Equal(t, DominanceRecall, fw.DominanceType)
		assert.Equal(t, DominanceNone, base.DominanceType)
	}
}

func TestSensitivity_NormalizedCostScalesWithRatio(t *testing.T) {
	set := antiCorrelatedSet(t, 100, 7)
	highRisk, _, err := risk.Label(set, 0.25)
	require.NoError(t, err)

	sw := &Sensitivity{
		Ratios:    []float64{1, 4},
		Baseline:  randomFactory(0.25, 9),
		Framework: ruleBasedFactory(0.25),
	}
	result, err := sw.Run(set, highRisk)
	require.NoError(t, err)

	// 25 of 100 selected at unit cost 1 and 4.
	assert.InDelta(t, 0.25, result.Points[0].NormalizedCost, 1e-12)
	assert.InDelta(t, 1.00, result.Points[2].NormalizedCost, 1e-12)
}

func TestSensitivity_IdenticalMethodsClassifyNone(t *testing.T) {
	set := antiCorrelatedSet(t, 100, 13)
	highRisk, _, err := risk.Label(set, 0.20)
	require.NoError(t, err)

	sw := &Sensitivity{
		Ratios:    []float64{1, 2, 3},
		Baseline:  randomFactory(0.20, 21),
		Framework: randomFactory(0.20, 21),
	}
	result, err := sw.Run(set, highRisk)
	require.NoError(t, err)

	assert.Equal(t, 3, result.NoneCount)
	assert.Zero(t, result.RecallDominanceCount)
	assert.Zero(t, result.CostDominanceCount)
}

func TestSensitivity_EmptyGrid(t *testing.T) {
	set := antiCorrelatedSet(t, 20, 1)
	highRisk, _, err := risk.Label(set, 0.20)
	require.NoError(t, err)

	sw := &Sensitivity{
		Ratios:    nil,
		Baseline:  randomFactory(0.20, 1),
		Framework: ruleBasedFactory(0.20),
	}
	_, err = sw.Run(set, highRisk)
	assert.ErrorIs(t, err, ErrEmptyGrid)
}

func TestMultiSeed_RandomRecallBand(t *testing.T) {
	set := antiCorrelatedSet(t, 200, 17)
	highRisk, _, err := risk.Label(set, 0.20)
	require.NoError(t, err)

	// A random policy's expected recall equals its selection rate. Over 50
	// seeds the median must sit near 0.10 and the band must bracket it.
	result, err := MultiSeed(set, highRisk, 0.10, 50, 1000)
	require.NoError(t, err)
	require.Len(t, result.Recalls, 50)

	assert.GreaterOrEqual(t, result.P50, 0.05)
	assert.LessOrEqual(t, result.P50, 0.15)
	assert.LessOrEqual(t, result.P5, result.P50)
	assert.LessOrEqual(t, result.P50, result.P95)
}

func TestMultiSeed_Reproducible(t *testing.T) {
	set := antiCorrelatedSet(t, 100, 23)
	highRisk, _, err := risk.Label(set, 0.20)
	require.NoError(t, err)

	a, err := MultiSeed(set, highRisk, 0.15, 20, 500)
	require.NoError(t, err)
	b, err := MultiSeed(set, highRisk, 0.15, 20, 500)
	require.NoError(t, err)
	assert.Equal(t, a.Recalls, b.Recalls)

	shifted, err := MultiSeed(set, highRisk, 0.15, 20, 501)
	require.NoError(t, err)
	assert.NotEqual(t, a.Recalls, shifted.Recalls)
}

func TestMultiSeed_InvalidCount(t *testing.T) {
	set := antiCorrelatedSet(t, 20, 29)
	highRisk, _, err := risk.Label(set, 0.20)
	require.NoError(t, err)

	_, err = MultiSeed(set, highRisk, 0.10, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidSeedCount)
}
