// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/metrosel/services/selector/policy"
	"github.com/AleutianAI/metrosel/services/selector/records"
	"github.com/AleutianAI/metrosel/services/selector/risk"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testRun(t *testing.T) (risk.Definition, []*policy.Selection) {
	t.Helper()
	rows := make([]records.Record, 20)
	for i := range rows {
		rows[i] = records.Record{
			ID:     fmt.Sprintf("w-%02d", i),
			Yield:  float64(i) / 20,
			Scores: map[string]float64{"severity": 1 - float64(i)/20},
		}
	}
	set, err := records.New(rows)
	require.NoError(t, err)

	_, def, err := risk.Label(set, 0.25)
	require.NoError(t, err)

	random, err := policy.NewRandom(0.25, 7)
	require.NoError(t, err)
	ranked, err := policy.NewRuleBased(0.25, "severity")
	require.NoError(t, err)

	randomSel, err := random.Select(set)
	require.NoError(t, err)
	rankedSel, err := ranked.Select(set)
	require.NoError(t, err)

	return def, []*policy.Selection{randomSel, rankedSel}
}

func TestStore_SaveAndLoadRun(t *testing.T) {
	store := openTestStore(t)
	def, selections := testRun(t)

	runID := NewRunID()
	require.NoError(t, store.SaveRun(runID, "lot-4411", def, selections))

	record, err := store.LoadRun(runID)
	require.NoError(t, err)
	assert.Equal(t, runID, record.RunID)
	assert.Equal(t, "lot-4411", record.Scenario)
	assert.Equal(t, def.Quantile, record.Definition.Quantile)
	assert.Equal(t, def.SourceHash, record.Definition.SourceHash)
	assert.Len(t, record.Policies, 2)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestStore_LoadDefinition(t *testing.T) {
	store := openTestStore(t)
	def, selections := testRun(t)

	runID := NewRunID()
	require.NoError(t, store.SaveRun(runID, "lot-4411", def, selections))

	loaded, err := store.LoadDefinition(runID)
	require.NoError(t, err)
	assert.Equal(t, def.K, loaded.K)
	assert.Equal(t, def.ThresholdYield, loaded.ThresholdYield)
	assert.Equal(t, def.TieBreak, loaded.TieBreak)
}

func TestStore_LoadSelectionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	def, selections := testRun(t)

	runID := NewRunID()
	require.NoError(t, store.SaveRun(runID, "lot-4411", def, selections))

	for _, sel := range selections {
		snap, err := store.LoadSelection(runID, sel.Policy)
		require.NoError(t, err)
		assert.Equal(t, sel.Policy, snap.Policy)
		assert.Equal(t, sel.BudgetOverrun, snap.BudgetOverrun)
		assert.Equal(t, sel.Selected, snap.Selected)
		assert.Equal(t, sel.Remainder, snap.Remainder)
	}
}

func TestStore_RunNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.LoadRun("no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = store.LoadSelection("no-such-run", "random")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_ListRuns(t *testing.T) {
	store := openTestStore(t)
	def, selections := testRun(t)

	ids := []string{NewRunID(), NewRunID(), NewRunID()}
	for _, id := range ids {
		require.NoError(t, store.SaveRun(id, "lot-4411", def, selections))
	}

	listed, err := store.ListRuns()
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, listed)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorIs(t, err, ErrMissingPath)
}

func TestOpen_PersistentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	def, selections := testRun(t)

	store, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	runID := NewRunID()
	require.NoError(t, store.SaveRun(runID, "lot-4411", def, selections))
	require.NoError(t, store.Close())

	reopened, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer reopened.Close()

	record, err := reopened.LoadRun(runID)
	require.NoError(t, err)
	assert.Equal(t, runID, record.RunID)
}
