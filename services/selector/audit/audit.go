// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit persists selection runs to an embedded BadgerDB store.
//
// Every run saves the full label definition (quantile, threshold yield,
// tie-break rule, source hash) next to the per-policy decisions, so a
// reviewer can later reconstruct exactly which records were labeled
// high-risk and why each one was or was not selected.
//
// Key layout:
//
//	run/<id>/meta                  RunRecord JSON
//	run/<id>/selection/<policy>    SelectionSnapshot JSON
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/metrosel/services/selector/policy"
	"github.com/AleutianAI/metrosel/services/selector/risk"
)

var (
	// ErrRunNotFound indicates the requested run ID has no record.
	ErrRunNotFound = errors.New("run not found")

	// ErrMissingPath indicates a persistent store without a directory.
	ErrMissingPath = errors.New("path is required for persistent store")
)

// Config holds configuration for the audit store.
type Config struct {
	// Path is the directory for database files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output.
	// If nil, internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns durable defaults for production use.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns a configuration for tests. Data is lost on close.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// RunRecord is the run-level metadata stored under run/<id>/meta.
type RunRecord struct {
	RunID      string          `json:"run_id"`
	Scenario   string          `json:"scenario"`
	CreatedAt  time.Time       `json:"created_at"`
	Definition risk.Definition `json:"definition"`
	Policies   []string        `json:"policies"`
}

// SelectionSnapshot is the persisted form of one policy's outcome. It
// carries every decision, including the unselected remainder with its
// reason code. The cost column is populated only by cost-aware policies;
// rate-based policies record zero and their spend lives in the evaluation
// report, not the decision table.
type SelectionSnapshot struct {
	Policy        string            `json:"policy"`
	BudgetOverrun bool              `json:"budget_overrun"`
	Selected      []policy.Decision `json:"selected"`
	Remainder     []policy.Decision `json:"remainder"`
}

// Snapshot converts a live selection into its persisted form.
func Snapshot(sel *policy.Selection) SelectionSnapshot {
	return SelectionSnapshot{
		Policy:        sel.Policy,
		BudgetOverrun: sel.BudgetOverrun,
		Selected:      sel.Selected,
		Remainder:     sel.Remainder,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is an audit trail backed by BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open creates and opens an audit store.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist.
//
// Outputs:
//   - *Store: The opened store. Caller must call Close() when done.
//   - error: ErrMissingPath, or the underlying open failure.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, ErrMissingPath
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create audit directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

func metaKey(runID string) []byte {
	return []byte("run/" + runID + "/meta")
}

func selectionKey(runID, policyName string) []byte {
	return []byte("run/" + runID + "/selection/" + policyName)
}

// SaveRun writes a run's metadata and all of its selections in one
// transaction.
//
// Inputs:
//   - runID: Identifier from NewRunID, or any caller-chosen unique string.
//   - scenario: Scenario name for later lookup.
//   - def: The label definition the run was evaluated against.
//   - selections: One live selection per policy.
//
// Outputs:
//   - error: Non-nil if any value fails to marshal or the write fails.
func (s *Store) SaveRun(runID, scenario string, def risk.Definition, selections []*policy.Selection) error {
	policies := make([]string, 0, len(selections))
	for _, sel := range selections {
		policies = append(policies, sel.Policy)
	}
	meta := RunRecord{
		RunID:      runID,
		Scenario:   scenario,
		CreatedAt:  time.Now().UTC(),
		Definition: def,
		Policies:   policies,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(runID), metaJSON); err != nil {
			return err
		}
		for _, sel := range selections {
			snap := Snapshot(sel)
			data, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("marshal selection %s: %w", sel.Policy, err)
			}
			if err := txn.Set(selectionKey(runID, sel.Policy), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadRun reads a run's metadata.
//
// Outputs:
//   - *RunRecord: The stored record.
//   - error: ErrRunNotFound if the run ID has no metadata.
func (s *Store) LoadRun(runID string) (*RunRecord, error) {
	var record RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// LoadDefinition reads the label definition a run was evaluated against.
func (s *Store) LoadDefinition(runID string) (*risk.Definition, error) {
	record, err := s.LoadRun(runID)
	if err != nil {
		return nil, err
	}
	return &record.Definition, nil
}

// LoadSelection reads one policy's persisted outcome for a run.
//
// Outputs:
//   - *SelectionSnapshot: The stored decisions.
//   - error: ErrRunNotFound if the run or policy has no snapshot.
func (s *Store) LoadSelection(runID, policyName string) (*SelectionSnapshot, error) {
	var snap SelectionSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(selectionKey(runID, policyName))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrRunNotFound, runID, policyName)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListRuns returns every stored run ID, in key order.
func (s *Store) ListRuns() ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("run/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if !strings.HasSuffix(key, "/meta") {
				continue
			}
			id := strings.TrimSuffix(strings.TrimPrefix(key, "run/"), "/meta")
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
