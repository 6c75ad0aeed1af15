// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package records defines the tabular unit-under-test records the selection
// engine consumes, and the integrity rules applied before any selection runs.
//
// A Set is an immutable, ordered collection of Records. All downstream
// components (risk labeling, selection policies, evaluation, sweeps) operate
// on a Set by value semantics: nothing mutates a Set after construction.
package records

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrEmptySet indicates a record set with zero rows.
	ErrEmptySet = errors.New("record set must not be empty")

	// ErrDuplicateID indicates two records share an identifier.
	ErrDuplicateID = errors.New("duplicate record identifier")

	// ErrMissingColumn indicates a required column is absent from a record.
	ErrMissingColumn = errors.New("required column missing")
)

// -----------------------------------------------------------------------------
// Record
// -----------------------------------------------------------------------------

// Record is one unit under test.
//
// Yield is the continuous outcome measure used for ground-truth labeling.
// Scores holds the continuous risk/severity columns by name. Flags holds the
// raw boolean columns that mandatory-override predicates may reference.
// PredictedLabel is the categorical label an injected prediction model
// assigned; the core never trains or calls models itself.
type Record struct {
	ID             string
	Yield          float64
	Scores         map[string]float64
	Flags          map[string]bool
	PredictedLabel string
}

// Context returns the record as a CEL evaluation context.
//
// Outputs:
//
//	map[string]any - Variables: id, yield, label, scores, flags.
func (r Record) Context() map[string]any {
	scores := make(map[string]any, len(r.Scores))
	for k, v := range r.Scores {
		scores[k] = v
	}
	flags := make(map[string]any, len(r.Flags))
	for k, v := range r.Flags {
		flags[k] = v
	}
	return map[string]any{
		"id":     r.ID,
		"yield":  r.Yield,
		"label":  r.PredictedLabel,
		"scores": scores,
		"flags":  flags,
	}
}

// -----------------------------------------------------------------------------
// Set
// -----------------------------------------------------------------------------

// Set is an immutable ordered collection of Records with unique identifiers.
//
// Thread Safety: A Set is read-only after construction and safe for
// concurrent use.
type Set struct {
	rows []Record
}

// New constructs a Set from records, validating integrity rules.
//
// Description:
//
//	Fails fast on the two fatal data-integrity conditions: an empty set and
//	duplicate identifiers. These are raised before any selection or labeling
//	is computed.
//
// Inputs:
//   - rows: The records, in source row order. Copied; the caller's slice is
//     not retained.
//
// Outputs:
//   - *Set: The validated set.
//   - error: ErrEmptySet or ErrDuplicateID (wrapped with the offending ID).
func New(rows []Record) (*Set, error) {
	if len(rows) == 0 {
		return nil, ErrEmptySet
	}
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	cp := make([]Record, len(rows))
	copy(cp, rows)
	return &Set{rows: cp}, nil
}

// Len returns the number of records.
func (s *Set) Len() int { return len(s.rows) }

// At returns the record at row index i.
func (s *Set) At(i int) Record { return s.rows[i] }

// Yields returns a copy of the outcome column in row order.
func (s *Set) Yields() []float64 {
	out := make([]float64, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.Yield
	}
	return out
}

// Score returns a copy of the named score column in row order.
//
// Outputs:
//   - []float64: The column values.
//   - error: ErrMissingColumn if any record lacks the column.
func (s *Set) Score(column string) ([]float64, error) {
	out := make([]float64, len(s.rows))
	for i, r := range s.rows {
		v, ok := r.Scores[column]
		if !ok {
			return nil, fmt.Errorf("%w: score %q (record %q)", ErrMissingColumn, column, r.ID)
		}
		out[i] = v
	}
	return out, nil
}

// SourceHash returns a SHA-256 fingerprint of the (ID, yield) pairs in row
// order, hex encoded. Persisted with the high-risk definition so an audit can
// bind a labeling run to its exact input data.
func (s *Set) SourceHash() string {
	h := sha256.New()
	var buf [8]byte
	for _, r := range s.rows {
		h.Write([]byte(r.ID))
		h.Write([]byte{0})
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(r.Yield))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Resample returns a bootstrap draw of the same size, sampled with
// replacement using the caller's generator.
//
// Description:
//
//	The returned Set intentionally bypasses the duplicate-ID check: a
//	bootstrap draw repeats rows by construction. It must only be fed to
//	components that tolerate repeated identifiers (labeling, rate-based
//	selection, evaluation).
//
// Thread Safety: Safe as long as the *rand.Rand is not shared.
func (s *Set) Resample(rng *rand.Rand) *Set {
	n := len(s.rows)
	rows := make([]Record, n)
	for i := 0; i < n; i++ {
		rows[i] = s.rows[rng.Intn(n)]
	}
	return &Set{rows: rows}
}
