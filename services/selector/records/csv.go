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
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVSchema maps the columns of a tabular input to Record fields.
//
// ID and Yield are required. Score columns are required on every row;
// flag and label columns are optional.
type CSVSchema struct {
	IDColumn    string
	YieldColumn string
	ScoreCols   []string
	FlagCols    []string
	LabelColumn string
}

// FromCSV decodes a headered CSV stream into a validated Set.
//
// Description:
//
//	The first row must be a header naming every schema column. Flag cells
//	accept true/false, 1/0, yes/no (case-insensitive); empty flag cells read
//	as false. File discovery and path handling stay with the caller; this
//	function only consumes an io.Reader.
//
// Outputs:
//   - *Set: The decoded, integrity-checked set.
//   - error: ErrMissingColumn for absent header columns, parse errors with
//     row context, or the Set integrity errors from New.
func FromCSV(r io.Reader, schema CSVSchema) (*Set, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	idx := func(name string) (int, error) {
		i, ok := col[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
		return i, nil
	}

	idIdx, err := idx(schema.IDColumn)
	if err != nil {
		return nil, err
	}
	yieldIdx, err := idx(schema.YieldColumn)
	if err != nil {
		return nil, err
	}
	scoreIdx := make(map[string]int, len(schema.ScoreCols))
	for _, c := range schema.ScoreCols {
		i, err := idx(c)
		if err != nil {
			return nil, err
		}
		scoreIdx[c] = i
	}
	flagIdx := make(map[string]int, len(schema.FlagCols))
	for _, c := range schema.FlagCols {
		i, err := idx(c)
		if err != nil {
			return nil, err
		}
		flagIdx[c] = i
	}
	labelIdx := -1
	if schema.LabelColumn != "" {
		if labelIdx, err = idx(schema.LabelColumn); err != nil {
			return nil, err
		}
	}

	var rows []Record
	for rowNum := 2; ; rowNum++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", rowNum, err)
		}

		yield, err := strconv.ParseFloat(strings.TrimSpace(rec[yieldIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse %s: %w", rowNum, schema.YieldColumn, err)
		}

		scores := make(map[string]float64, len(scoreIdx))
		for name, i := range scoreIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: parse %s: %w", rowNum, name, err)
			}
			scores[name] = v
		}

		flags := make(map[string]bool, len(flagIdx))
		for name, i := range flagIdx {
			v, err := parseFlag(rec[i])
			if err != nil {
				return nil, fmt.Errorf("row %d: parse %s: %w", rowNum, name, err)
			}
			flags[name] = v
		}

		row := Record{
			ID:     strings.TrimSpace(rec[idIdx]),
			Yield:  yield,
			Scores: scores,
			Flags:  flags,
		}
		if labelIdx >= 0 {
			row.PredictedLabel = strings.TrimSpace(rec[labelIdx])
		}
		rows = append(rows, row)
	}

	return New(rows)
}

// parseFlag parses a boolean cell. Empty cells read as false.
func parseFlag(cell string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "", "0", "false", "no", "n":
		return false, nil
	case "1", "true", "yes", "y":
		return true, nil
	default:
		return false, fmt.Errorf("invalid boolean cell %q", cell)
	}
}
