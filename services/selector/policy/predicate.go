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
	"errors"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"

	"github.com/AleutianAI/metrosel/services/selector/records"
)

// ErrInvalidPredicate indicates a mandatory predicate that does not compile
// or does not evaluate to a boolean.
var ErrInvalidPredicate = errors.New("invalid mandatory predicate")

// Predicate is a named boolean condition evaluated per record. A record for
// which at least one predicate is true is a mandatory inspection: the
// budgeted policy never drops it for budget reasons.
//
// Predicates are CEL expressions over the record context:
//
//	flags["excursion"] || scores["severity"] > 0.9
//
// Available variables: id (string), yield (double), label (string),
// scores (map), flags (map).
type Predicate struct {
	// Name identifies the predicate in reason codes and configuration.
	Name string

	// Expression is the CEL source, kept for audit output.
	Expression string

	program cel.Program
}

// CompilePredicate compiles a CEL expression into a reusable Predicate.
//
// Description:
//
//	Compilation happens once per run; evaluation per record is then cheap.
//	The expression must produce a boolean.
//
// Outputs:
//   - *Predicate: The compiled predicate.
//   - error: ErrInvalidPredicate wrapped with compile diagnostics.
func CompilePredicate(name, expression string) (*Predicate, error) {
	if name == "" || expression == "" {
		return nil, fmt.Errorf("%w: name and expression are required", ErrInvalidPredicate)
	}

	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("yield", cel.DoubleType),
		cel.Variable("label", cel.StringType),
		cel.Variable("scores", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("flags", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPredicate, name, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: %q must evaluate to bool, got %s", ErrInvalidPredicate, name, ast.OutputType())
	}

	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPredicate, name, err)
	}

	return &Predicate{Name: name, Expression: expression, program: prog}, nil
}

// Eval evaluates the predicate against a record.
//
// Thread Safety: cel.Program is safe for concurrent evaluation.
func (p *Predicate) Eval(rec records.Record) (bool, error) {
	out, _, err := p.program.Eval(rec.Context())
	if err != nil {
		return false, fmt.Errorf("evaluate predicate %q on record %q: %w", p.Name, rec.ID, err)
	}
	v, err := out.ConvertToNative(reflect.TypeOf(false))
	if err != nil {
		return false, fmt.Errorf("%w: %q returned non-boolean", ErrInvalidPredicate, p.Name)
	}
	return v.(bool), nil
}

// PredicateSpec is an uncompiled (name, expression) pair, typically decoded
// from configuration. Order matters: reason codes list fired predicates in
// declaration order.
type PredicateSpec struct {
	Name       string
	Expression string
}

// CompilePredicates compiles an ordered predicate list.
func CompilePredicates(specs []PredicateSpec) ([]*Predicate, error) {
	out := make([]*Predicate, 0, len(specs))
	for _, s := range specs {
		p, err := CompilePredicate(s.Name, s.Expression)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
