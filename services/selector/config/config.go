// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates scenario files. A scenario is one YAML
// document describing the data source, the labeling quantile, the three
// selection policies, the comparison settings, and the sweep grids. Loading
// merges the file over defaults and rejects the result if any field is out
// of range or the budget fields contradict each other.
package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/metrosel/services/selector/policy"
	"github.com/AleutianAI/metrosel/services/selector/records"
)

// DefaultAlpha is the significance level for every statistical test. It is
// fixed rather than configurable so that reported p-values across runs are
// always judged against the same bar.
const DefaultAlpha = 0.05

var (
	// ErrInvalidScenario wraps any validation failure in a loaded scenario.
	ErrInvalidScenario = errors.New("invalid scenario")

	scenarioValidate = newValidator()
)

// DataConfig points at the input CSV and names its columns.
type DataConfig struct {
	CSVPath     string   `yaml:"csv_path" validate:"required"`
	IDColumn    string   `yaml:"id_column" validate:"required"`
	YieldColumn string   `yaml:"yield_column" validate:"required"`
	ScoreCols   []string `yaml:"score_columns"`
	FlagCols    []string `yaml:"flag_columns"`
	LabelColumn string   `yaml:"label_column"`
}

// Schema converts the column names into a CSV parsing schema.
func (d DataConfig) Schema() records.CSVSchema {
	return records.CSVSchema{
		IDColumn:    d.IDColumn,
		YieldColumn: d.YieldColumn,
		ScoreCols:   d.ScoreCols,
		FlagCols:    d.FlagCols,
		LabelColumn: d.LabelColumn,
	}
}

// LabelingConfig sets the ground-truth quantile.
type LabelingConfig struct {
	// Quantile is the bottom-yield fraction labeled high-risk, in (0, 1].
	Quantile float64 `yaml:"quantile" validate:"gt=0,lte=1"`
}

// RandomPolicyConfig configures the seeded random baseline.
type RandomPolicyConfig struct {
	Rate float64 `yaml:"rate" validate:"gt=0,lte=1"`
	Seed int64   `yaml:"seed"`
}

// RuleBasedPolicyConfig configures score-ranked selection.
type RuleBasedPolicyConfig struct {
	Rate        float64 `yaml:"rate" validate:"gt=0,lte=1"`
	ScoreColumn string  `yaml:"score_column" validate:"required"`
}

// PredicateConfig is one named mandatory-selection expression.
type PredicateConfig struct {
	Name       string `yaml:"name" validate:"required"`
	Expression string `yaml:"expression" validate:"required"`
}

// BudgetedPolicyConfig configures severity-ranked selection under a spend
// cap with mandatory overrides. TotalBudget and MaxCount of zero mean
// unset.
type BudgetedPolicyConfig struct {
	ScoreColumn string            `yaml:"score_column" validate:"required"`
	UnitCost    float64           `yaml:"unit_cost" validate:"gt=0"`
	TotalBudget float64           `yaml:"total_budget" validate:"gte=0"`
	MaxCount    int               `yaml:"max_count" validate:"gte=0"`
	Predicates  []PredicateConfig `yaml:"predicates" validate:"dive"`
}

// PoliciesConfig holds all three policies.
type PoliciesConfig struct {
	Random    RandomPolicyConfig    `yaml:"random"`
	RuleBased RuleBasedPolicyConfig `yaml:"rule_based"`
	Budgeted  BudgetedPolicyConfig  `yaml:"budgeted"`
}

// ComparisonConfig controls the baseline-versus-framework validation run.
// The significance level is not a field here; see DefaultAlpha.
type ComparisonConfig struct {
	BootstrapIterations int    `yaml:"bootstrap_iterations" validate:"gte=100"`
	BootstrapSeed       int64  `yaml:"bootstrap_seed"`
	BootstrapMetric     string `yaml:"bootstrap_metric" validate:"oneof=recall normalized_cost"`
}

// SweepConfig controls the cost-ratio and multi-seed sweeps.
type SweepConfig struct {
	CostRatios []float64 `yaml:"cost_ratios" validate:"dive,gt=0"`
	SeedCount  int       `yaml:"seed_count" validate:"gte=1"`
	BaseSeed   int64     `yaml:"base_seed"`
	SeedRate   float64   `yaml:"seed_rate" validate:"gt=0,lte=1"`
}

// AuditConfig controls run persistence.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Scenario is a complete run description.
type Scenario struct {
	Name       string           `yaml:"name" validate:"required"`
	Data       DataConfig       `yaml:"data"`
	Labeling   LabelingConfig   `yaml:"labeling"`
	Policies   PoliciesConfig   `yaml:"policies"`
	Comparison ComparisonConfig `yaml:"comparison"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Audit      AuditConfig      `yaml:"audit"`
}

// Default returns a scenario with every tunable at its standard value.
// Callers still have to fill Name and the data section.
func Default() *Scenario {
	return &Scenario{
		Labeling: LabelingConfig{Quantile: 0.25},
		Policies: PoliciesConfig{
			Random:    RandomPolicyConfig{Rate: 0.10, Seed: 42},
			RuleBased: RuleBasedPolicyConfig{Rate: 0.10, ScoreColumn: "severity"},
			Budgeted: BudgetedPolicyConfig{
				ScoreColumn: "severity",
				UnitCost:    1,
			},
		},
		Comparison: ComparisonConfig{
			BootstrapIterations: 1000,
			BootstrapSeed:       42,
			BootstrapMetric:     "recall",
		},
		Sweep: SweepConfig{
			CostRatios: []float64{0.5, 1, 2, 5, 10},
			SeedCount:  50,
			BaseSeed:   1000,
			SeedRate:   0.10,
		},
	}
}

// Load merges a YAML scenario over the defaults and validates it.
//
// Outputs:
//   - *Scenario: Fully validated scenario.
//   - error: Decode failure, or ErrInvalidScenario wrapping the first
//     constraint violation.
func Load(r io.Reader) (*Scenario, error) {
	scenario := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(scenario); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}

	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return scenario, nil
}

// Validate checks field ranges and cross-field budget consistency.
func (s *Scenario) Validate() error {
	if err := scenarioValidate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	b := s.Policies.Budgeted
	if b.TotalBudget > 0 && b.TotalBudget < b.UnitCost {
		return fmt.Errorf("%w: total_budget %v cannot cover a single unit at cost %v",
			ErrInvalidScenario, b.TotalBudget, b.UnitCost)
	}
	return nil
}

// BudgetedSpec compiles the predicate expressions and converts the
// budgeted section into the policy's config.
func (s *Scenario) BudgetedSpec() (policy.BudgetedConfig, error) {
	specs := make([]policy.PredicateSpec, 0, len(s.Policies.Budgeted.Predicates))
	for _, p := range s.Policies.Budgeted.Predicates {
		specs = append(specs, policy.PredicateSpec{Name: p.Name, Expression: p.Expression})
	}
	compiled, err := policy.CompilePredicates(specs)
	if err != nil {
		return policy.BudgetedConfig{}, err
	}
	return policy.BudgetedConfig{
		ScoreColumn: s.Policies.Budgeted.ScoreColumn,
		UnitCost:    s.Policies.Budgeted.UnitCost,
		TotalBudget: s.Policies.Budgeted.TotalBudget,
		MaxCount:    s.Policies.Budgeted.MaxCount,
		Predicates:  compiled,
	}, nil
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}
