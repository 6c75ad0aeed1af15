// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/metrosel/services/selector/audit"
	"github.com/AleutianAI/metrosel/services/selector/compare"
	"github.com/AleutianAI/metrosel/services/selector/config"
	"github.com/AleutianAI/metrosel/services/selector/evaluate"
	"github.com/AleutianAI/metrosel/services/selector/policy"
	"github.com/AleutianAI/metrosel/services/selector/risk"
)

// policyReport pairs a policy's confusion-matrix metrics with the
// currency-free view used for external reporting.
type policyReport struct {
	Metrics       *evaluate.Metrics    `json:"metrics"`
	Normalized    *evaluate.Normalized `json:"normalized"`
	BudgetOverrun bool                 `json:"budget_overrun"`
}

func runValidate(cmd *cobra.Command, _ []string) error {
	scenario, err := loadScenario(scenarioPath)
	if err != nil {
		return err
	}
	set, err := loadRecords(scenario.Data.CSVPath, scenario.Data.Schema())
	if err != nil {
		return err
	}
	slog.Info("records loaded", "scenario", scenario.Name, "n", set.Len())

	highRisk, def, err := risk.Label(set, scenario.Labeling.Quantile)
	if err != nil {
		return fmt.Errorf("label ground truth: %w", err)
	}
	slog.Info("ground truth labeled",
		"quantile", def.Quantile, "k", def.K, "threshold_yield", def.ThresholdYield)

	random, err := policy.NewRandom(scenario.Policies.Random.Rate, scenario.Policies.Random.Seed)
	if err != nil {
		return err
	}
	ranked, err := policy.NewRuleBased(scenario.Policies.RuleBased.Rate, scenario.Policies.RuleBased.ScoreColumn)
	if err != nil {
		return err
	}
	budgetedSpec, err := scenario.BudgetedSpec()
	if err != nil {
		return fmt.Errorf("compile predicates: %w", err)
	}
	budgeted, err := policy.NewBudgetedMandatory(budgetedSpec)
	if err != nil {
		return err
	}

	unitCost := scenario.Policies.Budgeted.UnitCost
	reports := make(map[string]policyReport)
	selections := make([]*policy.Selection, 0, 3)
	for _, p := range []policy.Selector{random, ranked, budgeted} {
		sel, err := p.Select(set)
		if err != nil {
			return fmt.Errorf("policy %s: %w", p.Name(), err)
		}
		m, err := evaluate.Evaluate(set, highRisk, sel.Mask(set), unitCost)
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", p.Name(), err)
		}
		if sel.BudgetOverrun {
			slog.Warn("mandatory subset exceeds budget cap",
				"policy", p.Name(), "selected", sel.Size())
		}
		reports[p.Name()] = policyReport{
			Metrics:       m,
			Normalized:    m.Normalized(),
			BudgetOverrun: sel.BudgetOverrun,
		}
		selections = append(selections, sel)
		slog.Info("policy evaluated",
			"policy", p.Name(), "selected", sel.Size(), "recall", m.Recall)
	}

	validator := &compare.Validator{
		Alpha:               config.DefaultAlpha,
		Quantile:            scenario.Labeling.Quantile,
		BootstrapIterations: scenario.Comparison.BootstrapIterations,
		BootstrapSeed:       scenario.Comparison.BootstrapSeed,
		BootstrapMetric:     compare.Metric(scenario.Comparison.BootstrapMetric),
	}
	comparison, err := validator.Compare(set, highRisk, random, budgeted)
	if err != nil {
		return fmt.Errorf("compare policies: %w", err)
	}
	slog.Info("comparison complete",
		"recall_delta", comparison.RecallDelta,
		"categorical_significant", comparison.Categorical.Significant)

	var proxy *compare.ProxyVerdict
	if referencePath != "" {
		ref, err := loadRecords(referencePath, scenario.Data.Schema())
		if err != nil {
			return err
		}
		proxy, err = compare.ProxyPlausibility(set.Yields(), ref.Yields())
		if err != nil {
			return fmt.Errorf("plausibility check: %w", err)
		}
		slog.Info("plausibility check complete", "status", proxy.Status)
	}

	if scenario.Audit.Enabled {
		store, err := audit.Open(audit.DefaultConfig(scenario.Audit.Path))
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer store.Close()

		runID := audit.NewRunID()
		if err := store.SaveRun(runID, scenario.Name, def, selections); err != nil {
			return fmt.Errorf("persist run: %w", err)
		}
		slog.Info("run persisted", "run_id", runID, "path", scenario.Audit.Path)
	}

	artifacts := map[string]any{
		"label_definition.json": def,
		"policy_metrics.json":   reports,
		"comparison.json":       comparison,
	}
	if proxy != nil {
		artifacts["plausibility.json"] = proxy
	}
	for name, v := range artifacts {
		path, err := writeReport(name, v)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}
