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

	"github.com/AleutianAI/metrosel/services/selector/policy"
	"github.com/AleutianAI/metrosel/services/selector/risk"
	"github.com/AleutianAI/metrosel/services/selector/sweep"
)

func runSweep(cmd *cobra.Command, _ []string) error {
	scenario, err := loadScenario(scenarioPath)
	if err != nil {
		return err
	}
	set, err := loadRecords(scenario.Data.CSVPath, scenario.Data.Schema())
	if err != nil {
		return err
	}
	highRisk, _, err := risk.Label(set, scenario.Labeling.Quantile)
	if err != nil {
		return fmt.Errorf("label ground truth: %w", err)
	}

	budgetedSpec, err := scenario.BudgetedSpec()
	if err != nil {
		return fmt.Errorf("compile predicates: %w", err)
	}

	sw := &sweep.Sensitivity{
		Ratios: scenario.Sweep.CostRatios,
		Baseline: func(float64) (policy.Selector, error) {
			return policy.NewRandom(scenario.Policies.Random.Rate, scenario.Policies.Random.Seed)
		},
		// The budget buys fewer measurements as the ratio rises, so the
		// framework policy is rebuilt per grid point.
		Framework: func(ratio float64) (policy.Selector, error) {
			spec := budgetedSpec
			spec.UnitCost = ratio
			return policy.NewBudgetedMandatory(spec)
		},
	}
	result, err := sw.Run(set, highRisk)
	if err != nil {
		return fmt.Errorf("sensitivity sweep: %w", err)
	}
	slog.Info("sweep complete",
		"points", len(scenario.Sweep.CostRatios),
		"recall_dominance", result.RecallDominanceCount,
		"cost_dominance", result.CostDominanceCount,
		"none", result.NoneCount)

	path, err := writeReport("sensitivity_sweep.json", result)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
