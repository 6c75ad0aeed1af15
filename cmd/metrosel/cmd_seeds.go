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

	"github.com/AleutianAI/metrosel/services/selector/risk"
	"github.com/AleutianAI/metrosel/services/selector/sweep"
)

func runSeeds(cmd *cobra.Command, _ []string) error {
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

	result, err := sweep.MultiSeed(set, highRisk,
		scenario.Sweep.SeedRate, scenario.Sweep.SeedCount, scenario.Sweep.BaseSeed)
	if err != nil {
		return fmt.Errorf("multi-seed sweep: %w", err)
	}
	slog.Info("seed band complete",
		"seeds", result.SeedCount, "rate", result.Rate,
		"p5", result.P5, "p50", result.P50, "p95", result.P95)

	path, err := writeReport("seed_band.json", result)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
