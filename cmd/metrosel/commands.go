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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/metrosel/services/selector/config"
	"github.com/AleutianAI/metrosel/services/selector/records"
)

var (
	rootCmd = &cobra.Command{
		Use:   "metrosel",
		Short: "Wafer metrology selection and statistical validation",
		Long: `Metrosel labels the lowest-yield fraction of a wafer lot as high-risk,
runs selection policies against the label, and validates any claimed
advantage with paired statistical tests, bootstrap intervals, and
cost-ratio sweeps.`,
	}

	logLevel string
	logJSON  bool
	logDir   string

	scenarioPath string
	outputDir    string

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Run the full selection and validation pipeline for a scenario",
		Long: `Loads the scenario CSV, labels the ground truth, runs all three
selection policies, evaluates each against the label, and compares the
baseline against the framework policy with yield, categorical, and
bootstrap tests. Writes one JSON report per stage.`,
		RunE: runValidate,
	}
	referencePath string

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Sweep the cost-ratio grid and classify dominance per point",
		RunE:  runSweep,
	}

	seedsCmd = &cobra.Command{
		Use:   "seeds",
		Short: "Build the random policy's recall reference band across seeds",
		RunE:  runSeeds,
	}

	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted audit runs",
	}
	runsDBPath  string
	runsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored run IDs",
		RunE:  runRunsList,
	}
	runsShowCmd = &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a stored run's label definition and policy decisions",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsShow,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "minimum log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "also write logs to this directory")

	for _, cmd := range []*cobra.Command{validateCmd, sweepCmd, seedsCmd} {
		cmd.Flags().StringVar(&scenarioPath, "scenario", "", "path to the scenario YAML (required)")
		cmd.Flags().StringVar(&outputDir, "out", ".", "directory for JSON reports")
		_ = cmd.MarkFlagRequired("scenario")
	}
	validateCmd.Flags().StringVar(&referencePath, "reference", "", "reference-source CSV for the cross-source plausibility check")

	runsCmd.PersistentFlags().StringVar(&runsDBPath, "db", "", "audit store directory (required)")
	_ = runsCmd.MarkPersistentFlagRequired("db")
	runsCmd.AddCommand(runsListCmd, runsShowCmd)

	rootCmd.AddCommand(validateCmd, sweepCmd, seedsCmd, runsCmd)
}

// loadScenario reads and validates the scenario file.
func loadScenario(path string) (*config.Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario %s: %w", path, err)
	}
	defer f.Close()

	scenario, err := config.Load(f)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return scenario, nil
}

// loadRecords reads the scenario's CSV into an immutable record set.
func loadRecords(path string, schema records.CSVSchema) (*records.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data %s: %w", path, err)
	}
	defer f.Close()

	set, err := records.FromCSV(f, schema)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return set, nil
}

// writeReport writes one pretty-printed JSON artifact into the output dir.
func writeReport(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
