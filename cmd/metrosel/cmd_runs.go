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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/metrosel/services/selector/audit"
)

func openAuditStore() (*audit.Store, error) {
	cfg := audit.DefaultConfig(runsDBPath)
	cfg.SyncWrites = false // read-only usage
	return audit.Open(cfg)
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	store, err := openAuditStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ids, err := store.ListRuns()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no runs stored")
		return nil
	}
	for _, id := range ids {
		record, err := store.LoadRun(id)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  %s  policies=%d\n",
			id, record.CreatedAt.Format("2006-01-02 15:04:05"),
			record.Scenario, len(record.Policies))
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := openAuditStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runID := args[0]
	record, err := store.LoadRun(runID)
	if err != nil {
		return err
	}

	out := struct {
		Run        *audit.RunRecord          `json:"run"`
		Selections []audit.SelectionSnapshot `json:"selections"`
	}{Run: record}

	for _, policyName := range record.Policies {
		snap, err := store.LoadSelection(runID, policyName)
		if err != nil {
			return err
		}
		out.Selections = append(out.Selections, *snap)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
