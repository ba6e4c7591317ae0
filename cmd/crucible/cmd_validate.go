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
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/crucible/services/llm"
	"github.com/AleutianAI/crucible/services/pipeline"
	"github.com/AleutianAI/crucible/services/pipeline/rules"
)

// runValidate runs the validator battery alone against a file.
func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := pipeline.LoadConfig(configPath)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}

	// The mock client is never called here; validation needs no model.
	p, err := pipeline.New(cfg, llm.NewMockClient(""))
	if err != nil {
		return err
	}
	validators, err := p.Validators(profileName)
	if err != nil {
		return err
	}

	artifact := &rules.Artifact{
		TaskID:   artifactPath,
		Content:  string(content),
		Language: languageFlag,
	}
	results := p.Runner().RunAll(cmd.Context(), artifact, validators, rules.Options{
		FailFast:   cfg.Validation.FailFast,
		MaxWorkers: cfg.Validation.MaxWorkers,
	})

	failed := 0
	for _, r := range results {
		verdict := "PASS"
		if !r.Passed {
			verdict = "FAIL"
			failed++
		}
		if r.Skipped {
			verdict = "SKIP"
		}
		fmt.Printf("%-22s %-4s score=%.3f duration=%s\n", r.Validator, verdict, r.Score, r.Duration)
		for _, e := range r.Errors {
			fmt.Printf("    - %s\n", e)
		}
		if r.Message != "" {
			fmt.Printf("    (%s)\n", r.Message)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d validators failed", failed, len(results))
	}
	fmt.Printf("\nAll %d validators passed.\n", len(results))
	return nil
}
