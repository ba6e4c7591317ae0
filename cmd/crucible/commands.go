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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath   string
	taskFilePath string
	artifactPath string
	profileName  string
	languageFlag string
	forceReview  bool

	rootCmd = &cobra.Command{
		Use:   "crucible",
		Short: "A validation crucible for LLM-generated code",
		Long: `Crucible generates multiple candidate artifacts from a local or remote
model, runs each through a validator battery, selects the best by weighted
score, and self-corrects failing output with bounded iterations.`,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run one task through the full generate-validate-select pipeline",
		RunE:  runTask, // Defined in cmd_run.go
	}

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Run the validator battery against an existing artifact file",
		RunE:  runValidate, // Defined in cmd_validate.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to crucible.yaml (defaults apply when omitted)")

	runCmd.Flags().StringVar(&taskFilePath, "task-file", "", "Path to the YAML task definition (required)")
	runCmd.Flags().BoolVar(&forceReview, "force-review", false, "Review the winner regardless of gating heuristics")
	_ = runCmd.MarkFlagRequired("task-file")

	validateCmd.Flags().StringVar(&artifactPath, "file", "", "Path to the artifact to validate (required)")
	validateCmd.Flags().StringVar(&profileName, "profile", "", "Validation profile name (config default when omitted)")
	validateCmd.Flags().StringVar(&languageFlag, "language", "go", "Artifact language tag")
	_ = validateCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
