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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/crucible/services/llm"
	"github.com/AleutianAI/crucible/services/pipeline"
)

// runTask executes one task end to end and prints a human report.
func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := pipeline.LoadConfig(configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(taskFilePath)
	if err != nil {
		return fmt.Errorf("reading task file: %w", err)
	}
	var task pipeline.Task
	if err := yaml.Unmarshal(data, &task); err != nil {
		return fmt.Errorf("parsing task file: %w", err)
	}
	if task.Prompt == "" {
		return fmt.Errorf("task file %s has no prompt", taskFilePath)
	}
	if forceReview {
		task.ForceReview = true
	}

	p, err := pipeline.New(cfg, llm.NewOllamaClientFromEnv())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := p.Run(ctx, task)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

// printReport renders the run report for the terminal.
func printReport(report *pipeline.RunReport) {
	best := report.Outcome.Best

	fmt.Printf("Winner: candidate %d (score %.3f)\n", best.ID, best.TotalScore)
	fmt.Printf("Iterations: %d", report.Outcome.Iterations)
	if report.Outcome.Corrected {
		fmt.Printf(" (corrected, %.3f -> %.3f)", report.Outcome.InitialScore, report.Outcome.FinalScore)
	}
	fmt.Printf("\nStop reason: %s\n\n", report.Outcome.StopReason)

	fmt.Println("Validator results:")
	for _, score := range best.Scores {
		verdict := "PASS"
		if !score.Passed {
			verdict = "FAIL"
		}
		if score.Skipped {
			verdict = "SKIP"
		}
		fmt.Printf("  %-22s %-4s score=%.3f", score.Validator, verdict, score.Score)
		if score.Message != "" {
			fmt.Printf("  (%s)", score.Message)
		}
		fmt.Println()
		for _, e := range score.Errors {
			fmt.Printf("      - %s\n", e)
		}
	}

	if report.Review != nil {
		fmt.Println()
		if report.Review.Skipped {
			fmt.Printf("Review: skipped (%s)\n", report.Review.Reason)
		} else {
			fmt.Printf("Review: %d issue(s), %d tokens\n", len(report.Review.Issues), report.Review.TokensUsed)
			for _, issue := range report.Review.Issues {
				fmt.Printf("  [%s/%s] %s\n", issue.Severity, issue.Category, issue.Description)
			}
		}
	}

	fmt.Println("\nArtifact:")
	fmt.Println(best.Content)
}
