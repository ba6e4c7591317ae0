// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package loop drives the generate-validate-select cycle with bounded
// self-correction: when the best candidate of an iteration still fails
// checks, the next iteration regenerates from a corrective prompt built
// out of the failure details and the blackboard's accumulated hints.
package loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/crucible/pkg/logging"
	"github.com/AleutianAI/crucible/services/pipeline/blackboard"
	"github.com/AleutianAI/crucible/services/pipeline/candidate"
	"github.com/AleutianAI/crucible/services/pipeline/generate"
	"github.com/AleutianAI/crucible/services/pipeline/rules"
	"github.com/AleutianAI/crucible/services/pipeline/selector"
)

// Stop reasons reported in Outcome.StopReason.
const (
	StopAllPassed     = "all_passed"
	StopBelowSalvage  = "below_salvage"
	StopMaxIterations = "max_iterations"
)

// TopCandidateHook runs against each iteration's top-ranked candidate
// before selection. Returned scores are appended to the candidate, so a
// hook can veto or boost it (the pipeline wires cross-architecture
// review in through this).
type TopCandidateHook func(ctx context.Context, c *candidate.Candidate) []candidate.ValidationScore

// Config tunes the correction loop.
type Config struct {
	// MaxIterations bounds the loop. Non-positive means 3.
	MaxIterations int

	// MinSalvage is the score floor: when an iteration's best falls
	// below it, further correction is considered hopeless and the loop
	// stops. Non-positive means 0.1.
	MinSalvage float64

	// Runner options for the validation pass.
	RunnerOpts rules.Options

	// Hook, when non-nil, runs against the top-ranked candidate of each
	// iteration before selection.
	Hook TopCandidateHook
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 3
	}
	if c.MinSalvage <= 0 {
		c.MinSalvage = 0.1
	}
	return c
}

// IterationSummary reports one loop iteration.
type IterationSummary struct {
	// Iteration is zero-based.
	Iteration int `json:"iteration"`

	// Pool stats for the iteration's generation round.
	Stats candidate.Stats `json:"stats"`

	// BestID and BestScore identify the iteration winner.
	BestID    int     `json:"best_id"`
	BestScore float64 `json:"best_score"`

	// Duration covers the whole iteration.
	Duration time.Duration `json:"duration"`
}

// Outcome is the loop's final report.
type Outcome struct {
	// Best is the best candidate seen across all iterations, not
	// necessarily from the last one.
	Best *candidate.Candidate `json:"best"`

	// Corrected is true when more than one iteration ran.
	Corrected bool `json:"corrected"`

	// Iterations is the number of iterations that ran.
	Iterations int `json:"iterations"`

	// InitialScore is the first iteration's best score; FinalScore is
	// Best's score.
	InitialScore float64 `json:"initial_score"`
	FinalScore   float64 `json:"final_score"`

	// Summaries, one per iteration.
	Summaries []IterationSummary `json:"summaries"`

	// StopReason is one of the Stop* constants.
	StopReason string `json:"stop_reason"`
}

// Loop owns one task's correction cycle.
//
// Thread Safety: a Loop runs one task at a time; create one per task.
type Loop struct {
	generator  *generate.Generator
	runner     *rules.Runner
	validators []rules.Validator
	selector   *selector.Selector
	board      *blackboard.Blackboard
	config     Config
	logger     *logging.Logger
}

// New creates a Loop. A nil board gets a fresh blackboard; a nil logger
// falls back to the default.
func New(
	generator *generate.Generator,
	runner *rules.Runner,
	validators []rules.Validator,
	sel *selector.Selector,
	board *blackboard.Blackboard,
	config Config,
	logger *logging.Logger,
) *Loop {
	if board == nil {
		board = blackboard.New()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Loop{
		generator:  generator,
		runner:     runner,
		validators: validators,
		selector:   sel,
		board:      board,
		config:     config.withDefaults(),
		logger:     logger,
	}
}

// Run executes the correction loop for one task.
//
// Outputs:
//   - *Outcome: The loop report with the best candidate seen.
//   - error: Non-nil when a whole generation round produced nothing
//     viable, or on context cancellation.
func (l *Loop) Run(ctx context.Context, req *generate.Request) (*Outcome, error) {
	cfg := l.config
	outcome := &Outcome{}

	var bestSeen *candidate.Candidate
	prompt := req.Prompt

	for iteration := 0; iteration < cfg.MaxIterations; iteration++ {
		iterStart := time.Now()

		iterReq := *req
		iterReq.Prompt = prompt
		pool, err := l.generator.Generate(ctx, &iterReq)
		if err != nil {
			return nil, err
		}

		l.validatePool(ctx, pool)

		ranked := l.selector.Rank(pool)
		if len(ranked) == 0 {
			return nil, selector.ErrEmptyPool
		}

		if cfg.Hook != nil {
			top := ranked[0]
			for _, score := range cfg.Hook(ctx, top) {
				top.AddScore(score)
			}
		}

		best, err := l.selector.Select(pool)
		if err != nil {
			return nil, err
		}

		// Feed the board from every validated candidate so later
		// iterations learn from losers too.
		for _, c := range pool.Viable() {
			l.board.Extract(c, iteration)
		}

		outcome.Iterations = iteration + 1
		outcome.Summaries = append(outcome.Summaries, IterationSummary{
			Iteration: iteration,
			Stats:     pool.Stats(),
			BestID:    best.ID,
			BestScore: best.TotalScore,
			Duration:  time.Since(iterStart),
		})
		if iteration == 0 {
			outcome.InitialScore = best.TotalScore
		}
		if bestSeen == nil || best.TotalScore > bestSeen.TotalScore {
			bestSeen = best
		}

		l.logger.Info("correction iteration complete",
			"task_id", req.TaskID,
			"iteration", iteration,
			"best_score", best.TotalScore,
			"all_passed", best.AllPassed(),
		)

		if best.AllPassed() {
			outcome.StopReason = StopAllPassed
			break
		}
		if best.TotalScore < cfg.MinSalvage {
			outcome.StopReason = StopBelowSalvage
			break
		}
		if iteration == cfg.MaxIterations-1 {
			outcome.StopReason = StopMaxIterations
			break
		}

		prompt = l.correctivePrompt(req.Prompt, best)
	}

	outcome.Best = bestSeen
	outcome.Corrected = outcome.Iterations > 1
	outcome.FinalScore = bestSeen.TotalScore
	return outcome, nil
}

// validatePool runs the validator battery over every viable candidate.
func (l *Loop) validatePool(ctx context.Context, pool *candidate.Pool) {
	for _, c := range pool.Viable() {
		results := l.runner.RunAll(ctx, c.Artifact(), l.validators, l.config.RunnerOpts)
		for _, r := range results {
			// Weight 0 defers to the selector's weight table.
			c.AddScore(candidate.ValidationScore{RuleResult: r})
		}
	}
}

// correctivePrompt builds the next iteration's prompt: the original
// task, the best attempt verbatim, the blackboard's hints with
// recurring issues leading, then the attempt's deduplicated failures.
// Recurring issues come before everything else the model must fix.
func (l *Loop) correctivePrompt(original string, best *candidate.Candidate) string {
	var sb strings.Builder
	sb.WriteString(original)
	sb.WriteString("\n\nYour previous attempt:\n```\n")
	sb.WriteString(best.Content)
	sb.WriteString("\n```\n")

	if hints := l.board.BuildHints(0, 0); hints != "" {
		sb.WriteString("\n")
		sb.WriteString(hints)
	}

	sb.WriteString("\nIt failed validation with these problems:\n")
	seen := make(map[string]bool)
	for _, errMsg := range best.ErrorStrings() {
		if seen[errMsg] {
			continue
		}
		seen[errMsg] = true
		fmt.Fprintf(&sb, "- %s\n", errMsg)
	}

	sb.WriteString("\nProduce a corrected version that fixes every problem listed above.")
	return sb.String()
}
