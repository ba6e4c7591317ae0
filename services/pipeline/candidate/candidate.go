// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package candidate holds the data model for generated artifact attempts:
// Candidate, its per-validator ValidationScores, and the CandidatePool
// that owns one generation round.
//
// Candidates are immutable in content after creation. Correction never
// edits a candidate in place; it produces a new one. The only mutations
// are score appends (by the rule runner path) and status transitions
// (by the selector), which keeps the concurrency story trivial.
package candidate

import (
	"fmt"
	"time"

	"github.com/AleutianAI/crucible/services/pipeline/rules"
)

// Status is the lifecycle state of a Candidate.
type Status string

const (
	// StatusGenerated means the candidate exists but has not been validated.
	StatusGenerated Status = "generated"

	// StatusValidated means validators have run but no selection happened.
	StatusValidated Status = "validated"

	// StatusSelected marks the pool winner.
	StatusSelected Status = "selected"

	// StatusRejected marks every non-winner after selection.
	StatusRejected Status = "rejected"
)

// ValidationScore is the outcome of one validator run against one
// candidate, plus the weight it carries in aggregate scoring.
//
// Invariant: Passed=false implies at least one entry in Errors, except
// for skipped validators (unavailable external tools), which report
// Passed=true with an explanatory Message instead.
type ValidationScore struct {
	rules.RuleResult

	// Weight is this validator's contribution to the weighted mean.
	// Defaults to 1.0.
	Weight float64 `json:"weight"`
}

// NewScore wraps a RuleResult with a weight.
func NewScore(r rules.RuleResult, weight float64) ValidationScore {
	if weight <= 0 {
		weight = 1.0
	}
	return ValidationScore{RuleResult: r, Weight: weight}
}

// Candidate is one generated artifact attempt.
type Candidate struct {
	// ID is the pool-scoped integer id (generation order).
	ID int `json:"id"`

	// TaskID is the owning task.
	TaskID string `json:"task_id"`

	// Content is the artifact text. Never mutated after creation.
	Content string `json:"content"`

	// Language tags the artifact for language-aware validators.
	Language string `json:"language,omitempty"`

	// Temperature and Seed are the sampling parameters that produced
	// this candidate.
	Temperature float64 `json:"temperature"`
	Seed        int     `json:"seed"`

	// Model is the model identifier used.
	Model string `json:"model"`

	// Scores is append-only, one entry per validator run.
	Scores []ValidationScore `json:"scores,omitempty"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// GenerationTime is the wall-clock latency of the generation call.
	GenerationTime time.Duration `json:"generation_time"`

	// TotalScore is the weighted aggregate. It is recomputed by the
	// selector from Scores; never set it directly.
	TotalScore float64 `json:"total_score"`

	// GenerationError is the reason string for a failed slot. A
	// candidate with a non-empty GenerationError has no content and
	// never enters scoring.
	GenerationError string `json:"generation_error,omitempty"`
}

// Failed reports whether this candidate is a failed generation slot.
func (c *Candidate) Failed() bool {
	return c.GenerationError != ""
}

// Artifact returns the rules view of this candidate's content.
func (c *Candidate) Artifact() *rules.Artifact {
	return &rules.Artifact{
		TaskID:   c.TaskID,
		Content:  c.Content,
		Language: c.Language,
	}
}

// AddScore appends one validation outcome.
func (c *Candidate) AddScore(s ValidationScore) {
	c.Scores = append(c.Scores, s)
	if c.Status == StatusGenerated {
		c.Status = StatusValidated
	}
}

// AllPassed reports whether every recorded score passed. A candidate
// with no scores has not passed anything.
func (c *Candidate) AllPassed() bool {
	if len(c.Scores) == 0 {
		return false
	}
	for _, s := range c.Scores {
		if !s.Passed {
			return false
		}
	}
	return true
}

// HasCriticalFailure reports whether any score is a failed critical.
func (c *Candidate) HasCriticalFailure() bool {
	for _, s := range c.Scores {
		if !s.Passed && s.Severity == rules.SeverityCritical {
			return true
		}
	}
	return false
}

// ErrorStrings returns every error across scores, tagged with the
// validator name, in score order.
func (c *Candidate) ErrorStrings() []string {
	var out []string
	for _, s := range c.Scores {
		for _, e := range s.Errors {
			out = append(out, fmt.Sprintf("[%s] %s", s.Validator, e))
		}
	}
	return out
}

// WarningStrings returns every warning across scores, tagged with the
// validator name, in score order.
func (c *Candidate) WarningStrings() []string {
	var out []string
	for _, s := range c.Scores {
		for _, w := range s.Warnings {
			out = append(out, fmt.Sprintf("[%s] %s", s.Validator, w))
		}
	}
	return out
}

// ValidationTime sums score durations (cache hits contribute their
// near-zero lookup time, keeping cache wins observable in stats).
func (c *Candidate) ValidationTime() time.Duration {
	var total time.Duration
	for _, s := range c.Scores {
		total += s.Duration
	}
	return total
}
