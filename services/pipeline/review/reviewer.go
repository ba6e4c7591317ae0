// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package review sends top candidates to a second, architecturally
// different model for adversarial inspection. The reviewer is strictly
// best-effort: budget exhaustion, rate limits, and backend outages all
// degrade to a skipped review with a reason, never to a failed
// pipeline run.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/crucible/pkg/logging"
	"github.com/AleutianAI/crucible/services/llm"
	"github.com/AleutianAI/crucible/services/pipeline/candidate"
)

var tracer = otel.Tracer("crucible.pipeline.review")

// riskTags are task risk labels that always trigger review.
var riskTags = map[string]bool{
	"security":             true,
	"infrastructure":       true,
	"performance-critical": true,
}

// DefaultLineThreshold is the artifact size above which review is
// triggered regardless of risk tags.
const DefaultLineThreshold = 50

// Issue is one finding from the review model.
type Issue struct {
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Line        int    `json:"line,omitempty"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// Critical reports whether the issue is severity critical.
func (i Issue) Critical() bool {
	return strings.EqualFold(i.Severity, "critical")
}

// Result is the outcome of one review attempt.
type Result struct {
	// Skipped is true when review did not run; Reason says why.
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`

	// Issues are the reviewer's findings, empty for a clean pass.
	Issues []Issue `json:"issues,omitempty"`

	// TokensUsed is the total token usage of the review call.
	TokensUsed int `json:"tokens_used"`

	// Duration is the review call latency.
	Duration time.Duration `json:"duration"`
}

// HasCritical reports whether any finding is critical.
func (r *Result) HasCritical() bool {
	for _, issue := range r.Issues {
		if issue.Critical() {
			return true
		}
	}
	return false
}

// Config tunes the Reviewer.
type Config struct {
	// LineThreshold triggers review for artifacts at or above this many
	// lines. Non-positive means DefaultLineThreshold.
	LineThreshold int

	// Breaker configures the backend circuit breaker.
	Breaker BreakerConfig

	// Budget is the per-run cost ceiling (non-positive = unlimited) and
	// RatePer1K the cost per thousand tokens.
	Budget    float64
	RatePer1K float64

	// RequestsPerMinute caps review call rate. Non-positive disables
	// rate limiting.
	RequestsPerMinute int
}

// Reviewer runs cross-architecture review of top candidates.
//
// Description:
//
//	The review model should come from a different family than the
//	generator, so its failure modes do not mirror the generator's.
//	Reviewer never blocks the pipeline: every degradation path
//	produces a skipped Result with a reason.
//
// Thread Safety: Safe for concurrent use.
type Reviewer struct {
	client  llm.Client
	breaker *CircuitBreaker
	costs   *CostTracker
	limiter *rate.Limiter
	config  Config
	logger  *logging.Logger
}

// New creates a Reviewer backed by the given model client.
func New(client llm.Client, config Config, logger *logging.Logger) *Reviewer {
	if logger == nil {
		logger = logging.Default()
	}
	if config.LineThreshold <= 0 {
		config.LineThreshold = DefaultLineThreshold
	}
	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(config.RequestsPerMinute)/60.0), config.RequestsPerMinute)
	}
	return &Reviewer{
		client:  client,
		breaker: NewCircuitBreaker(config.Breaker),
		costs:   NewCostTracker(config.Budget, config.RatePer1K),
		limiter: limiter,
		config:  config,
		logger:  logger,
	}
}

// Breaker exposes the circuit breaker for stats reporting.
func (r *Reviewer) Breaker() *CircuitBreaker { return r.breaker }

// Costs exposes the cost tracker for stats reporting.
func (r *Reviewer) Costs() *CostTracker { return r.costs }

// ShouldReview decides whether a candidate warrants review.
//
// Inputs:
//   - c: The candidate (the pool's top-ranked).
//   - riskTag: The task's risk label, "" for none.
//   - force: Operator override; reviews regardless of heuristics, but
//     never through an open circuit.
func (r *Reviewer) ShouldReview(c *candidate.Candidate, riskTag string, force bool) bool {
	if c == nil || c.Failed() {
		return false
	}
	if r.breaker.State() == CircuitOpen {
		return false
	}
	if force {
		return true
	}
	if riskTags[strings.ToLower(riskTag)] {
		return true
	}
	return c.Artifact().Lines() >= r.config.LineThreshold
}

// Review runs one review call against the candidate.
//
// Outputs:
//   - *Result: Always non-nil. Degradations come back as Skipped with
//     a Reason; only findings from a completed call populate Issues.
func (r *Reviewer) Review(ctx context.Context, c *candidate.Candidate) *Result {
	ctx, span := tracer.Start(ctx, "review.Review")
	defer span.End()

	if !r.costs.HasBudget() {
		span.SetAttributes(attribute.String("review.skip", "budget"))
		return &Result{Skipped: true, Reason: "review budget exhausted"}
	}
	// The rate limiter is consulted before the breaker so a throttled
	// call never counts as a backend probe.
	if r.limiter != nil && !r.limiter.Allow() {
		span.SetAttributes(attribute.String("review.skip", "rate_limit"))
		return &Result{Skipped: true, Reason: "review rate limited"}
	}

	allowed, release := r.breaker.Allow()
	if !allowed {
		span.SetAttributes(attribute.String("review.skip", "circuit_open"))
		return &Result{Skipped: true, Reason: "review circuit open"}
	}
	if release != nil {
		defer release()
	}

	start := time.Now()
	resp, err := r.client.Generate(ctx, &llm.Request{
		System: reviewSystemPrompt,
		Prompt: buildReviewPrompt(c),
	})
	if err != nil {
		r.breaker.RecordFailure()
		r.logger.Warn("review call failed",
			"task_id", c.TaskID,
			"candidate", c.ID,
			"error", err.Error(),
		)
		return &Result{Skipped: true, Reason: fmt.Sprintf("review backend error: %v", err), Duration: time.Since(start)}
	}

	issues, err := parseIssues(resp.Content)
	if err != nil {
		// Unusable output counts against the backend the same as a
		// transport failure: a reviewer that can't produce parseable
		// findings must eventually open the breaker. The tokens were
		// still consumed, so the spend is recorded.
		r.breaker.RecordFailure()
		r.costs.Add(resp.InputTokens + resp.OutputTokens)
		return &Result{
			Skipped:    true,
			Reason:     fmt.Sprintf("review response unparseable: %v", err),
			TokensUsed: resp.InputTokens + resp.OutputTokens,
			Duration:   time.Since(start),
		}
	}

	r.breaker.RecordSuccess()
	tokens := resp.InputTokens + resp.OutputTokens
	r.costs.Add(tokens)

	span.SetAttributes(attribute.Int("review.issues", len(issues)))
	r.logger.Info("review complete",
		"task_id", c.TaskID,
		"candidate", c.ID,
		"issues", len(issues),
		"tokens", tokens,
	)
	return &Result{Issues: issues, TokensUsed: tokens, Duration: time.Since(start)}
}

const reviewSystemPrompt = `You are a strict code reviewer. Inspect the submitted artifact for ` +
	`correctness, security, and maintainability problems. Respond with a JSON array of issues, ` +
	`each {"severity","category","description","line","suggestion"}. Respond with [] when the ` +
	`artifact is acceptable. Output JSON only.`

// buildReviewPrompt renders the candidate for the review model.
func buildReviewPrompt(c *candidate.Candidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Language: %s\n\n", c.Language)
	sb.WriteString("Artifact:\n```\n")
	sb.WriteString(c.Content)
	sb.WriteString("\n```\n")
	return sb.String()
}

// parseIssues decodes the review model's JSON, tolerating a markdown
// code fence around it.
func parseIssues(content string) ([]Issue, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if trimmed == "" {
		return nil, fmt.Errorf("empty response")
	}

	var issues []Issue
	if err := json.Unmarshal([]byte(trimmed), &issues); err != nil {
		// Some models wrap the array in an object.
		var wrapped struct {
			Issues []Issue `json:"issues"`
		}
		if err2 := json.Unmarshal([]byte(trimmed), &wrapped); err2 != nil {
			return nil, err
		}
		return wrapped.Issues, nil
	}
	return issues, nil
}
