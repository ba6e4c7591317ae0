// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules defines the Validator interface, the built-in validator
// battery, and the Runner that executes a validator set against one
// artifact with parallelism, crash isolation, and result caching.
//
// New validators are added by implementing Validator and handing an
// instance to the Runner; the Runner depends only on the interface.
package rules

import (
	"context"
	"strings"
	"time"
)

// Severity indicates how disqualifying a validator failure is.
type Severity string

const (
	// SeverityInfo is for informational checks.
	SeverityInfo Severity = "info"

	// SeverityWarning is for issues that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityHigh is for serious issues short of disqualification.
	SeverityHigh Severity = "high"

	// SeverityCritical marks disqualifying failures. A failed critical
	// result triggers the selector's scoring penalty and the runner's
	// fail-fast stop.
	SeverityCritical Severity = "critical"
)

// Rank orders severities for fail-fast scheduling: higher runs first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Artifact is the unit of validation: one generated text plus the
// metadata language-aware validators need.
type Artifact struct {
	// TaskID is the owning task, for logging only.
	TaskID string

	// Content is the artifact text.
	Content string

	// Language tags the content (e.g. "go", "python"). Validators that
	// only understand one language skip others.
	Language string
}

// Lines returns the artifact line count.
func (a *Artifact) Lines() int {
	if a.Content == "" {
		return 0
	}
	return strings.Count(a.Content, "\n") + 1
}

// RuleResult is the outcome of one validator against one artifact.
type RuleResult struct {
	// Validator is the producing validator's name.
	Validator string `json:"validator"`

	// Severity is the validator's severity class.
	Severity Severity `json:"severity"`

	// Passed is the pass/fail verdict. Skipped validators pass.
	Passed bool `json:"passed"`

	// Score is the quality score in [0,1].
	Score float64 `json:"score"`

	// Errors is non-empty whenever Passed is false and Skipped is false.
	Errors []string `json:"errors,omitempty"`

	// Warnings are non-blocking findings.
	Warnings []string `json:"warnings,omitempty"`

	// Skipped marks a validator that could not run (e.g. external tool
	// not installed). Skip is modeled as success so missing optional
	// tooling never blocks a pipeline run.
	Skipped bool `json:"skipped,omitempty"`

	// Message is the human-readable reason for skips and crashes, so a
	// caller can tell "code is bad" from "validator couldn't run".
	Message string `json:"message,omitempty"`

	// Duration is the measured run time (near-zero for cache hits).
	Duration time.Duration `json:"duration"`
}

// Pass builds a passing result.
func Pass(name string, sev Severity, score float64, warnings ...string) RuleResult {
	return RuleResult{
		Validator: name,
		Severity:  sev,
		Passed:    true,
		Score:     clamp01(score),
		Warnings:  warnings,
	}
}

// Fail builds a failing result. At least one error is required; callers
// with nothing specific to say get a generic message.
func Fail(name string, sev Severity, score float64, errs ...string) RuleResult {
	if len(errs) == 0 {
		errs = []string{"validation failed"}
	}
	return RuleResult{
		Validator: name,
		Severity:  sev,
		Passed:    false,
		Score:     clamp01(score),
		Errors:    errs,
	}
}

// Skip builds a pass/skip result with a reason.
func Skip(name string, sev Severity, reason string) RuleResult {
	return RuleResult{
		Validator: name,
		Severity:  sev,
		Passed:    true,
		Score:     1.0,
		Skipped:   true,
		Message:   reason,
	}
}

// Validator is a single independent check over one artifact.
//
// Implementations must be safe for concurrent use; the Runner may invoke
// the same validator against many candidates at once.
type Validator interface {
	// Name identifies the validator in results, weights, and caches.
	Name() string

	// Severity is the validator's failure class.
	Severity() Severity

	// Check runs the validation. It should honor ctx cancellation for
	// anything blocking; pure text checks may ignore it.
	Check(ctx context.Context, artifact *Artifact) RuleResult
}

// ConfigFingerprinter is an optional interface for validators whose
// behavior depends on configuration. The fingerprint participates in
// cache keys so changing a validator's parameters invalidates old
// entries automatically. Validators without it are keyed by name alone.
type ConfigFingerprinter interface {
	Fingerprint() string
}

// fingerprintOf returns the cache-relevant configuration identity.
func fingerprintOf(v Validator) string {
	if f, ok := v.(ConfigFingerprinter); ok {
		return f.Fingerprint()
	}
	return ""
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
