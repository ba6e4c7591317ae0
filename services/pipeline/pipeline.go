// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline wires the full generation-and-validation pipeline:
// multi-candidate generation, the validator battery with its shared
// result cache, weighted selection, bounded self-correction, optional
// cross-architecture review, and fire-and-forget outcome recording.
//
// Everything is explicitly constructed; the package keeps no global
// state beyond its OTel instruments.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/crucible/pkg/logging"
	"github.com/AleutianAI/crucible/services/llm"
	"github.com/AleutianAI/crucible/services/pipeline/blackboard"
	"github.com/AleutianAI/crucible/services/pipeline/cache"
	"github.com/AleutianAI/crucible/services/pipeline/candidate"
	"github.com/AleutianAI/crucible/services/pipeline/generate"
	"github.com/AleutianAI/crucible/services/pipeline/loop"
	"github.com/AleutianAI/crucible/services/pipeline/outcome"
	"github.com/AleutianAI/crucible/services/pipeline/review"
	"github.com/AleutianAI/crucible/services/pipeline/rules"
	"github.com/AleutianAI/crucible/services/pipeline/selector"
)

// Task is one unit of work for the pipeline.
type Task struct {
	// ID identifies the task; empty gets a generated UUID.
	ID string `yaml:"id"`

	// Type is a free-form task category for outcome analysis.
	Type string `yaml:"type"`

	// RiskTag drives review gating ("security", "infrastructure",
	// "performance-critical", or anything else).
	RiskTag string `yaml:"risk_tag"`

	// Prompt and System are the generation inputs.
	Prompt string `yaml:"prompt"`
	System string `yaml:"system"`

	// Language tags candidates for language-aware validators.
	Language string `yaml:"language"`

	// Profile overrides the configured default validation profile.
	Profile string `yaml:"profile"`

	// ForceReview reviews the winner regardless of gating heuristics.
	ForceReview bool `yaml:"force_review"`
}

// RunReport is the pipeline's full result for one task.
type RunReport struct {
	// Outcome is the correction loop's report; Outcome.Best is the
	// winner.
	Outcome *loop.Outcome

	// Review is the last review attempt, nil when gating skipped review
	// entirely.
	Review *review.Result

	// Record is the persisted outcome record.
	Record *outcome.Record
}

// resultCache adapts the shared LRU to the runner's cache interface.
type resultCache struct {
	lru *cache.LRU[uint64, rules.RuleResult]
}

func (c *resultCache) Get(key uint64) (rules.RuleResult, bool) { return c.lru.Get(key) }
func (c *resultCache) Put(key uint64, result rules.RuleResult) { c.lru.Set(key, result) }

// Option customizes pipeline construction.
type Option func(*Pipeline)

// WithLogger replaces the logger built from config.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithReviewClient supplies the review backend client. Review should
// run on a different model family than generation; without this option
// an enabled review section builds an Ollama client from its own
// base_url/model settings.
func WithReviewClient(client llm.Client) Option {
	return func(p *Pipeline) { p.reviewClient = client }
}

// WithRecorder replaces the outcome recorder built from config.
func WithRecorder(rec outcome.Recorder) Option {
	return func(p *Pipeline) { p.recorder = rec }
}

// Pipeline owns all components for running tasks.
//
// Thread Safety: Run may be called concurrently; each call builds its
// own loop and blackboard while sharing the validation cache, the
// reviewer (breaker and budget included), and the recorder.
type Pipeline struct {
	config Config
	logger *logging.Logger

	client       llm.Client
	reviewClient llm.Client

	lru      *cache.LRU[uint64, rules.RuleResult]
	runner   *rules.Runner
	reviewer *review.Reviewer
	recorder outcome.Recorder
}

// New builds a Pipeline from config and a generation client.
func New(cfg Config, client llm.Client, opts ...Option) (*Pipeline, error) {
	if client == nil {
		return nil, fmt.Errorf("pipeline: llm client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{config: cfg, client: client}
	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logging.New(cfg.Logging.loggerConfig())
	}

	p.lru = cache.New[uint64, rules.RuleResult](cfg.Validation.CacheCapacity)
	p.runner = rules.NewRunner(&resultCache{lru: p.lru}, p.logger)

	if cfg.Review.Enabled {
		if p.reviewClient == nil {
			baseURL := cfg.Review.BaseURL
			if baseURL == "" {
				baseURL = os.Getenv("CRUCIBLE_REVIEW_URL")
			}
			if baseURL == "" {
				baseURL = "http://localhost:11434"
			}
			p.reviewClient = llm.NewOllamaClient(baseURL, cfg.Review.Model, 0)
		}
		p.reviewer = review.New(p.reviewClient, review.Config{
			LineThreshold:     cfg.Review.LineThreshold,
			Breaker:           cfg.Review.breakerConfig(),
			Budget:            cfg.Review.Budget,
			RatePer1K:         cfg.Review.RatePer1K,
			RequestsPerMinute: cfg.Review.RequestsPerMinute,
		}, p.logger)
	}

	if p.recorder == nil {
		if cfg.Outcome.Enabled {
			rec, err := outcome.NewJSONLRecorder(expandHome(cfg.Outcome.Dir), p.logger)
			if err != nil {
				return nil, err
			}
			p.recorder = rec
		} else {
			p.recorder = outcome.NopRecorder{}
		}
	}

	return p, nil
}

// Logger returns the pipeline's logger.
func (p *Pipeline) Logger() *logging.Logger { return p.logger }

// CacheStats returns validation cache hit/miss counts.
func (p *Pipeline) CacheStats() (hits, misses int64) { return p.lru.Stats() }

// Reviewer returns the reviewer, nil when review is disabled.
func (p *Pipeline) Reviewer() *review.Reviewer { return p.reviewer }

// Validators builds the validator battery for a profile name. The
// default profile applies when name is empty.
func (p *Pipeline) Validators(name string) ([]rules.Validator, error) {
	profile, err := p.profile(name)
	if err != nil {
		return nil, err
	}
	return buildValidators(profile)
}

// Runner returns the shared rule runner.
func (p *Pipeline) Runner() *rules.Runner { return p.runner }

// Run executes one task end to end.
//
// Description:
//
//	Resolves the validation profile, runs the self-correction loop
//	(review wired in as the loop's top-candidate hook), records the
//	outcome, and returns the full report. Degraded paths inside
//	(failed slots, skipped reviews) surface in the report; the only
//	hard errors are config problems, context cancellation, and a
//	whole round with no viable candidate.
func (p *Pipeline) Run(ctx context.Context, task Task) (*RunReport, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("task.id", task.ID))

	profileName := task.Profile
	if profileName == "" {
		profileName = p.config.Validation.Profile
	}
	profile, err := p.profile(profileName)
	if err != nil {
		return nil, err
	}
	validators, err := buildValidators(profile)
	if err != nil {
		return nil, err
	}

	hitsBefore, missesBefore := p.lru.Stats()
	start := time.Now()

	var lastReview *review.Result
	hook := p.reviewHook(task, &lastReview)

	l := loop.New(
		generate.New(p.client, p.logger),
		p.runner,
		validators,
		selector.New(profile.weights()),
		blackboard.New(),
		loop.Config{
			MaxIterations: p.config.Loop.MaxIterations,
			MinSalvage:    p.config.Loop.MinSalvage,
			RunnerOpts: rules.Options{
				FailFast:   p.config.Validation.FailFast,
				MaxWorkers: p.config.Validation.MaxWorkers,
			},
			Hook: hook,
		},
		p.logger,
	)

	result, err := l.Run(ctx, &generate.Request{
		TaskID:       task.ID,
		Prompt:       task.Prompt,
		System:       task.System,
		Language:     task.Language,
		N:            p.config.Generation.Candidates,
		Temperatures: p.config.Generation.Temperatures,
		BaseSeed:     p.config.Generation.BaseSeed,
		MaxTokens:    p.config.Generation.MaxTokens,
		Parallel:     p.config.Generation.Parallel,
		MaxWorkers:   p.config.Generation.MaxWorkers,
	})
	if err != nil {
		return nil, err
	}

	total := time.Since(start)
	rec := p.buildRecord(task, profileName, result, lastReview, total)
	p.recorder.Record(ctx, rec)

	var candidateCount, failedCount int
	var genTime, valTime time.Duration
	for _, s := range result.Summaries {
		candidateCount += s.Stats.Total
		failedCount += s.Stats.Failed
		genTime += s.Stats.GenerationTime
		valTime += s.Stats.ValidationTime
	}
	recordRun(ctx, result.StopReason, result.Best.AllPassed(), candidateCount, failedCount, result.Iterations, result.FinalScore, total)

	hitsAfter, missesAfter := p.lru.Stats()
	recordCacheStats(ctx, hitsAfter-hitsBefore, missesAfter-missesBefore)

	p.logger.Info("pipeline run complete",
		"task_id", task.ID,
		"best_score", result.FinalScore,
		"all_passed", result.Best.AllPassed(),
		"iterations", result.Iterations,
		"stop_reason", result.StopReason,
		"duration", total.String(),
	)

	return &RunReport{Outcome: result, Review: lastReview, Record: rec}, nil
}

// reviewHook builds the loop hook that feeds review findings into
// scoring as a cross_review pseudo-validator.
func (p *Pipeline) reviewHook(task Task, lastReview **review.Result) loop.TopCandidateHook {
	if p.reviewer == nil {
		return nil
	}
	return func(ctx context.Context, c *candidate.Candidate) []candidate.ValidationScore {
		if !p.reviewer.ShouldReview(c, task.RiskTag, task.ForceReview) {
			return nil
		}
		result := p.reviewer.Review(ctx, c)
		*lastReview = result
		recordReview(ctx, result.Skipped, result.Reason)
		if result.Skipped {
			// A degraded review contributes nothing to scoring.
			return nil
		}

		var r rules.RuleResult
		if result.HasCritical() {
			var errs []string
			for _, issue := range result.Issues {
				if issue.Critical() {
					errs = append(errs, issue.Description)
				}
			}
			r = rules.Fail("cross_review", rules.SeverityCritical, 0, errs...)
		} else {
			// Non-critical findings degrade the score without failing.
			score := 1.0 - 0.1*float64(len(result.Issues))
			var warnings []string
			for _, issue := range result.Issues {
				warnings = append(warnings, issue.Description)
			}
			r = rules.Pass("cross_review", rules.SeverityCritical, score, warnings...)
		}
		r.Duration = result.Duration
		return []candidate.ValidationScore{candidate.NewScore(r, 1.0)}
	}
}

// buildRecord assembles the outcome record for one run.
func (p *Pipeline) buildRecord(task Task, profileName string, result *loop.Outcome, rev *review.Result, total time.Duration) *outcome.Record {
	rec := &outcome.Record{
		RunID:      uuid.New(),
		Timestamp:  time.Now(),
		TaskID:     task.ID,
		TaskType:   task.Type,
		RiskTag:    task.RiskTag,
		Profile:    profileName,
		Iterations: result.Iterations,
		Corrected:  result.Corrected,
		BestScore:  result.FinalScore,
		AllPassed:  result.Best.AllPassed(),
		TotalTime:  total,
		StopReason: result.StopReason,
	}
	for _, s := range result.Summaries {
		rec.Candidates += s.Stats.Total
		rec.GenerationTime += s.Stats.GenerationTime
		rec.ValidationTime += s.Stats.ValidationTime
	}
	for _, score := range result.Best.Scores {
		if score.Passed {
			rec.PassedRules = append(rec.PassedRules, score.Validator)
		} else {
			rec.FailedRules = append(rec.FailedRules, score.Validator)
		}
	}
	if rev != nil {
		rec.Reviewed = !rev.Skipped
		rec.ReviewSkipReason = rev.Reason
		rec.ReviewIssues = len(rev.Issues)
		rec.ReviewTokens = rev.TokensUsed
	}
	return rec
}

// profile resolves a profile name against the config.
func (p *Pipeline) profile(name string) (ProfileConfig, error) {
	if name == "" {
		name = p.config.Validation.Profile
	}
	profile, ok := p.config.Validation.Profiles[name]
	if !ok {
		return ProfileConfig{}, fmt.Errorf("pipeline: unknown validation profile %q", name)
	}
	return profile, nil
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
