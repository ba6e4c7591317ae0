// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generate produces candidate pools: N independent generations
// of the same task with varied sampling parameters, so the selector has
// genuinely different attempts to choose from.
package generate

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/crucible/pkg/logging"
	"github.com/AleutianAI/crucible/services/llm"
	"github.com/AleutianAI/crucible/services/pipeline/candidate"
)

// DefaultTemperatures is the sampling ladder used when a request does
// not bring its own: the first candidate is conservative, later ones
// explore.
var DefaultTemperatures = []float64{0.2, 0.5, 0.8, 1.0}

// Request describes one generation round.
type Request struct {
	// TaskID is the owning task.
	TaskID string

	// Prompt and System are passed through to the model.
	Prompt string
	System string

	// Language tags produced candidates for language-aware validators.
	Language string

	// Model overrides the client's default model when non-empty.
	Model string

	// N is the candidate count. Non-positive means 1.
	N int

	// Temperatures is the sampling ladder; candidate i uses entry
	// i mod len. Nil means DefaultTemperatures.
	Temperatures []float64

	// BaseSeed seeds candidate i with BaseSeed+i, making a round
	// reproducible against a deterministic backend.
	BaseSeed int

	// MaxTokens caps each generation. Zero means the client default.
	MaxTokens int

	// Parallel fans generations out; MaxWorkers caps the fan-out
	// (non-positive means GOMAXPROCS).
	Parallel   bool
	MaxWorkers int
}

// Generator turns generation requests into candidate pools.
//
// Description:
//
//	Each candidate slot gets one generation call plus one retry on
//	failure. A slot that fails twice stays in the pool as a failed
//	slot carrying the error, so downstream stats see the full picture;
//	it never reaches validation or scoring.
//
// Thread Safety: Safe for concurrent use.
type Generator struct {
	client llm.Client
	logger *logging.Logger
}

// New creates a Generator. A nil logger falls back to the default.
func New(client llm.Client, logger *logging.Logger) *Generator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{client: client, logger: logger}
}

// Generate produces a pool of req.N candidates in generation order.
//
// Outputs:
//   - *candidate.Pool: Always non-nil; failed slots are recorded, not
//     dropped.
//   - error: Non-nil only when ctx is cancelled before any work.
func (g *Generator) Generate(ctx context.Context, req *Request) (*candidate.Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	n := req.N
	if n <= 0 {
		n = 1
	}
	temps := req.Temperatures
	if len(temps) == 0 {
		temps = DefaultTemperatures
	}

	pool := candidate.NewPool(req.TaskID)
	slots := make([]*candidate.Candidate, n)

	if req.Parallel && n > 1 {
		g.fanOut(ctx, req, temps, slots)
	} else {
		for i := range slots {
			slots[i] = g.generateSlot(ctx, req, i, temps[i%len(temps)])
		}
	}

	for _, c := range slots {
		pool.Add(c)
	}

	stats := pool.Stats()
	g.logger.Info("generation round complete",
		"task_id", req.TaskID,
		"candidates", stats.Total,
		"failed", stats.Failed,
		"duration", stats.GenerationTime.String(),
	)
	return pool, nil
}

// fanOut runs slot generations concurrently, preserving slot order.
func (g *Generator) fanOut(ctx context.Context, req *Request, temps []float64, slots []*candidate.Candidate) {
	maxWorkers := req.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	sem := semaphore.NewWeighted(int64(maxWorkers))
	var wg sync.WaitGroup

	for i := range slots {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(slots); j++ {
				slots[j] = g.failedSlot(req, j, temps[j%len(temps)], fmt.Errorf("cancelled: %w", err))
			}
			break
		}
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			defer sem.Release(1)
			slots[slot] = g.generateSlot(ctx, req, slot, temps[slot%len(temps)])
		}(i)
	}
	wg.Wait()
}

// GenerateWithRequests runs one pre-built request per slot, so a caller
// can vary prompts or seeds per candidate (the correction loop does this
// when blackboard hints differ per slot). Slot order is preserved.
func (g *Generator) GenerateWithRequests(ctx context.Context, taskID string, reqs []*Request) (*candidate.Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	pool := candidate.NewPool(taskID)
	for _, req := range reqs {
		temps := req.Temperatures
		if len(temps) == 0 {
			temps = DefaultTemperatures
		}
		pool.Add(g.generateSlot(ctx, req, 0, temps[0]))
	}
	return pool, nil
}

// generateSlot runs one generation with a single retry.
func (g *Generator) generateSlot(ctx context.Context, req *Request, slot int, temperature float64) *candidate.Candidate {
	seed := req.BaseSeed + slot
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := g.client.Generate(ctx, &llm.Request{
			Prompt:      req.Prompt,
			System:      req.System,
			Temperature: temperature,
			Seed:        seed,
			MaxTokens:   req.MaxTokens,
			Model:       req.Model,
		})
		if err == nil {
			return &candidate.Candidate{
				TaskID:         req.TaskID,
				Content:        resp.Content,
				Language:       req.Language,
				Temperature:    temperature,
				Seed:           seed,
				Model:          resp.Model,
				Status:         candidate.StatusGenerated,
				GenerationTime: time.Since(start),
			}
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		g.logger.Warn("generation attempt failed, retrying",
			"task_id", req.TaskID,
			"slot", slot,
			"attempt", attempt+1,
			"error", err.Error(),
		)
	}

	g.logger.Error("generation slot failed",
		"task_id", req.TaskID,
		"slot", slot,
		"error", lastErr.Error(),
	)
	c := g.failedSlot(req, slot, temperature, lastErr)
	c.GenerationTime = time.Since(start)
	return c
}

// failedSlot builds the placeholder candidate for a failed generation.
func (g *Generator) failedSlot(req *Request, slot int, temperature float64, err error) *candidate.Candidate {
	return &candidate.Candidate{
		TaskID:          req.TaskID,
		Language:        req.Language,
		Temperature:     temperature,
		Seed:            req.BaseSeed + slot,
		Model:           g.client.Model(),
		Status:          candidate.StatusGenerated,
		GenerationError: err.Error(),
	}
}
