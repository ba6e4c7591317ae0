// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/crucible/pkg/logging"
)

// ResultCache stores validation results keyed by content+configuration
// identity, so re-validating an unchanged artifact is a lookup. The
// pipeline backs this with a shared LRU; a nil cache disables caching.
type ResultCache interface {
	Get(key uint64) (RuleResult, bool)
	Put(key uint64, result RuleResult)
}

// Options tune one RunAll invocation.
type Options struct {
	// FailFast runs validators sequentially in descending severity
	// order and stops after the first failed critical check. Results
	// cover only the validators that ran, re-sorted to input order.
	FailFast bool

	// MaxWorkers caps parallel validator execution. Non-positive means
	// GOMAXPROCS.
	MaxWorkers int
}

// Runner executes a validator set against one artifact.
//
// Description:
//
//	Validators run in parallel (bounded by MaxWorkers) with crash
//	isolation: a panicking validator becomes a failed result tagged
//	with its name and never takes down the run or its siblings.
//	Results come back in the same order as the input validator slice.
//
// Thread Safety: Safe for concurrent use.
type Runner struct {
	cache  ResultCache
	logger *logging.Logger
}

// NewRunner creates a Runner. Both arguments may be nil: a nil cache
// disables caching, a nil logger falls back to the default.
func NewRunner(cache ResultCache, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{cache: cache, logger: logger}
}

// RunAll validates the artifact against every validator.
//
// Inputs:
//
//	ctx - Context for cancellation; passed to each validator
//	artifact - The artifact under validation
//	validators - The validator set; order defines result order
//	opts - Run options
//
// Outputs:
//
//	[]RuleResult - One result per validator that ran, in input order
func (r *Runner) RunAll(ctx context.Context, artifact *Artifact, validators []Validator, opts Options) []RuleResult {
	if len(validators) == 0 {
		return nil
	}
	if opts.FailFast {
		return r.runFailFast(ctx, artifact, validators)
	}
	return r.runParallel(ctx, artifact, validators, opts.MaxWorkers)
}

// runParallel fans validators out over a bounded worker pool.
func (r *Runner) runParallel(ctx context.Context, artifact *Artifact, validators []Validator, maxWorkers int) []RuleResult {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}

	results := make([]RuleResult, len(validators))
	sem := semaphore.NewWeighted(int64(maxWorkers))
	var wg sync.WaitGroup

	for i, v := range validators {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled mid-run: mark the rest as failed.
			for j := i; j < len(validators); j++ {
				results[j] = Fail(validators[j].Name(), validators[j].Severity(), 0,
					fmt.Sprintf("validation cancelled: %v", err))
			}
			break
		}
		wg.Add(1)
		go func(slot int, v Validator) {
			defer wg.Done()
			defer sem.Release(1)
			results[slot] = r.runOne(ctx, artifact, v)
		}(i, v)
	}

	wg.Wait()
	return results
}

// runFailFast runs sequentially in descending severity order and stops
// after the first failed critical validator. Skips and warnings never
// stop the run.
func (r *Runner) runFailFast(ctx context.Context, artifact *Artifact, validators []Validator) []RuleResult {
	order := make([]int, len(validators))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return validators[order[a]].Severity().Rank() > validators[order[b]].Severity().Rank()
	})

	type indexed struct {
		slot   int
		result RuleResult
	}
	var ran []indexed
	for _, slot := range order {
		v := validators[slot]
		result := r.runOne(ctx, artifact, v)
		ran = append(ran, indexed{slot: slot, result: result})
		if !result.Passed && v.Severity() == SeverityCritical {
			r.logger.Debug("fail-fast stop",
				"task_id", artifact.TaskID,
				"validator", v.Name(),
			)
			break
		}
	}

	sort.Slice(ran, func(a, b int) bool { return ran[a].slot < ran[b].slot })
	results := make([]RuleResult, 0, len(ran))
	for _, entry := range ran {
		results = append(results, entry.result)
	}
	return results
}

// runOne executes a single validator with caching and crash isolation.
func (r *Runner) runOne(ctx context.Context, artifact *Artifact, v Validator) (result RuleResult) {
	start := time.Now()

	key := resultKey(artifact.Content, v.Name(), fingerprintOf(v))
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			// The cached result's duration reflects the original run;
			// report the lookup cost instead.
			cached.Duration = time.Since(start)
			return cached
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("validator panicked",
				"validator", v.Name(),
				"task_id", artifact.TaskID,
				"panic", fmt.Sprint(rec),
			)
			result = Fail(v.Name(), v.Severity(), 0, fmt.Sprintf("validator panicked: %v", rec))
			result.Duration = time.Since(start)
		}
	}()

	result = v.Check(ctx, artifact)
	result.Duration = time.Since(start)

	if r.cache != nil && !result.Skipped {
		r.cache.Put(key, result)
	}
	return result
}

// resultKey is the content-addressed cache identity: artifact content,
// validator name, and configuration fingerprint.
func resultKey(content, name, fingerprint string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	return h.Sum64()
}
