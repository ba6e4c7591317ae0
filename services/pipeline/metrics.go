// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for pipeline operations.
var (
	tracer = otel.Tracer("crucible.pipeline")
	meter  = otel.Meter("crucible.pipeline")
)

// Pipeline metrics.
var (
	runsTotal          metric.Int64Counter
	runDuration        metric.Float64Histogram
	candidatesTotal    metric.Int64Counter
	iterationsHist     metric.Int64Histogram
	bestScoreHistogram metric.Float64Histogram
	cacheHitsTotal     metric.Int64Counter
	reviewsTotal       metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runsTotal, err = meter.Int64Counter(
			"crucible_runs_total",
			metric.WithDescription("Total pipeline runs by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runDuration, err = meter.Float64Histogram(
			"crucible_run_duration_seconds",
			metric.WithDescription("End-to-end pipeline run duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		candidatesTotal, err = meter.Int64Counter(
			"crucible_candidates_total",
			metric.WithDescription("Total candidates generated, by viability"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		iterationsHist, err = meter.Int64Histogram(
			"crucible_loop_iterations",
			metric.WithDescription("Correction iterations used per run"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		bestScoreHistogram, err = meter.Float64Histogram(
			"crucible_best_score",
			metric.WithDescription("Winning candidate score distribution"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheHitsTotal, err = meter.Int64Counter(
			"crucible_validation_cache_hits_total",
			metric.WithDescription("Validation cache hits and misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		reviewsTotal, err = meter.Int64Counter(
			"crucible_reviews_total",
			metric.WithDescription("Cross-architecture reviews by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRun records the metrics for one completed pipeline run.
//
// Thread Safety: Safe for concurrent use.
func recordRun(ctx context.Context, stopReason string, allPassed bool, candidates, failed, iterations int, bestScore float64, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}

	outcome := "failed_checks"
	if allPassed {
		outcome = "all_passed"
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("stop_reason", stopReason),
	)

	runsTotal.Add(ctx, 1, attrs)
	runDuration.Record(ctx, duration.Seconds(), attrs)
	candidatesTotal.Add(ctx, int64(candidates-failed), metric.WithAttributes(attribute.String("viability", "viable")))
	if failed > 0 {
		candidatesTotal.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("viability", "failed")))
	}
	iterationsHist.Record(ctx, int64(iterations))
	bestScoreHistogram.Record(ctx, bestScore)
}

// recordCacheStats records cache hit/miss deltas after a run.
func recordCacheStats(ctx context.Context, hits, misses int64) {
	if err := initMetrics(); err != nil {
		return
	}
	if hits > 0 {
		cacheHitsTotal.Add(ctx, hits, metric.WithAttributes(attribute.String("result", "hit")))
	}
	if misses > 0 {
		cacheHitsTotal.Add(ctx, misses, metric.WithAttributes(attribute.String("result", "miss")))
	}
}

// recordReview records one review attempt outcome.
func recordReview(ctx context.Context, skipped bool, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	outcome := "completed"
	if skipped {
		outcome = "skipped"
	}
	reviewsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	))
}
