// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package review

import (
	"testing"
	"time"
)

// testBreaker returns a breaker with a controllable clock.
func testBreaker(config BreakerConfig) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(config)
	now := time.Now()
	cb.now = func() time.Time { return now }
	cb.lastStateChange = now
	return cb, &now
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	cb, _ := testBreaker(BreakerConfig{FailureThreshold: 3})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %v before threshold, want closed", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v at threshold, want open", cb.State())
	}
	if allowed, _ := cb.Allow(); allowed {
		t.Error("open breaker must reject calls")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := testBreaker(BreakerConfig{FailureThreshold: 3})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != CircuitClosed {
		t.Error("non-consecutive failures must not open the breaker")
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	cb, now := testBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	*now = now.Add(2 * time.Minute)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v after cooldown, want half-open", cb.State())
	}
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	cb, now := testBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute, HalfOpenMaxProbes: 1})

	cb.RecordFailure()
	*now = now.Add(2 * time.Minute)

	allowed, release := cb.Allow()
	if !allowed {
		t.Fatal("first half-open probe must be admitted")
	}
	if allowed2, _ := cb.Allow(); allowed2 {
		t.Error("second concurrent probe must be rejected")
	}
	release()
	if allowed3, _ := cb.Allow(); !allowed3 {
		t.Error("probe slot must free up after release")
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	cb, now := testBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute, SuccessThreshold: 1})

	cb.RecordFailure()
	*now = now.Add(2 * time.Minute)
	if allowed, _ := cb.Allow(); !allowed {
		t.Fatal("probe should be admitted")
	}
	cb.RecordSuccess()

	if cb.State() != CircuitClosed {
		t.Errorf("state = %v after probe success, want closed", cb.State())
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	cb, now := testBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})

	cb.RecordFailure()
	*now = now.Add(2 * time.Minute)
	if allowed, _ := cb.Allow(); !allowed {
		t.Fatal("probe should be admitted")
	}
	cb.RecordFailure()

	if cb.State() != CircuitOpen {
		t.Errorf("state = %v after probe failure, want open", cb.State())
	}
	// Cooldown restarts from the reopen.
	*now = now.Add(30 * time.Second)
	if cb.State() != CircuitOpen {
		t.Error("breaker must stay open until the new cooldown elapses")
	}
}

func TestBreaker_Reset(t *testing.T) {
	cb, _ := testBreaker(BreakerConfig{FailureThreshold: 1})
	cb.RecordFailure()
	cb.Reset()
	if cb.State() != CircuitClosed {
		t.Errorf("state = %v after Reset, want closed", cb.State())
	}
}

func TestBreaker_Stats(t *testing.T) {
	cb, _ := testBreaker(BreakerConfig{FailureThreshold: 1})
	cb.Allow()
	cb.RecordFailure()
	cb.Allow() // rejected

	stats := cb.Stats()
	if stats.State != "open" {
		t.Errorf("State = %q, want open", stats.State)
	}
	if stats.TotalCalls != 2 {
		t.Errorf("TotalCalls = %d, want 2", stats.TotalCalls)
	}
	if stats.TotalRejections != 1 {
		t.Errorf("TotalRejections = %d, want 1", stats.TotalRejections)
	}
	if stats.TotalFailures != 1 {
		t.Errorf("TotalFailures = %d, want 1", stats.TotalFailures)
	}
}

func TestCostTracker(t *testing.T) {
	tr := NewCostTracker(0.05, 0.01) // 0.05 budget, 0.01 per 1k tokens

	if !tr.HasBudget() {
		t.Fatal("fresh tracker must have budget")
	}
	tr.Add(4000) // 0.04
	if !tr.HasBudget() {
		t.Error("under-budget tracker must allow calls")
	}
	tr.Add(2000) // 0.06 total
	if tr.HasBudget() {
		t.Error("over-budget tracker must gate new calls")
	}
	if got := tr.Spent(); got < 0.059 || got > 0.061 {
		t.Errorf("Spent = %v, want 0.06", got)
	}

	tr.Reset()
	if tr.Spent() != 0 || !tr.HasBudget() {
		t.Error("Reset must zero the spend")
	}
}

func TestCostTracker_UnlimitedCeiling(t *testing.T) {
	tr := NewCostTracker(0, 0.01)
	tr.Add(1_000_000)
	if !tr.HasBudget() {
		t.Error("non-positive ceiling means unlimited budget")
	}
}
