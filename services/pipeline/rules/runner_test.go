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
	"sync"
	"sync/atomic"
	"testing"
)

// fakeValidator is a scriptable validator for runner tests.
type fakeValidator struct {
	name   string
	sev    Severity
	check  func(ctx context.Context, artifact *Artifact) RuleResult
	calls  atomic.Int64
	config string
}

func (f *fakeValidator) Name() string       { return f.name }
func (f *fakeValidator) Severity() Severity { return f.sev }

func (f *fakeValidator) Check(ctx context.Context, artifact *Artifact) RuleResult {
	f.calls.Add(1)
	if f.check != nil {
		return f.check(ctx, artifact)
	}
	return Pass(f.name, f.sev, 1.0)
}

func (f *fakeValidator) Fingerprint() string { return f.config }

// mapCache is a plain map-backed ResultCache for tests.
type mapCache struct {
	mu      sync.Mutex
	entries map[uint64]RuleResult
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[uint64]RuleResult)}
}

func (c *mapCache) Get(key uint64) (RuleResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *mapCache) Put(key uint64, result RuleResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = result
}

func TestRunner_ResultsMatchInputOrder(t *testing.T) {
	validators := []Validator{
		&fakeValidator{name: "alpha", sev: SeverityWarning},
		&fakeValidator{name: "beta", sev: SeverityCritical},
		&fakeValidator{name: "gamma", sev: SeverityInfo},
	}

	runner := NewRunner(nil, nil)
	results := runner.RunAll(context.Background(), &Artifact{Content: "x"}, validators, Options{MaxWorkers: 2})

	if len(results) != len(validators) {
		t.Fatalf("got %d results, want %d", len(results), len(validators))
	}
	for i, v := range validators {
		if results[i].Validator != v.Name() {
			t.Errorf("result[%d] = %q, want %q", i, results[i].Validator, v.Name())
		}
	}
}

func TestRunner_CrashIsolation(t *testing.T) {
	boom := &fakeValidator{
		name: "boom",
		sev:  SeverityHigh,
		check: func(ctx context.Context, artifact *Artifact) RuleResult {
			panic("validator exploded")
		},
	}
	calm := &fakeValidator{name: "calm", sev: SeverityWarning}

	runner := NewRunner(nil, nil)
	results := runner.RunAll(context.Background(), &Artifact{Content: "x"}, []Validator{boom, calm}, Options{})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Passed {
		t.Error("panicking validator must produce a failed result")
	}
	if results[0].Validator != "boom" {
		t.Errorf("crash result tagged %q, want boom", results[0].Validator)
	}
	if len(results[0].Errors) == 0 {
		t.Fatal("crash result must carry an error")
	}
	if !results[1].Passed {
		t.Error("sibling validator must be unaffected by the crash")
	}
}

func TestRunner_FailFastStopsAtCriticalFailure(t *testing.T) {
	critical := &fakeValidator{
		name: "critical_fail",
		sev:  SeverityCritical,
		check: func(ctx context.Context, artifact *Artifact) RuleResult {
			return Fail("critical_fail", SeverityCritical, 0, "disqualified")
		},
	}
	warning := &fakeValidator{name: "late_warning", sev: SeverityWarning}

	runner := NewRunner(nil, nil)
	// Input order puts the warning first; fail-fast must still run the
	// critical check before it.
	results := runner.RunAll(context.Background(), &Artifact{Content: "x"},
		[]Validator{warning, critical}, Options{FailFast: true})

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (run stops at the critical failure)", len(results))
	}
	if results[0].Validator != "critical_fail" {
		t.Errorf("result = %q, want critical_fail", results[0].Validator)
	}
	if warning.calls.Load() != 0 {
		t.Error("lower-severity validator must not run after a critical failure")
	}
}

func TestRunner_FailFastCriticalPassContinues(t *testing.T) {
	critical := &fakeValidator{name: "critical_pass", sev: SeverityCritical}
	warning := &fakeValidator{name: "warning", sev: SeverityWarning}

	runner := NewRunner(nil, nil)
	results := runner.RunAll(context.Background(), &Artifact{Content: "x"},
		[]Validator{warning, critical}, Options{FailFast: true})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// Re-sorted to input order.
	if results[0].Validator != "warning" || results[1].Validator != "critical_pass" {
		t.Errorf("results out of input order: %q, %q", results[0].Validator, results[1].Validator)
	}
}

func TestRunner_CacheHitSkipsSecondRun(t *testing.T) {
	v := &fakeValidator{name: "cached", sev: SeverityWarning, config: "v1"}
	cache := newMapCache()
	runner := NewRunner(cache, nil)
	artifact := &Artifact{Content: "same content"}

	runner.RunAll(context.Background(), artifact, []Validator{v}, Options{})
	runner.RunAll(context.Background(), artifact, []Validator{v}, Options{})

	if got := v.calls.Load(); got != 1 {
		t.Errorf("validator ran %d times, want 1 (second run should hit cache)", got)
	}
}

func TestRunner_ConfigChangeMissesCache(t *testing.T) {
	cache := newMapCache()
	runner := NewRunner(cache, nil)
	artifact := &Artifact{Content: "same content"}

	v1 := &fakeValidator{name: "tunable", sev: SeverityWarning, config: "max=10"}
	v2 := &fakeValidator{name: "tunable", sev: SeverityWarning, config: "max=5"}

	runner.RunAll(context.Background(), artifact, []Validator{v1}, Options{})
	runner.RunAll(context.Background(), artifact, []Validator{v2}, Options{})

	if v2.calls.Load() != 1 {
		t.Error("changed fingerprint must invalidate the cached result")
	}
}

func TestRunner_SkippedResultsNotCached(t *testing.T) {
	v := &fakeValidator{
		name: "skippy",
		sev:  SeverityWarning,
		check: func(ctx context.Context, artifact *Artifact) RuleResult {
			return Skip("skippy", SeverityWarning, "tool not installed")
		},
	}
	cache := newMapCache()
	runner := NewRunner(cache, nil)
	artifact := &Artifact{Content: "x"}

	runner.RunAll(context.Background(), artifact, []Validator{v}, Options{})
	runner.RunAll(context.Background(), artifact, []Validator{v}, Options{})

	if got := v.calls.Load(); got != 2 {
		t.Errorf("skipped validator ran %d times, want 2 (skips are retried, not cached)", got)
	}
}

func TestResultKey_Distinct(t *testing.T) {
	base := resultKey("content", "syntax", "")
	if resultKey("content2", "syntax", "") == base {
		t.Error("different content must change the key")
	}
	if resultKey("content", "docs", "") == base {
		t.Error("different validator must change the key")
	}
	if resultKey("content", "syntax", "min=0.5") == base {
		t.Error("different fingerprint must change the key")
	}
}
