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

import "sync"

// CostTracker accumulates review spend against a per-run budget.
//
// Description:
//
//	Cost is derived from token usage at a per-1k-token rate. The
//	tracker only gates new review calls; a call that starts within
//	budget is allowed to finish even if it lands over.
//
// Thread Safety: Safe for concurrent use.
type CostTracker struct {
	mu      sync.Mutex
	spent   float64
	ceiling float64
	per1k   float64
}

// DefaultRatePer1K is the default cost per thousand tokens.
const DefaultRatePer1K = 0.01

// NewCostTracker creates a tracker.
//
// Inputs:
//   - ceiling: Budget in cost units. Non-positive means unlimited.
//   - ratePer1K: Cost per 1000 tokens. Non-positive means
//     DefaultRatePer1K.
func NewCostTracker(ceiling, ratePer1K float64) *CostTracker {
	if ratePer1K <= 0 {
		ratePer1K = DefaultRatePer1K
	}
	return &CostTracker{ceiling: ceiling, per1k: ratePer1K}
}

// Add records token usage from one completed review call.
func (t *CostTracker) Add(tokens int) {
	if tokens <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spent += float64(tokens) / 1000.0 * t.per1k
}

// Spent returns the accumulated cost.
func (t *CostTracker) Spent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// HasBudget reports whether a new review call may start.
func (t *CostTracker) HasBudget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ceiling <= 0 || t.spent < t.ceiling
}

// Reset zeroes the spend, keeping the ceiling and rate.
func (t *CostTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spent = 0
}
