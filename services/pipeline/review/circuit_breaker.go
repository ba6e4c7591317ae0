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
	"sync"
	"time"
)

// CircuitState is the breaker state for the review backend.
type CircuitState int

const (
	// CircuitClosed is normal operation: review calls pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the backend is considered down; review is
	// skipped until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen allows a limited number of probe calls to test
	// recovery.
	CircuitHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the review circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is consecutive failures before opening.
	// Default 5.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before allowing a
	// probe. Default 60s.
	Cooldown time.Duration

	// SuccessThreshold is probe successes needed to close again.
	// Default 1.
	SuccessThreshold int

	// HalfOpenMaxProbes caps concurrent probes while half-open.
	// Default 1.
	HalfOpenMaxProbes int
}

// DefaultBreakerConfig returns the standard review-breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  5,
		Cooldown:          60 * time.Second,
		SuccessThreshold:  1,
		HalfOpenMaxProbes: 1,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.HalfOpenMaxProbes <= 0 {
		c.HalfOpenMaxProbes = 1
	}
	return c
}

// BreakerStats snapshots the breaker for reporting.
type BreakerStats struct {
	State           string    `json:"state"`
	TotalCalls      int64     `json:"total_calls"`
	TotalFailures   int64     `json:"total_failures"`
	TotalRejections int64     `json:"total_rejections"`
	CurrentFailures int       `json:"current_failures"`
	LastStateChange time.Time `json:"last_state_change"`
}

// CircuitBreaker guards the external review backend.
//
// Description:
//
//	Closed passes calls through and counts consecutive failures; at
//	FailureThreshold it opens. Open rejects everything until Cooldown
//	elapses, then goes half-open and admits a bounded number of
//	probes. A probe success closes the breaker; a probe failure
//	reopens it and restarts the cooldown.
//
// Thread Safety: Safe for concurrent use.
type CircuitBreaker struct {
	config BreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failures        int
	successes       int
	lastStateChange time.Time
	activeProbes    int

	totalCalls      int64
	totalFailures   int64
	totalRejections int64

	// now is swapped in tests to drive the cooldown.
	now func() time.Time
}

// NewCircuitBreaker creates a breaker; zero config fields take defaults.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		config: config.withDefaults(),
		state:  CircuitClosed,
		now:    time.Now,
	}
	cb.lastStateChange = cb.now()
	return cb
}

// State returns the current state, applying a pending open-to-half-open
// transition if the cooldown has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	return cb.state
}

// Allow reports whether a review call may proceed.
//
// Outputs:
//   - bool: True if the call should proceed.
//   - func(): Probe release; call when the probe completes. Nil outside
//     half-open.
func (cb *CircuitBreaker) Allow() (bool, func()) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++
	cb.maybeHalfOpen()

	switch cb.state {
	case CircuitClosed:
		return true, nil
	case CircuitHalfOpen:
		if cb.activeProbes >= cb.config.HalfOpenMaxProbes {
			cb.totalRejections++
			return false, nil
		}
		cb.activeProbes++
		return true, func() {
			cb.mu.Lock()
			cb.activeProbes--
			cb.mu.Unlock()
		}
	default:
		cb.totalRejections++
		return false, nil
	}
}

// RecordSuccess notes a successful review call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == CircuitHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure notes a failed review call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.failures++
	cb.successes = 0

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

// Stats snapshots the breaker.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		State:           cb.state.String(),
		TotalCalls:      cb.totalCalls,
		TotalFailures:   cb.totalFailures,
		TotalRejections: cb.totalRejections,
		CurrentFailures: cb.failures,
		LastStateChange: cb.lastStateChange,
	}
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitClosed)
}

// maybeHalfOpen applies the open-to-half-open transition once the
// cooldown elapses. Caller must hold the lock.
func (cb *CircuitBreaker) maybeHalfOpen() {
	if cb.state == CircuitOpen && cb.now().Sub(cb.lastStateChange) >= cb.config.Cooldown {
		cb.transitionTo(CircuitHalfOpen)
	}
}

// transitionTo changes state. Caller must hold the lock.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	cb.state = newState
	cb.lastStateChange = cb.now()
	cb.failures = 0
	cb.successes = 0
	cb.activeProbes = 0
}
