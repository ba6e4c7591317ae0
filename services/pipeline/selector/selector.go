// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package selector scores validated candidates and picks a pool winner.
//
// Scoring is a weighted mean of per-validator scores, halved when any
// critical check failed and nudged upward when everything passed. The
// result stays in [0, 1] so scores compare across pools and iterations.
package selector

import (
	"errors"
	"sort"
	"strings"

	"github.com/AleutianAI/crucible/services/pipeline/candidate"
)

// ErrEmptyPool is returned by Select when no viable candidate exists.
var ErrEmptyPool = errors.New("selector: no viable candidates in pool")

// Default scoring adjustments.
const (
	// DefaultCriticalPenalty multiplies the weighted mean when any
	// critical validator failed.
	DefaultCriticalPenalty = 0.5

	// DefaultAllPassBonus is added when every validator passed.
	DefaultAllPassBonus = 0.15
)

// Weights maps validator names to their contribution in the weighted
// mean, plus the scoring adjustments.
//
// Thread Safety: treat as immutable after construction.
type Weights struct {
	// Table maps validator name (or name prefix) to weight.
	Table map[string]float64

	// Default applies to validators absent from Table. Zero means 1.0.
	Default float64

	// CriticalPenalty multiplies the mean on any failed critical check.
	// Zero means DefaultCriticalPenalty.
	CriticalPenalty float64

	// AllPassBonus is added when every check passed. Zero means
	// DefaultAllPassBonus. Set to a negative value to disable.
	AllPassBonus float64
}

// DefaultWeights returns the standard weight set: critical validators
// count double, informational ones count half.
func DefaultWeights() Weights {
	return Weights{
		Table: map[string]float64{
			"syntax":               2.0,
			"forbidden_capability": 2.0,
			"dynamic_exec":         2.0,
			"doc_coverage":         0.5,
			"annotation_coverage":  0.5,
			"size":                 0.5,
		},
		Default:         1.0,
		CriticalPenalty: DefaultCriticalPenalty,
		AllPassBonus:    DefaultAllPassBonus,
	}
}

// WeightFor resolves a validator's weight: exact name match first, then
// the longest matching prefix, then the default.
func (w Weights) WeightFor(name string) float64 {
	if weight, ok := w.Table[name]; ok {
		return weight
	}
	bestLen := -1
	best := 0.0
	for prefix, weight := range w.Table {
		if strings.HasPrefix(name, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			best = weight
		}
	}
	if bestLen >= 0 {
		return best
	}
	if w.Default > 0 {
		return w.Default
	}
	return 1.0
}

func (w Weights) criticalPenalty() float64 {
	if w.CriticalPenalty > 0 {
		return w.CriticalPenalty
	}
	return DefaultCriticalPenalty
}

func (w Weights) allPassBonus() float64 {
	if w.AllPassBonus < 0 {
		return 0
	}
	if w.AllPassBonus > 0 {
		return w.AllPassBonus
	}
	return DefaultAllPassBonus
}

// Selector ranks candidates and marks the winner.
type Selector struct {
	weights Weights
}

// New creates a Selector. A zero-value Weights gets the defaults.
func New(weights Weights) *Selector {
	if weights.Table == nil && weights.Default == 0 &&
		weights.CriticalPenalty == 0 && weights.AllPassBonus == 0 {
		weights = DefaultWeights()
	}
	return &Selector{weights: weights}
}

// Score computes one candidate's aggregate score in [0, 1].
//
// Description:
//
//	Weighted mean over recorded scores (per-validator weight resolved
//	through WeightFor), multiplied by the critical penalty when any
//	critical check failed, plus the all-pass bonus when every check
//	passed, clamped to [0, 1]. A candidate with no scores gets 0.
func (s *Selector) Score(c *candidate.Candidate) float64 {
	if c.Failed() || len(c.Scores) == 0 {
		return 0
	}

	var weighted, totalWeight float64
	for _, score := range c.Scores {
		weight := score.Weight
		if weight <= 0 {
			weight = s.weights.WeightFor(score.Validator)
		}
		weighted += score.Score * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}

	result := weighted / totalWeight
	if c.HasCriticalFailure() {
		result *= s.weights.criticalPenalty()
	}
	if c.AllPassed() {
		result += s.weights.allPassBonus()
	}

	if result < 0 {
		return 0
	}
	if result > 1 {
		return 1
	}
	return result
}

// Rank returns viable candidates ordered by descending score, ties
// broken by ascending candidate ID so ranking is deterministic. The
// pool is not mutated; each candidate's TotalScore is refreshed.
func (s *Selector) Rank(pool *candidate.Pool) []*candidate.Candidate {
	viable := pool.Viable()
	for _, c := range viable {
		c.TotalScore = s.Score(c)
	}
	sort.SliceStable(viable, func(a, b int) bool {
		if viable[a].TotalScore != viable[b].TotalScore {
			return viable[a].TotalScore > viable[b].TotalScore
		}
		return viable[a].ID < viable[b].ID
	})
	return viable
}

// Select ranks the pool, marks the winner selected and the rest
// rejected, and records the winner in pool.Best.
//
// Outputs:
//   - *candidate.Candidate: The winner. Nil on error.
//   - error: ErrEmptyPool when no candidate generated content.
func (s *Selector) Select(pool *candidate.Pool) (*candidate.Candidate, error) {
	ranked := s.Rank(pool)
	if len(ranked) == 0 {
		return nil, ErrEmptyPool
	}

	best := ranked[0]
	best.Status = candidate.StatusSelected
	for _, c := range ranked[1:] {
		c.Status = candidate.StatusRejected
	}
	// Failed generation slots never ranked, but they are non-winners
	// all the same.
	for _, c := range pool.Candidates {
		if c.Failed() {
			c.Status = candidate.StatusRejected
		}
	}
	pool.Best = best
	return best, nil
}
