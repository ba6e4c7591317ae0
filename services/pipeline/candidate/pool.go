// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package candidate

import "time"

// Pool is the unit of work for one generation round: the ordered set of
// candidates produced for a task. Candidate order is generation order
// regardless of which generation call finished first.
//
// Pool is not safe for concurrent mutation; the generator builds it
// before handing it over and the loop processes it sequentially.
type Pool struct {
	// TaskID is the owning task.
	TaskID string `json:"task_id"`

	// Candidates in generation order.
	Candidates []*Candidate `json:"candidates"`

	// Best is set by the selector after Select.
	Best *Candidate `json:"-"`
}

// NewPool creates an empty pool for a task.
func NewPool(taskID string) *Pool {
	return &Pool{TaskID: taskID}
}

// Add appends a candidate, assigning its pool-scoped id.
func (p *Pool) Add(c *Candidate) {
	c.ID = len(p.Candidates)
	p.Candidates = append(p.Candidates, c)
}

// Len returns the total candidate count, failed slots included.
func (p *Pool) Len() int {
	return len(p.Candidates)
}

// Viable returns the candidates that actually generated content,
// in generation order.
func (p *Pool) Viable() []*Candidate {
	out := make([]*Candidate, 0, len(p.Candidates))
	for _, c := range p.Candidates {
		if !c.Failed() {
			out = append(out, c)
		}
	}
	return out
}

// Stats summarizes a pool for reporting.
type Stats struct {
	// Total and Failed are candidate counts.
	Total  int `json:"total"`
	Failed int `json:"failed"`

	// AllPassed counts candidates whose every validator passed.
	AllPassed int `json:"all_passed"`

	// BestScore and MeanScore cover viable candidates only.
	BestScore float64 `json:"best_score"`
	MeanScore float64 `json:"mean_score"`

	// GenerationTime and ValidationTime are summed across candidates.
	GenerationTime time.Duration `json:"generation_time"`
	ValidationTime time.Duration `json:"validation_time"`
}

// Stats computes pool-level bookkeeping.
func (p *Pool) Stats() Stats {
	s := Stats{Total: len(p.Candidates)}

	var scoreSum float64
	viable := 0
	for _, c := range p.Candidates {
		s.GenerationTime += c.GenerationTime
		if c.Failed() {
			s.Failed++
			continue
		}
		viable++
		s.ValidationTime += c.ValidationTime()
		scoreSum += c.TotalScore
		if c.TotalScore > s.BestScore {
			s.BestScore = c.TotalScore
		}
		if c.AllPassed() {
			s.AllPassed++
		}
	}
	if viable > 0 {
		s.MeanScore = scoreSum / float64(viable)
	}
	return s
}
