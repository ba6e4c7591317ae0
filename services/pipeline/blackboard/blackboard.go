// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package blackboard accumulates cross-iteration knowledge within one
// task run: which patterns validated well, which failures keep coming
// back. The self-correction loop reads it to build corrective prompts
// that steer the model away from repeated mistakes.
package blackboard

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/crucible/services/pipeline/candidate"
)

// EntryType classifies a blackboard observation.
type EntryType string

const (
	// GoodPattern marks content worth keeping in the next attempt.
	GoodPattern EntryType = "good_pattern"

	// BadPattern marks a validation failure to avoid.
	BadPattern EntryType = "bad_pattern"
)

// Entry is one observation recorded during a run.
type Entry struct {
	// CandidateID is the observed candidate's pool-scoped id.
	CandidateID int `json:"candidate_id"`

	// Iteration is the correction iteration that produced the entry.
	Iteration int `json:"iteration"`

	// Type classifies the observation.
	Type EntryType `json:"type"`

	// Validator is the source validator for bad patterns, empty for
	// good patterns extracted from passing candidates.
	Validator string `json:"validator,omitempty"`

	// Content is the observation text, in prompt-ready form.
	Content string `json:"content"`

	// Confidence weights the observation, in [0, 1].
	Confidence float64 `json:"confidence"`
}

// maxEntries bounds the board; the oldest entries fall off first so the
// board always reflects the latest iterations.
const maxEntries = 50

// maxBadPerScore caps bad-pattern extraction from one validator result
// so a garbage candidate can't monopolize the board.
const maxBadPerScore = 3

// Blackboard is the per-run observation board.
//
// Description:
//
//	A bounded ring of entries plus a per-validator failure tally used
//	to spot recurring errors. A failure is recurring only when the same
//	validator failed in two or more distinct iterations; many failures
//	within one iteration are a single data point, not a pattern. One
//	Blackboard belongs to one task run; it is cleared (or discarded)
//	between runs.
//
// Thread Safety: Safe for concurrent use.
type Blackboard struct {
	mu       sync.Mutex
	entries  []Entry
	failures map[string]map[int]struct{} // validator name -> iterations with a failure
}

// New creates an empty Blackboard.
func New() *Blackboard {
	return &Blackboard{failures: make(map[string]map[int]struct{})}
}

// Record appends an entry, evicting the oldest once the board is full.
func (b *Blackboard) Record(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(e)
}

// record appends without locking. Caller must hold the lock.
func (b *Blackboard) record(e Entry) {
	if e.Confidence <= 0 {
		e.Confidence = 0.5
	}
	b.entries = append(b.entries, e)
	if len(b.entries) > maxEntries {
		b.entries = b.entries[len(b.entries)-maxEntries:]
	}
	if e.Type == BadPattern && e.Validator != "" {
		iters := b.failures[e.Validator]
		if iters == nil {
			iters = make(map[int]struct{})
			b.failures[e.Validator] = iters
		}
		iters[e.Iteration] = struct{}{}
	}
}

// Extract mines a validated candidate for observations and records
// them.
//
// Description:
//
//	A candidate that passed everything contributes one good-pattern
//	entry. Each failed validator contributes up to maxBadPerScore
//	bad-pattern entries, one per distinct error message.
//
// Outputs:
//   - int: Number of entries recorded.
func (b *Blackboard) Extract(c *candidate.Candidate, iteration int) int {
	if c == nil || c.Failed() {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	recorded := 0
	if c.AllPassed() && len(c.Scores) > 0 {
		b.record(Entry{
			CandidateID: c.ID,
			Iteration:   iteration,
			Type:        GoodPattern,
			Content:     fmt.Sprintf("candidate %d passed all %d checks (score %.2f)", c.ID, len(c.Scores), c.TotalScore),
			Confidence:  c.TotalScore,
		})
		recorded++
	}

	for _, score := range c.Scores {
		if score.Passed {
			continue
		}
		seen := make(map[string]bool)
		for _, errMsg := range score.Errors {
			if seen[errMsg] {
				continue
			}
			seen[errMsg] = true
			b.record(Entry{
				CandidateID: c.ID,
				Iteration:   iteration,
				Type:        BadPattern,
				Validator:   score.Validator,
				Content:     errMsg,
				Confidence:  1.0 - score.Score,
			})
			recorded++
			if len(seen) >= maxBadPerScore {
				break
			}
		}
	}
	return recorded
}

// RecurringErrors returns validator names that failed in at least min
// distinct iterations, sorted by descending iteration count (ties by
// name). A non-positive min means 2.
func (b *Blackboard) RecurringErrors(min int) []string {
	if min <= 0 {
		min = 2
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var names []string
	for name, iters := range b.failures {
		if len(iters) >= min {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(a, z int) bool {
		if len(b.failures[names[a]]) != len(b.failures[names[z]]) {
			return len(b.failures[names[a]]) > len(b.failures[names[z]])
		}
		return names[a] < names[z]
	})
	return names
}

// BuildHints renders the board into a prompt fragment.
//
// Description:
//
//	Recurring failures come first (they are what correction most needs
//	to fix), then the freshest bad patterns to avoid, then good
//	patterns to keep. Duplicate content is dropped. Returns "" when
//	the board has nothing to say.
//
// Inputs:
//   - maxGood: Cap on good-pattern lines. Non-positive means 3.
//   - maxBad: Cap on bad-pattern lines. Non-positive means 5.
func (b *Blackboard) BuildHints(maxGood, maxBad int) string {
	if maxGood <= 0 {
		maxGood = 3
	}
	if maxBad <= 0 {
		maxBad = 5
	}

	recurring := b.RecurringErrors(2)

	b.mu.Lock()
	defer b.mu.Unlock()

	var sb strings.Builder
	if len(recurring) > 0 {
		sb.WriteString("Recurring problems across attempts (fix these first):\n")
		for _, name := range recurring {
			fmt.Fprintf(&sb, "- the %s check has failed in %d attempts\n", name, len(b.failures[name]))
		}
	}

	seen := make(map[string]bool)
	bad, good := 0, 0
	// Walk newest-first so the freshest observations win the caps.
	var badLines, goodLines []string
	for i := len(b.entries) - 1; i >= 0; i-- {
		e := b.entries[i]
		if seen[e.Content] {
			continue
		}
		switch e.Type {
		case BadPattern:
			if bad < maxBad {
				seen[e.Content] = true
				badLines = append(badLines, "- "+e.Content)
				bad++
			}
		case GoodPattern:
			if good < maxGood {
				seen[e.Content] = true
				goodLines = append(goodLines, "- "+e.Content)
				good++
			}
		}
	}

	if len(badLines) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Avoid repeating these mistakes:\n")
		sb.WriteString(strings.Join(badLines, "\n"))
		sb.WriteString("\n")
	}
	if len(goodLines) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Keep what worked:\n")
		sb.WriteString(strings.Join(goodLines, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Len returns the current entry count.
func (b *Blackboard) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear empties the board and the failure tally.
func (b *Blackboard) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	b.failures = make(map[string]map[int]struct{})
}
