// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package outcome persists run results for later analysis: which
// validators fail most, how often correction helps, what review costs.
// Recording is fire-and-forget; a recording failure is logged and
// swallowed, never surfaced to the pipeline caller.
package outcome

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/crucible/pkg/logging"
)

// Record is one pipeline run's outcome.
type Record struct {
	// RunID uniquely identifies the run.
	RunID uuid.UUID `json:"run_id"`

	// Timestamp is when the run finished.
	Timestamp time.Time `json:"timestamp"`

	// TaskID, TaskType, and RiskTag describe the task.
	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type,omitempty"`
	RiskTag  string `json:"risk_tag,omitempty"`

	// Profile names the validation profile used.
	Profile string `json:"profile,omitempty"`

	// Candidates is the total candidate count across iterations.
	Candidates int `json:"candidates"`

	// Iterations is the correction-iteration count; Corrected is true
	// when more than one ran.
	Iterations int  `json:"iterations"`
	Corrected  bool `json:"corrected"`

	// BestScore is the winner's aggregate; AllPassed is whether it
	// cleared every check.
	BestScore float64 `json:"best_score"`
	AllPassed bool    `json:"all_passed"`

	// PassedRules and FailedRules name the winner's validators by
	// verdict.
	PassedRules []string `json:"passed_rules,omitempty"`
	FailedRules []string `json:"failed_rules,omitempty"`

	// Reviewed is whether cross-architecture review ran;
	// ReviewSkipReason says why not.
	Reviewed         bool   `json:"reviewed"`
	ReviewSkipReason string `json:"review_skip_reason,omitempty"`
	ReviewIssues     int    `json:"review_issues,omitempty"`
	ReviewTokens     int    `json:"review_tokens,omitempty"`

	// Timing breakdown.
	GenerationTime time.Duration `json:"generation_time"`
	ValidationTime time.Duration `json:"validation_time"`
	TotalTime      time.Duration `json:"total_time"`

	// StopReason is the loop's stop reason.
	StopReason string `json:"stop_reason,omitempty"`
}

// Recorder persists run outcomes.
//
// Implementations must treat Record as fire-and-forget: log failures,
// never return them to the pipeline.
type Recorder interface {
	Record(ctx context.Context, rec *Record)
}

// NopRecorder discards every record.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(ctx context.Context, rec *Record) {}

// JSONLRecorder appends records to per-day JSON-lines files under a
// directory, one line per run.
//
// Thread Safety: Safe for concurrent use.
type JSONLRecorder struct {
	mu     sync.Mutex
	dir    string
	logger *logging.Logger

	// now is swapped in tests.
	now func() time.Time
}

// NewJSONLRecorder creates a recorder writing under dir, creating it if
// needed.
func NewJSONLRecorder(dir string, logger *logging.Logger) (*JSONLRecorder, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("outcome: creating %s: %w", dir, err)
	}
	return &JSONLRecorder{dir: dir, logger: logger, now: time.Now}, nil
}

// Record implements Recorder. Failures are logged and swallowed.
func (r *JSONLRecorder) Record(ctx context.Context, rec *Record) {
	if rec == nil {
		return
	}
	if rec.RunID == uuid.Nil {
		rec.RunID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		r.logger.Warn("outcome record marshal failed", "task_id", rec.TaskID, "error", err.Error())
		return
	}

	path := filepath.Join(r.dir, fmt.Sprintf("outcomes_%s.jsonl", rec.Timestamp.Format("2006-01-02")))

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		r.logger.Warn("outcome file open failed", "path", path, "error", err.Error())
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		r.logger.Warn("outcome write failed", "path", path, "error", err.Error())
	}
}

var _ Recorder = (*JSONLRecorder)(nil)
var _ Recorder = NopRecorder{}
