// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package outcome

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestJSONLRecorder_AppendsPerDayFile(t *testing.T) {
	dir := t.TempDir()
	r, err := NewJSONLRecorder(dir, nil)
	if err != nil {
		t.Fatalf("NewJSONLRecorder: %v", err)
	}
	fixed := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.Record(context.Background(), &Record{TaskID: "t1", BestScore: 0.9, AllPassed: true})
	r.Record(context.Background(), &Record{TaskID: "t2", BestScore: 0.4})

	path := filepath.Join(dir, "outcomes_2026-08-23.jsonl")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("expected per-day file: %v", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].TaskID != "t1" || records[1].TaskID != "t2" {
		t.Errorf("record order wrong: %q, %q", records[0].TaskID, records[1].TaskID)
	}
	if records[0].RunID == uuid.Nil {
		t.Error("recorder must assign a run id")
	}
	if records[0].Timestamp.IsZero() {
		t.Error("recorder must stamp the record")
	}
}

func TestJSONLRecorder_NilRecord(t *testing.T) {
	r, err := NewJSONLRecorder(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewJSONLRecorder: %v", err)
	}
	r.Record(context.Background(), nil) // must not panic
}

func TestJSONLRecorder_BadDirSwallowed(t *testing.T) {
	dir := t.TempDir()
	r, err := NewJSONLRecorder(dir, nil)
	if err != nil {
		t.Fatalf("NewJSONLRecorder: %v", err)
	}
	// Point at a directory that no longer exists; Record must log and
	// swallow, never panic or error out.
	r.dir = filepath.Join(dir, "removed", "nested")
	r.Record(context.Background(), &Record{TaskID: "t1"})
}

func TestNopRecorder(t *testing.T) {
	var rec Recorder = NopRecorder{}
	rec.Record(context.Background(), &Record{TaskID: "t1"}) // no-op
}
