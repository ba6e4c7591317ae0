// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/crucible/services/llm"
)

func TestGenerator_ProducesNCandidates(t *testing.T) {
	client := llm.NewMockClient("test-model")
	g := New(client, nil)

	pool, err := g.Generate(context.Background(), &Request{
		TaskID: "t1",
		Prompt: "write a widget",
		N:      4,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if pool.Len() != 4 {
		t.Fatalf("pool has %d candidates, want 4", pool.Len())
	}
	for i, c := range pool.Candidates {
		if c.ID != i {
			t.Errorf("candidate %d has ID %d", i, c.ID)
		}
		if c.Failed() {
			t.Errorf("candidate %d unexpectedly failed: %s", i, c.GenerationError)
		}
		if c.Content == "" {
			t.Errorf("candidate %d has no content", i)
		}
	}
}

func TestGenerator_VariesTemperatureAndSeed(t *testing.T) {
	client := llm.NewMockClient("test-model")
	g := New(client, nil)

	pool, err := g.Generate(context.Background(), &Request{
		TaskID:       "t1",
		Prompt:       "p",
		N:            3,
		Temperatures: []float64{0.2, 0.9},
		BaseSeed:     100,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	wantTemps := []float64{0.2, 0.9, 0.2} // ladder wraps
	for i, c := range pool.Candidates {
		if c.Temperature != wantTemps[i] {
			t.Errorf("candidate %d temperature = %v, want %v", i, c.Temperature, wantTemps[i])
		}
		if c.Seed != 100+i {
			t.Errorf("candidate %d seed = %d, want %d", i, c.Seed, 100+i)
		}
	}

	// Distinct sampling parameters mean distinct mock content.
	if pool.Candidates[0].Content == pool.Candidates[1].Content {
		t.Error("candidates with different parameters should differ")
	}
}

func TestGenerator_RetriesOnceThenRecordsFailure(t *testing.T) {
	client := llm.NewMockClient("test-model")
	client.EnqueueError(errors.New("transient")) // attempt 1 fails
	// attempt 2 falls through to the synthesized response

	g := New(client, nil)
	pool, err := g.Generate(context.Background(), &Request{TaskID: "t1", Prompt: "p", N: 1})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if pool.Candidates[0].Failed() {
		t.Fatalf("retry should have recovered, got error %q", pool.Candidates[0].GenerationError)
	}
	if client.CallCount() != 2 {
		t.Errorf("client called %d times, want 2", client.CallCount())
	}
}

func TestGenerator_FailedSlotStaysInPool(t *testing.T) {
	client := llm.NewMockClient("test-model")
	client.EnqueueError(errors.New("down")).EnqueueError(errors.New("still down"))

	g := New(client, nil)
	pool, err := g.Generate(context.Background(), &Request{TaskID: "t1", Prompt: "p", N: 1})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if pool.Len() != 1 {
		t.Fatalf("pool has %d candidates, want 1", pool.Len())
	}
	c := pool.Candidates[0]
	if !c.Failed() {
		t.Fatal("slot should be failed after two attempts")
	}
	if len(pool.Viable()) != 0 {
		t.Error("failed slot must not be viable")
	}
}

func TestGenerator_PartialFailure(t *testing.T) {
	client := llm.NewMockClient("test-model")
	// Slot 0 fails twice; slots 1 and 2 use synthesized responses.
	client.EnqueueError(errors.New("a")).EnqueueError(errors.New("b"))

	g := New(client, nil)
	pool, err := g.Generate(context.Background(), &Request{TaskID: "t1", Prompt: "p", N: 3})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	stats := pool.Stats()
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
	if len(pool.Viable()) != 2 {
		t.Errorf("Viable = %d, want 2", len(pool.Viable()))
	}
}

func TestGenerator_ParallelPreservesOrder(t *testing.T) {
	client := llm.NewMockClient("test-model")
	g := New(client, nil)

	pool, err := g.Generate(context.Background(), &Request{
		TaskID:   "t1",
		Prompt:   "p",
		N:        8,
		BaseSeed: 10,
		Parallel: true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i, c := range pool.Candidates {
		if c.Seed != 10+i {
			t.Errorf("slot %d has seed %d, want %d (order must match slot index)", i, c.Seed, 10+i)
		}
	}
}

func TestGenerator_GenerateWithRequests(t *testing.T) {
	client := llm.NewMockClient("test-model")
	g := New(client, nil)

	pool, err := g.GenerateWithRequests(context.Background(), "t1", []*Request{
		{TaskID: "t1", Prompt: "variant a", Temperatures: []float64{0.1}, BaseSeed: 7},
		{TaskID: "t1", Prompt: "variant b", Temperatures: []float64{0.9}, BaseSeed: 42},
	})
	if err != nil {
		t.Fatalf("GenerateWithRequests: %v", err)
	}
	if pool.Len() != 2 {
		t.Fatalf("pool has %d candidates, want 2", pool.Len())
	}
	if pool.Candidates[0].Temperature != 0.1 || pool.Candidates[1].Temperature != 0.9 {
		t.Errorf("per-slot temperatures not applied: %v, %v",
			pool.Candidates[0].Temperature, pool.Candidates[1].Temperature)
	}
	if pool.Candidates[0].Seed != 7 || pool.Candidates[1].Seed != 42 {
		t.Errorf("per-slot seeds not applied: %d, %d",
			pool.Candidates[0].Seed, pool.Candidates[1].Seed)
	}
	if pool.Candidates[0].Content == pool.Candidates[1].Content {
		t.Error("different prompts should yield different content")
	}
}

func TestGenerator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := New(llm.NewMockClient(""), nil)
	if _, err := g.Generate(ctx, &Request{TaskID: "t1", Prompt: "p", N: 2}); err == nil {
		t.Fatal("cancelled context should error")
	}
}
