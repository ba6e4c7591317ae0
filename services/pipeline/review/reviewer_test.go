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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/crucible/services/llm"
	"github.com/AleutianAI/crucible/services/pipeline/candidate"
)

func reviewCandidate(lines int) *candidate.Candidate {
	return &candidate.Candidate{
		ID:       0,
		TaskID:   "t1",
		Content:  strings.Repeat("var x = 1\n", lines),
		Language: "go",
	}
}

func TestReviewer_ShouldReview(t *testing.T) {
	r := New(llm.NewMockClient(""), Config{LineThreshold: 50}, nil)

	tests := []struct {
		name    string
		c       *candidate.Candidate
		riskTag string
		force   bool
		want    bool
	}{
		{name: "small low-risk artifact skips", c: reviewCandidate(5), want: false},
		{name: "large artifact reviews", c: reviewCandidate(60), want: true},
		{name: "security tag reviews", c: reviewCandidate(5), riskTag: "security", want: true},
		{name: "infrastructure tag reviews", c: reviewCandidate(5), riskTag: "Infrastructure", want: true},
		{name: "unknown tag skips", c: reviewCandidate(5), riskTag: "cosmetic", want: false},
		{name: "force overrides heuristics", c: reviewCandidate(5), force: true, want: true},
		{name: "failed slot never reviews", c: &candidate.Candidate{GenerationError: "down"}, force: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.ShouldReview(tt.c, tt.riskTag, tt.force); got != tt.want {
				t.Errorf("ShouldReview = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReviewer_ShouldReview_OpenCircuit(t *testing.T) {
	r := New(llm.NewMockClient(""), Config{Breaker: BreakerConfig{FailureThreshold: 1}}, nil)
	r.breaker.RecordFailure()

	if r.ShouldReview(reviewCandidate(100), "security", true) {
		t.Error("open circuit must suppress review even when forced")
	}
}

func TestReviewer_Review_ParsesIssues(t *testing.T) {
	client := llm.NewMockClient("review-model")
	client.GenerateFunc = func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Content:      `[{"severity":"critical","category":"security","description":"shell injection","line":3}]`,
			InputTokens:  500,
			OutputTokens: 100,
		}, nil
	}

	r := New(client, Config{}, nil)
	result := r.Review(context.Background(), reviewCandidate(10))

	if result.Skipped {
		t.Fatalf("review skipped: %s", result.Reason)
	}
	if len(result.Issues) != 1 || result.Issues[0].Category != "security" {
		t.Fatalf("unexpected issues: %+v", result.Issues)
	}
	if !result.HasCritical() {
		t.Error("HasCritical should report the critical finding")
	}
	if result.TokensUsed != 600 {
		t.Errorf("TokensUsed = %d, want 600", result.TokensUsed)
	}
	if r.Costs().Spent() == 0 {
		t.Error("completed review must add to the cost tracker")
	}
}

func TestReviewer_Review_MarkdownFence(t *testing.T) {
	client := llm.NewMockClient("")
	client.Enqueue("```json\n[{\"severity\":\"warning\",\"category\":\"style\",\"description\":\"long function\"}]\n```")

	r := New(client, Config{}, nil)
	result := r.Review(context.Background(), reviewCandidate(10))

	if result.Skipped {
		t.Fatalf("review skipped: %s", result.Reason)
	}
	if len(result.Issues) != 1 {
		t.Fatalf("got %d issues, want 1", len(result.Issues))
	}
	if result.HasCritical() {
		t.Error("warning finding should not be critical")
	}
}

func TestReviewer_Review_WrappedObject(t *testing.T) {
	client := llm.NewMockClient("")
	client.Enqueue(`{"issues":[{"severity":"high","category":"correctness","description":"off by one"}]}`)

	r := New(client, Config{}, nil)
	result := r.Review(context.Background(), reviewCandidate(10))
	if result.Skipped || len(result.Issues) != 1 {
		t.Fatalf("wrapped object not handled: %+v", result)
	}
}

func TestReviewer_Review_CleanPass(t *testing.T) {
	client := llm.NewMockClient("")
	client.Enqueue("[]")

	r := New(client, Config{}, nil)
	result := r.Review(context.Background(), reviewCandidate(10))
	if result.Skipped || len(result.Issues) != 0 {
		t.Fatalf("clean pass mishandled: %+v", result)
	}
}

func TestReviewer_Review_UnparseableSkips(t *testing.T) {
	client := llm.NewMockClient("")
	client.Enqueue("I think this code looks fine!")

	r := New(client, Config{}, nil)
	result := r.Review(context.Background(), reviewCandidate(10))
	if !result.Skipped {
		t.Fatal("unparseable response must degrade to a skip")
	}
	if !strings.Contains(result.Reason, "unparseable") {
		t.Errorf("Reason = %q", result.Reason)
	}
	// Output the pipeline can't use counts as a backend failure.
	if r.breaker.Stats().TotalFailures != 1 {
		t.Errorf("TotalFailures = %d, want 1", r.breaker.Stats().TotalFailures)
	}
	if r.Costs().Spent() == 0 {
		t.Error("tokens were consumed, so the spend must be recorded")
	}
}

func TestReviewer_Review_RepeatedUnparseableOpensBreaker(t *testing.T) {
	client := llm.NewMockClient("")
	client.GenerateFunc = func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "not json at all", OutputTokens: 50}, nil
	}

	r := New(client, Config{Breaker: BreakerConfig{FailureThreshold: 2}}, nil)

	for i := 0; i < 2; i++ {
		result := r.Review(context.Background(), reviewCandidate(10))
		if !result.Skipped || !strings.Contains(result.Reason, "unparseable") {
			t.Fatalf("review %d = %+v, want unparseable skip", i, result)
		}
	}
	if r.breaker.State() != CircuitOpen {
		t.Fatalf("breaker state = %v after threshold parse failures, want open", r.breaker.State())
	}

	result := r.Review(context.Background(), reviewCandidate(10))
	if !result.Skipped || !strings.Contains(result.Reason, "circuit open") {
		t.Errorf("review after open = %+v, want circuit-open skip", result)
	}
	if client.CallCount() != 2 {
		t.Errorf("backend called %d times, want 2 (no more token spend once open)", client.CallCount())
	}
}

func TestReviewer_Review_BackendFailureTripsBreaker(t *testing.T) {
	client := llm.NewMockClient("")
	client.GenerateFunc = func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return nil, errors.New("backend down")
	}

	r := New(client, Config{Breaker: BreakerConfig{FailureThreshold: 2}}, nil)

	for i := 0; i < 2; i++ {
		result := r.Review(context.Background(), reviewCandidate(10))
		if !result.Skipped {
			t.Fatal("failed call must come back skipped")
		}
	}
	if r.breaker.State() != CircuitOpen {
		t.Fatalf("breaker state = %v after threshold failures, want open", r.breaker.State())
	}

	result := r.Review(context.Background(), reviewCandidate(10))
	if !result.Skipped || !strings.Contains(result.Reason, "circuit open") {
		t.Errorf("open-circuit review = %+v, want circuit-open skip", result)
	}
	if client.CallCount() != 2 {
		t.Errorf("backend called %d times, want 2 (open circuit must not call)", client.CallCount())
	}
}

func TestReviewer_Review_BudgetExhausted(t *testing.T) {
	client := llm.NewMockClient("")
	r := New(client, Config{Budget: 0.001, RatePer1K: 0.01}, nil)
	r.costs.Add(1000) // spend past the ceiling

	result := r.Review(context.Background(), reviewCandidate(10))
	if !result.Skipped || !strings.Contains(result.Reason, "budget") {
		t.Errorf("result = %+v, want budget skip", result)
	}
	if client.CallCount() != 0 {
		t.Error("budget gate must block before the backend call")
	}
}

func TestReviewer_Review_RateLimited(t *testing.T) {
	client := llm.NewMockClient("")
	client.Enqueue("[]").Enqueue("[]")

	r := New(client, Config{RequestsPerMinute: 1}, nil)
	first := r.Review(context.Background(), reviewCandidate(10))
	if first.Skipped {
		t.Fatalf("first review skipped: %s", first.Reason)
	}

	second := r.Review(context.Background(), reviewCandidate(10))
	if !second.Skipped || !strings.Contains(second.Reason, "rate limited") {
		t.Fatalf("second review = %+v, want rate-limit skip", second)
	}
	// Rate limiting is not a backend failure.
	if r.breaker.Stats().TotalFailures != 0 {
		t.Error("rate-limit skip must not touch the breaker")
	}
}
