// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMockClient_Deterministic(t *testing.T) {
	client := NewMockClient("test-model")

	req := &Request{Prompt: "p", Temperature: 0.7, Seed: 42}
	first, err := client.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := client.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if first.Content != second.Content {
		t.Errorf("same request produced different content: %q vs %q", first.Content, second.Content)
	}
	if client.CallCount() != 2 {
		t.Errorf("CallCount() = %d, want 2", client.CallCount())
	}
}

func TestMockClient_QueueAndErrors(t *testing.T) {
	client := NewMockClient("")
	client.Enqueue("first").EnqueueError(errors.New("backend down")).Enqueue("third")

	resp, err := client.Generate(context.Background(), &Request{Prompt: "a"})
	if err != nil || resp.Content != "first" {
		t.Fatalf("first call = (%v, %v), want first", resp, err)
	}

	_, err = client.Generate(context.Background(), &Request{Prompt: "b"})
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("second call error = %v, want ErrGeneration", err)
	}

	resp, err = client.Generate(context.Background(), &Request{Prompt: "c"})
	if err != nil || resp.Content != "third" {
		t.Fatalf("third call = (%v, %v), want third", resp, err)
	}
}

func TestOllamaClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Stream {
			t.Error("stream must be false")
		}
		if req.Options["seed"] != float64(7) {
			t.Errorf("seed option = %v, want 7", req.Options["seed"])
		}
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:           req.Model,
			Response:        "generated text",
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       20,
		})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "test-model", 0)
	resp, err := client.Generate(context.Background(), &Request{
		Prompt:      "write code",
		System:      "be terse",
		Temperature: 0.3,
		Seed:        7,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != "generated text" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 20 {
		t.Errorf("token counts = (%d, %d), want (10, 20)", resp.InputTokens, resp.OutputTokens)
	}
	if resp.Duration <= 0 {
		t.Error("Duration must be positive")
	}
}

func TestOllamaClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "missing", 0)
	_, err := client.Generate(context.Background(), &Request{Prompt: "x"})
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration", err)
	}
}

func TestOllamaClient_TransportError(t *testing.T) {
	// Point at a closed server.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewOllamaClient(server.URL, "m", 0)
	_, err := client.Generate(context.Background(), &Request{Prompt: "x"})
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration", err)
	}
}
