// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the text-generation port used by the candidate
// generator. The interface is deliberately narrow: one blocking Generate
// call. Implementations are injected at construction time; the pipeline
// never constructs a client itself.
//
// Two production implementations are provided (an Ollama client and an
// OpenAI-compatible client) plus a deterministic MockClient for tests.
//
// Thread Safety: all implementations in this package are safe for
// concurrent use.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrGeneration indicates the backend failed to produce a completion.
// Transport errors, non-2xx responses, and malformed bodies all wrap it.
var ErrGeneration = errors.New("llm: generation failed")

// Request is one generation request.
type Request struct {
	// Prompt is the user prompt.
	Prompt string `json:"prompt"`

	// System is the system prompt. May be empty.
	System string `json:"system,omitempty"`

	// Temperature controls sampling randomness (0.0-2.0).
	Temperature float64 `json:"temperature"`

	// Seed makes sampling reproducible on backends that support it.
	Seed int `json:"seed"`

	// MaxTokens limits the response length. Zero means backend default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Model overrides the client's default model for this request.
	Model string `json:"model,omitempty"`
}

// Response is one generation result.
type Response struct {
	// Content is the generated text.
	Content string `json:"content"`

	// Model is the model that produced the content.
	Model string `json:"model"`

	// InputTokens and OutputTokens are usage counters when the backend
	// reports them; zero otherwise.
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// Duration is the wall-clock time of the call.
	Duration time.Duration `json:"duration"`
}

// Client is the text-generation port.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Generate sends one prompt and returns the completion.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout.
	//   req - The generation request.
	//
	// Outputs:
	//   *Response - The completion.
	//   error - Non-nil on transport or backend failure, wrapping
	//           ErrGeneration.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Name returns the provider name (e.g. "ollama", "openai").
	Name() string

	// Model returns the default model identifier.
	Model() string
}
