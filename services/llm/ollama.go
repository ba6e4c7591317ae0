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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ollamaTracer = otel.Tracer("crucible.llm.ollama")

// OllamaClient talks to a local Ollama server's /api/generate endpoint.
//
// Thread Safety: safe for concurrent use.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// ollamaGenerateRequest mirrors the Ollama generate API.
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// NewOllamaClient creates a client from explicit settings.
//
// Inputs:
//
//	baseURL - Server base URL, e.g. "http://localhost:11434".
//	model - Default model name, e.g. "qwen2.5-coder:14b".
//	timeout - Per-request timeout. Zero means 120s.
//
// Outputs:
//
//	*OllamaClient - The configured client.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		model:      model,
	}
}

// NewOllamaClientFromEnv creates a client from CRUCIBLE_LLM_BASE_URL and
// CRUCIBLE_LLM_MODEL, with localhost defaults.
func NewOllamaClientFromEnv() *OllamaClient {
	baseURL := os.Getenv("CRUCIBLE_LLM_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := os.Getenv("CRUCIBLE_LLM_MODEL")
	if model == "" {
		model = "qwen2.5-coder:14b"
	}
	return NewOllamaClient(baseURL, model, 0)
}

// Name implements Client.
func (c *OllamaClient) Name() string { return "ollama" }

// Model implements Client.
func (c *OllamaClient) Model() string { return c.model }

// Generate implements Client.
//
// A non-2xx status, transport failure, or truncated body returns an error
// wrapping ErrGeneration; callers treat any error as a failed candidate
// slot, so no error classification beyond that is needed here.
func (c *OllamaClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := ollamaTracer.Start(ctx, "ollama.generate")
	defer span.End()

	model := req.Model
	if model == "" {
		model = c.model
	}
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Float64("llm.temperature", req.Temperature),
	)

	options := map[string]any{
		"temperature": req.Temperature,
		"seed":        req.Seed,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrGeneration, err)
	}

	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrGeneration, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		span.SetStatus(codes.Error, resp.Status)
		return nil, fmt.Errorf("%w: status %d: %s", ErrGeneration, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		span.SetStatus(codes.Error, "decode failure")
		return nil, fmt.Errorf("%w: decoding response: %v", ErrGeneration, err)
	}

	return &Response{
		Content:      genResp.Response,
		Model:        genResp.Model,
		InputTokens:  genResp.PromptEvalCount,
		OutputTokens: genResp.EvalCount,
		Duration:     time.Since(start),
	}, nil
}

var _ Client = (*OllamaClient)(nil)
