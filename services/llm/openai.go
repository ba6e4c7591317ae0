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
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var openaiTracer = otel.Tracer("crucible.llm.openai")

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint
// (OpenAI itself, vLLM, llama.cpp server, LM Studio).
//
// Thread Safety: safe for concurrent use.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
//
// Inputs:
//
//	apiKey - API key. May be a placeholder for local servers.
//	baseURL - Endpoint base URL. Empty means api.openai.com.
//	model - Default model identifier.
//
// Outputs:
//
//	*OpenAIClient - The configured client.
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Name implements Client.
func (c *OpenAIClient) Name() string { return "openai" }

// Model implements Client.
func (c *OpenAIClient) Model() string { return c.model }

// Generate implements Client.
func (c *OpenAIClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := openaiTracer.Start(ctx, "openai.generate")
	defer span.End()

	model := req.Model
	if model == "" {
		model = c.model
	}
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Float64("llm.temperature", req.Temperature),
	)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	seed := req.Seed
	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		Seed:        &seed,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "empty choices")
		return nil, fmt.Errorf("%w: response contained no choices", ErrGeneration)
	}

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Duration:     time.Since(start),
	}, nil
}

var _ Client = (*OpenAIClient)(nil)
