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
	"sync"
)

// MockClient is a deterministic in-memory Client for tests.
//
// Responses are served from a queue when set, otherwise synthesized from
// the request so generation is reproducible. An optional GenerateFunc
// overrides everything for full scripting.
//
// Thread Safety: safe for concurrent use.
type MockClient struct {
	mu sync.Mutex

	// GenerateFunc, when non-nil, handles every call.
	GenerateFunc func(ctx context.Context, req *Request) (*Response, error)

	queue []queuedResponse
	calls []*Request
	model string
}

type queuedResponse struct {
	resp *Response
	err  error
}

// NewMockClient creates a MockClient with the given default model name.
func NewMockClient(model string) *MockClient {
	if model == "" {
		model = "mock-model"
	}
	return &MockClient{model: model}
}

// Name implements Client.
func (c *MockClient) Name() string { return "mock" }

// Model implements Client.
func (c *MockClient) Model() string { return c.model }

// Enqueue appends a canned response to the queue.
func (c *MockClient) Enqueue(content string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, queuedResponse{resp: &Response{Content: content, Model: c.model}})
	return c
}

// EnqueueError appends a canned failure to the queue.
func (c *MockClient) EnqueueError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, queuedResponse{err: err})
	return c
}

// Calls returns a copy of every request received, in order.
func (c *MockClient) Calls() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Request, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns the number of Generate calls received.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Generate implements Client.
//
// Order of precedence: GenerateFunc, then the queue, then a synthesized
// response of the form "mock response (temp=%.2f seed=%d)".
func (c *MockClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	if c.GenerateFunc != nil {
		c.mu.Lock()
		c.calls = append(c.calls, req)
		c.mu.Unlock()
		return c.GenerateFunc(ctx, req)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)

	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		if next.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGeneration, next.err)
		}
		return next.resp, nil
	}

	return &Response{
		Content: fmt.Sprintf("mock response (temp=%.2f seed=%d)", req.Temperature, req.Seed),
		Model:   c.model,
	}, nil
}

var _ Client = (*MockClient)(nil)
