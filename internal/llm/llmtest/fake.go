// Package llmtest provides in-memory fakes of the llm interfaces for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/joseph-ayodele/contracts-parser/internal/llm"
)

// Client is a scripted llm.Client. Respond is called for every request; when nil the
// client answers with an empty JSON object.
type Client struct {
	Respond func(req llm.ChatRequest) (llm.ChatResponse, error)

	mu    sync.Mutex
	calls []llm.ChatRequest
}

func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}
	if c.Respond == nil {
		return llm.ChatResponse{Content: "{}"}, nil
	}
	return c.Respond(req)
}

// Calls returns a copy of the recorded requests.
func (c *Client) Calls() []llm.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.ChatRequest(nil), c.calls...)
}

// JSON builds a response whose content is v encoded as JSON.
func JSON(v any, usage llm.Usage) llm.ChatResponse {
	b, _ := json.Marshal(v)
	return llm.ChatResponse{Content: string(b), Usage: usage}
}

// Extractor is a scripted llm.Extractor.
type Extractor struct {
	Fn func(ctx context.Context, req llm.ExtractRequest) (llm.ExtractResult, error)

	mu       sync.Mutex
	requests []llm.ExtractRequest
}

func (e *Extractor) Extract(ctx context.Context, req llm.ExtractRequest) (llm.ExtractResult, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	return e.Fn(ctx, req)
}

// Requests returns a copy of the recorded requests.
func (e *Extractor) Requests() []llm.ExtractRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]llm.ExtractRequest(nil), e.requests...)
}
