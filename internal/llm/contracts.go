package llm

import (
	"context"

	"github.com/joseph-ayodele/contracts-parser/internal/fields"
)

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role    Role
	Content string
}

// ChatRequest is the provider-neutral chat completion call.
// JSON asks the provider for a JSON object response.
type ChatRequest struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Messages    []Message
	JSON        bool
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{PromptTokens: u.PromptTokens + o.PromptTokens, CompletionTokens: u.CompletionTokens + o.CompletionTokens}
}

type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// Client is the chat completion capability the extractors depend on.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// ExtractRequest asks for Fields out of Context. Hint is optional extra guidance
// (e.g. the chunk title or the fields a baseline already holds).
type ExtractRequest struct {
	Fields  []string
	Context string
	Hint    string
}

// ExtractResult holds the usable values the model returned. Data only carries requested
// keys with a value; Dropped lists keys removed during sanitizing.
type ExtractResult struct {
	Data    fields.Map
	Usage   Usage
	Dropped []string
	Raw     string
}

// Extractor is the interface the parsing strategies depend on.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error)
}
