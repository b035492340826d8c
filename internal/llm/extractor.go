package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/topics"
	"github.com/joseph-ayodele/contracts-parser/internal/utils"
)

// ExtractorConfig tunes the calls a FieldExtractor makes.
type ExtractorConfig struct {
	Model           string
	Temperature     float32
	MaxTokens       int
	MaxContextRunes int
}

// FieldExtractor turns a chat client into an Extractor: it renders the prompt, calls the
// model, and cleans the JSON it gets back.
type FieldExtractor struct {
	client  Client
	cfg     ExtractorConfig
	counter TokenCounter
	logger  *slog.Logger
}

type ExtractorOption func(*FieldExtractor)

// WithTokenCounter sets the estimator used when the provider reports no usage.
func WithTokenCounter(c TokenCounter) ExtractorOption {
	return func(e *FieldExtractor) {
		if c != nil {
			e.counter = c
		}
	}
}

func NewFieldExtractor(client Client, cfg ExtractorConfig, logger *slog.Logger, opts ...ExtractorOption) *FieldExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxContextRunes <= 0 {
		cfg.MaxContextRunes = DefaultMaxContextRunes
	}
	e := &FieldExtractor{client: client, cfg: cfg, counter: HeuristicCounter{}, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract asks the model for req.Fields. A non-JSON answer fails with ErrMalformedResponse.
// Values that do not fit their field type are dropped rather than failing the call.
func (e *FieldExtractor) Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	if len(req.Fields) == 0 {
		return ExtractResult{Data: fields.Map{}}, nil
	}
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	sid := common.SessionIDFromContext(ctx)
	start := time.Now()

	defs := make([]topics.FieldDefinition, len(req.Fields))
	for i, name := range req.Fields {
		defs[i], _ = topics.LookupField(name)
	}

	text, truncated := utils.TruncateRunes(req.Context, e.cfg.MaxContextRunes)
	if truncated {
		e.logger.Warn("llm.extract.context_truncated", "req_id", rid, "max_runes", e.cfg.MaxContextRunes)
	}
	sys, user, err := RenderPrompts(PromptData{
		Names:     req.Fields,
		Fields:    defs,
		Context:   text,
		Hint:      req.Hint,
		Truncated: truncated,
	})
	if err != nil {
		return ExtractResult{}, err
	}

	e.logger.Info("llm.extract.start",
		"req_id", rid,
		"session_id", sid,
		"model", e.cfg.Model,
		"fields", len(req.Fields),
		"text_len", len(text),
	)

	resp, err := e.client.Chat(ctx, ChatRequest{
		Model:       e.cfg.Model,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		Messages: []Message{
			{Role: RoleSystem, Content: sys},
			{Role: RoleUser, Content: user},
		},
		JSON: true,
	})
	if err != nil {
		e.logger.Error("llm.extract.chat_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return ExtractResult{}, fmt.Errorf("llm chat: %w", err)
	}

	usage := resp.Usage
	if usage.Total() == 0 {
		usage = Usage{PromptTokens: e.counter.Count(sys) + e.counter.Count(user), CompletionTokens: e.counter.Count(resp.Content)}
	}
	result := ExtractResult{Data: fields.Map{}, Usage: usage, Raw: resp.Content}

	raw, err := DecodeObject(resp.Content)
	if err != nil {
		e.logger.Warn("llm.extract.malformed", "req_id", rid, "error", err, "content_len", len(resp.Content),
			"elapsed_ms", time.Since(start).Milliseconds())
		return result, err
	}

	doc, dropped := NormalizeFields(raw, defs)
	schemaMap := BuildFieldSchema(defs)
	schema, err := CompileSchema(schemaMap)
	if err != nil {
		return result, fmt.Errorf("field schema: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return result, fmt.Errorf("encode fields: %w", err)
	}
	if vErr := validateBytes(schema, b); vErr != nil {
		var more []string
		doc, more = DropInvalidFields(schema, doc)
		dropped = append(dropped, more...)
		e.logger.Warn("llm.extract.lenient_sanitize_applied", "req_id", rid, "error", vErr, "dropped", more)
	}
	if len(dropped) > 0 {
		e.logger.Debug("llm.extract.normalize_sanitize", "req_id", rid, "dropped", dropped)
	}

	result.Data = fields.FromMap(doc)
	result.Dropped = dropped
	e.logger.Info("llm.extract.ok",
		"req_id", rid,
		"session_id", sid,
		"requested", len(req.Fields),
		"returned", len(result.Data),
		"tokens", usage.Total(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}
