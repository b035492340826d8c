package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/llm"
)

// Client implements llm.Client on the chat completions API.
type Client struct {
	cfg     Config
	api     sdk.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &Client{cfg: cfg, api: sdk.NewClient(opts...), logger: logger}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Chat sends one chat completion, retrying rate limits, server errors and transport
// failures. Other 4xx answers fail at once.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	params := buildParams(model, req)

	start := time.Now()
	attempt := 0
	var out llm.ChatResponse
	err := retry.Do(
		func() error {
			attempt++
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return retry.Unrecoverable(err)
				}
			}
			callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()

			completion, err := c.api.Chat.Completions.New(callCtx, params)
			if err != nil {
				c.logger.Warn("llm.openai.attempt_failed", "req_id", rid, "attempt", attempt, "error", err)
				if !retryable(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			if len(completion.Choices) == 0 {
				return retry.Unrecoverable(errors.New("no choices in openai response"))
			}
			out = llm.ChatResponse{
				Content: completion.Choices[0].Message.Content,
				Model:   completion.Model,
				Usage: llm.Usage{
					PromptTokens:     int(completion.Usage.PromptTokens),
					CompletionTokens: int(completion.Usage.CompletionTokens),
				},
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.MaxRetries+1)),
		retry.Delay(c.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		c.logger.Error("llm.openai.chat_error", "req_id", rid, "model", model, "attempts", attempt, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return llm.ChatResponse{}, fmt.Errorf("openai chat: %w", err)
	}

	c.logger.Info("llm.openai.chat_ok",
		"req_id", rid,
		"model", out.Model,
		"attempts", attempt,
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func buildParams(model string, req llm.ChatRequest) sdk.ChatCompletionNewParams {
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			msgs = append(msgs, sdk.SystemMessage(m.Content))
		default:
			msgs = append(msgs, sdk.UserMessage(m.Content))
		}
	}
	params := sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(model),
		Messages:    msgs,
		Temperature: sdk.Float(float64(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.JSON {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func retryable(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled)
}
