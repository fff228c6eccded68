// Package upstream performs the single chat-completion call to the model
// provider. It does not retry; a failed call surfaces as a *TransportError.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/n0madic/go-appforge/internal/codec"
	"github.com/n0madic/go-appforge/internal/config"
	"github.com/n0madic/go-appforge/internal/types"
)

// TransportError is a failed provider call: either a non-2xx response
// (StatusCode and Body set) or a network failure (Err set, StatusCode 0).
type TransportError struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		if e.Err == nil {
			return "upstream request failed"
		}
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
	return codec.FormatUpstreamErrorWithHeaders(e.StatusCode, e.Body, e.Header)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client makes chat-completion requests against an OpenAI-compatible API.
type Client struct {
	sdk      openai.Client
	sampling types.SamplingParams
	Verbose  bool
	Debug    bool
}

// NewClient builds a client from the loaded configuration. A missing API key
// is a configuration error.
func NewClient(cfg *config.ServerConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &config.Error{Key: "APPFORGE_API_KEY", Message: "provider API key is not configured"}
	}

	c := &Client{
		sampling: cfg.Sampling,
		Verbose:  cfg.Verbose,
		Debug:    cfg.Debug,
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.Debug {
		transport = &debugTransport{next: transport}
	}
	timeout := cfg.ProviderTimeout()

	c.sdk = openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(&http.Client{Timeout: timeout, Transport: transport}),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", config.UserAgent()),
	)
	return c, nil
}

// Model returns the model name requests are sent with.
func (c *Client) Model() string { return c.sampling.Model }

// Complete sends the conversation and returns the first choice's message
// content. A response without choices yields an empty string.
func (c *Client) Complete(ctx context.Context, messages []types.ChatMessage) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages:         toSDKMessages(messages),
		Model:            shared.ChatModel(c.sampling.Model),
		Temperature:      openai.Float(c.sampling.Temperature),
		MaxTokens:        openai.Int(c.sampling.MaxTokens),
		TopP:             openai.Float(c.sampling.TopP),
		FrequencyPenalty: openai.Float(c.sampling.FrequencyPenalty),
		PresencePenalty:  openai.Float(c.sampling.PresencePenalty),
	}

	if c.Verbose {
		slog.Info("upstream.request",
			"model", c.sampling.Model,
			"messages", len(messages),
			"temperature", c.sampling.Temperature,
			"max_tokens", c.sampling.MaxTokens,
		)
	}

	start := time.Now()
	out, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		terr := toTransportError(err)
		slog.Error("upstream.failed",
			"status", terr.StatusCode,
			"error", terr.Error(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", terr
	}

	if len(out.Choices) == 0 {
		slog.Warn("upstream.empty_choices", "id", out.ID)
		return "", nil
	}
	content := out.Choices[0].Message.Content

	if c.Verbose {
		slog.Info("upstream.response",
			"id", out.ID,
			"finish_reason", out.Choices[0].FinishReason,
			"content_chars", len(content),
			"prompt_tokens", out.Usage.PromptTokens,
			"completion_tokens", out.Usage.CompletionTokens,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	return content, nil
}

func toSDKMessages(messages []types.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toTransportError(err error) *TransportError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		terr := &TransportError{
			StatusCode: apiErr.StatusCode,
			Body:       []byte(apiErr.RawJSON()),
			Err:        err,
		}
		if apiErr.Response != nil {
			terr.Header = apiErr.Response.Header
		}
		return terr
	}
	return &TransportError{Err: err}
}
