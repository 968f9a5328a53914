// Package openai provides a dialog generator backed by the OpenAI chat
// completions API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dialverse/dialcore/pkg/provider/dialog"
)

// Option is a functional option for the Generator.
type Option func(*config)

type config struct {
	baseURL string
	timeout time.Duration
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Generator implements dialog.Generator using the OpenAI API.
type Generator struct {
	client oai.Client
	model  string
	system string
}

// Compile-time interface assertion.
var _ dialog.Generator = (*Generator)(nil)

// New constructs a Generator. apiKey and model must be non-empty.
func New(apiKey, model, systemPrompt string, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		clientOpts = append(clientOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Generator{
		client: oai.NewClient(clientOpts...),
		model:  model,
		system: systemPrompt,
	}, nil
}

// Generate implements dialog.Generator.
func (g *Generator) Generate(ctx context.Context, req dialog.Request) (string, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	if g.system != "" {
		messages = append(messages, oai.SystemMessage(g.system+"\nRespond in language: "+req.Language))
	}
	for _, turn := range req.History {
		if rest, ok := strings.CutPrefix(turn, "customer: "); ok {
			messages = append(messages, oai.UserMessage(rest))
		} else {
			messages = append(messages, oai.AssistantMessage(strings.TrimPrefix(turn, "agent: ")))
		}
	}
	messages = append(messages, oai.UserMessage(req.Transcript))

	resp, err := g.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(g.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
