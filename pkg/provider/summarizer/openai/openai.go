// Package openai provides a summarizer backed by the OpenAI chat
// completions API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/openai/openai-go/option"

	"github.com/tobiasmeyr/memovox/pkg/provider/summarizer"
)

// DefaultModel is the default chat model used for summarization.
const DefaultModel = "gpt-4o-mini"

// systemPrompt is the instruction sent with every summarization request.
// Voice memos are short and unstructured, so the prompt asks for the gist
// plus any actionable items rather than a literary abstract.
const systemPrompt = `Summarize the following voice memo transcript in 2-3 sentences.
Preserve concrete facts: names, dates, amounts, decisions, and action items.
Write in the same language as the transcript. Do not add commentary.`

// Compile-time assertion that Provider implements summarizer.Provider.
var _ summarizer.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout. The default is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Provider implements summarizer.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs a new OpenAI summarizer. If model is empty, DefaultModel is
// used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai summarizer: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{timeout: 30 * time.Second}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Summarize implements summarizer.Provider.
func (p *Provider) Summarize(ctx context.Context, text string) (*summarizer.Summary, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("openai summarizer: empty input text")
	}

	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(text),
		},
		Temperature: oai.Float(0.3),
	})
	if err != nil {
		return nil, fmt.Errorf("openai summarizer: complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai summarizer: empty choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("openai summarizer: empty completion")
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &summarizer.Summary{Model: model, Text: content}, nil
}
