// Package anyllm provides a summarizer backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider LLM interface
// supporting OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq,
// and more.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
//	p, err := anyllm.New("ollama", "llama3.2", anyllmlib.WithBaseURL("http://localhost:11434"))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/tobiasmeyr/memovox/pkg/provider/summarizer"
)

// systemPrompt mirrors the OpenAI summarizer's instruction so switching
// providers does not change the shape of the summaries.
const systemPrompt = `Summarize the following voice memo transcript in 2-3 sentences.
Preserve concrete facts: names, dates, amounts, decisions, and action items.
Write in the same language as the transcript. Do not add commentary.`

// Compile-time assertion that Provider implements summarizer.Provider.
var _ summarizer.Provider = (*Provider)(nil)

// Provider implements summarizer.Provider by wrapping any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a Provider backed by the named LLM provider.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq". model is the specific model to use. opts
// are any-llm-go options (anyllmlib.WithAPIKey, anyllmlib.WithBaseURL). If
// no API key option is provided, the backend falls back to its environment
// variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, …).
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm summarizer: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm summarizer: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm summarizer: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq", providerName)
	}
}

// Summarize implements summarizer.Provider.
func (p *Provider) Summarize(ctx context.Context, text string) (*summarizer.Summary, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("anyllm summarizer: empty input text")
	}

	temp := 0.3
	resp, err := p.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: systemPrompt},
			{Role: anyllmlib.RoleUser, Content: text},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("anyllm summarizer: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm summarizer: empty choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if content == "" {
		return nil, fmt.Errorf("anyllm summarizer: empty completion")
	}
	return &summarizer.Summary{Model: p.model, Text: content}, nil
}
