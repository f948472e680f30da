// Package openai provides an STT provider backed by the OpenAI audio
// transcription API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/tobiasmeyr/memovox/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = "whisper-1"

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Useful for
// OpenAI-compatible servers such as a local whisper-server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout. The default is 60 seconds,
// sized for multi-minute voice memos.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Provider implements stt.Provider using the OpenAI audio API.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs a new OpenAI STT Provider. If model is empty, DefaultModel
// (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{timeout: 60 * time.Second}
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

// Transcribe implements stt.Provider. It uploads the payload as a multipart
// file and returns the transcript text. OpenAI does not report an overall
// confidence score, so Result.Confidence is always zero.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, opts stt.Options) (*stt.Result, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("openai stt: empty audio payload")
	}

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(p.model),
		File:  oai.File(bytes.NewReader(audio), "audio"+extensionFor(opts.MIMEType), contentTypeFor(opts.MIMEType)),
	}
	if opts.Language != "" {
		params.Language = param.NewOpt(opts.Language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	if resp.Text == "" {
		return nil, fmt.Errorf("openai stt: empty transcript in response")
	}

	return &stt.Result{
		Text:     resp.Text,
		Language: opts.Language,
	}, nil
}

// extensionFor maps a MIME type to the filename extension the OpenAI API
// uses to detect the container format.
func extensionFor(mimeType string) string {
	switch normalizeMIME(mimeType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg", "application/ogg":
		return ".ogg"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/webm", "video/webm":
		return ".webm"
	default:
		return ".wav"
	}
}

// contentTypeFor returns the MIME type to attach to the multipart part,
// defaulting to audio/wav when unknown.
func contentTypeFor(mimeType string) string {
	if m := normalizeMIME(mimeType); m != "" {
		return m
	}
	return "audio/wav"
}

// normalizeMIME lowercases the type and strips any parameters
// (e.g. "audio/ogg; codecs=opus" → "audio/ogg").
func normalizeMIME(mimeType string) string {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	return m
}
