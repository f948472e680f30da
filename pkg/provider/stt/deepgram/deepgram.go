// Package deepgram provides a Deepgram-backed STT provider using the
// Deepgram streaming WebSocket API. It implements the stt.Provider interface.
//
// Deepgram's streaming endpoint accepts complete files just as well as live
// audio: the provider opens a socket, writes the whole payload in fixed-size
// chunks, sends CloseStream, and concatenates the final results it receives
// back. This keeps one wire protocol for both prerecorded memos and any
// future live capture.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/tobiasmeyr/memovox/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// writeChunkSize is the size of the binary frames the payload is split
	// into. Deepgram recommends frames well under 1 MB.
	writeChunkSize = 64 * 1024
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the Deepgram WebSocket endpoint. Used in tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithTimeout bounds a single Transcribe call end to end. The default is
// 60 seconds.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
	timeout  time.Duration
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
		timeout:  60 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. It streams the payload over a
// WebSocket, collects all final results, and returns them joined in order.
// The overall confidence is the minimum across segments — a memo is only as
// reliable as its worst stretch.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, opts stt.Options) (*stt.Result, error) {
	if len(audio) == 0 {
		return nil, errors.New("deepgram: empty audio payload")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	wsURL, err := p.buildURL(opts)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// The read limit default (32 KiB) is too small for verbose word-level
	// responses on long memos.
	conn.SetReadLimit(4 * 1024 * 1024)

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- p.writePayload(ctx, conn, audio)
	}()

	result, err := collectFinals(ctx, conn, p.resolveLanguage(opts))
	if err != nil {
		return nil, err
	}
	if werr := <-writeErr; werr != nil {
		return nil, werr
	}
	return result, nil
}

// writePayload sends the audio in chunks followed by a CloseStream control
// message so Deepgram flushes its final results.
func (p *Provider) writePayload(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	for off := 0; off < len(audio); off += writeChunkSize {
		end := min(off+writeChunkSize, len(audio))
		if err := conn.Write(ctx, websocket.MessageBinary, audio[off:end]); err != nil {
			return fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// resolveLanguage returns the per-request language, falling back to the
// provider's configured default. The resolved value is what actually goes on
// the wire, so it is also what ends up in [stt.Result.Language].
func (p *Provider) resolveLanguage(opts stt.Options) string {
	if opts.Language != "" {
		return opts.Language
	}
	return p.language
}

// buildURL constructs the Deepgram streaming endpoint URL for the request.
func (p *Provider) buildURL(opts stt.Options) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.resolveLanguage(opts))
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure of a Deepgram Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// collectFinals reads messages until the server closes the socket, gathering
// every final transcript segment in order.
func collectFinals(ctx context.Context, conn *websocket.Conn, language string) (*stt.Result, error) {
	var (
		segments      []string
		minConfidence = 1.0
		sawSegment    bool
	)

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure {
				break
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("deepgram: read: %w", ctx.Err())
			}
			// Deepgram drops the connection without a close frame once the
			// stream is flushed; treat EOF after results as end of stream.
			if sawSegment {
				break
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}

		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Type != "Results" || !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
			continue
		}

		alt := resp.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}
		segments = append(segments, alt.Transcript)
		sawSegment = true
		if alt.Confidence < minConfidence {
			minConfidence = alt.Confidence
		}
	}

	if !sawSegment {
		return nil, errors.New("deepgram: no transcript in response")
	}
	return &stt.Result{
		Text:       strings.Join(segments, " "),
		Language:   language,
		Confidence: minConfidence,
	}, nil
}
