// Package openai provides a wake-word probe backed by the OpenAI audio
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

	"github.com/localbrain/voicecore/pkg/audio"
	"github.com/localbrain/voicecore/pkg/provider/probe"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = "whisper-1"

// Ensure Probe implements the probe.Transcriber interface.
var _ probe.Transcriber = (*Probe)(nil)

// Probe implements probe.Transcriber using the OpenAI transcription endpoint.
// Each candidate segment is wrapped in a WAV container and submitted as a
// single request.
type Probe struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the probe.
type config struct {
	baseURL  string
	language string
	timeout  time.Duration
}

// Option is a functional option for Probe.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. This allows pointing
// the probe at any transcription service exposing the OpenAI wire format.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 language hint for transcription.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI Probe. If model is empty, DefaultModel
// (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Probe, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai probe: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
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
	return &Probe{client: client, model: model, language: cfg.language}, nil
}

// Transcribe implements probe.Transcriber.
func (p *Probe) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	if sampleRate <= 0 {
		return "", fmt.Errorf("openai probe: invalid sample rate %d", sampleRate)
	}

	wav := audio.EncodeWAV(pcm, sampleRate, 1)

	params := oai.AudioTranscriptionNewParams{
		Model: p.model,
		File:  oai.File(bytes.NewReader(wav), "segment.wav", "audio/wav"),
	}
	if p.language != "" {
		params.Language = param.NewOpt(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai probe: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
