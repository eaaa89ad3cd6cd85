// Package whisper provides a wake-word probe backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/localbrain/voicecore/pkg/audio"
	"github.com/localbrain/voicecore/pkg/provider/probe"
)

const defaultLanguage = "en"

// Compile-time assertion that Probe satisfies probe.Transcriber.
var _ probe.Transcriber = (*Probe)(nil)

// Probe implements probe.Transcriber using whisper.cpp Go bindings (CGO),
// eliminating network overhead entirely. The model is loaded once at startup
// and shared across all probe calls.
type Probe struct {
	model    whisperlib.Model
	language string

	// Each whisper context is NOT thread-safe and contexts are cheap relative
	// to inference, so a fresh context is created per call under mu.
	mu sync.Mutex
}

// Option is a functional option for configuring a Probe.
type Option func(*Probe)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Probe) { p.language = lang }
}

// New creates a Probe that loads the whisper.cpp model from the given file
// path. The caller must call Close when the probe is no longer needed.
func New(modelPath string, opts ...Option) (*Probe, error) {
	if modelPath == "" {
		return nil, errors.New("whisper probe: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper probe: load model %q: %w", modelPath, err)
	}

	p := &Probe{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the probe is no
// longer needed.
func (p *Probe) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements probe.Transcriber. The sample rate must be 16 kHz,
// which is the only rate whisper.cpp accepts; callers resample beforehand.
func (p *Probe) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper probe: context already cancelled: %w", err)
	}
	if sampleRate != whisperlib.SampleRate {
		return "", fmt.Errorf("whisper probe: sample rate must be %d, got %d", whisperlib.SampleRate, sampleRate)
	}
	if len(pcm) == 0 {
		return "", nil
	}

	samples := audio.DecodePCM16Float32(pcm)

	p.mu.Lock()
	defer p.mu.Unlock()

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper probe: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper probe: failed to set language, using default", "language", p.language, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper probe: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper probe: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
