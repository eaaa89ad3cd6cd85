// Package mock provides a scripted probe transcriber for tests.
package mock

import (
	"context"
	"sync"
)

// Probe is a test double implementing probe.Transcriber. Results are scripted
// via the Text and Err fields or a custom Func.
type Probe struct {
	mu sync.Mutex

	// Text and Err are returned from Transcribe when Func is nil.
	Text string
	Err  error

	// Func, when set, fully replaces the scripted behavior.
	Func func(ctx context.Context, pcm []byte, sampleRate int) (string, error)

	calls int
	last  []byte
}

// Transcribe implements probe.Transcriber.
func (p *Probe) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	p.mu.Lock()
	p.calls++
	p.last = append([]byte(nil), pcm...)
	fn := p.Func
	text, err := p.Text, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, pcm, sampleRate)
	}
	return text, err
}

// Calls returns the number of Transcribe invocations.
func (p *Probe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// LastPCM returns a copy of the PCM buffer from the most recent call.
func (p *Probe) LastPCM() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.last...)
}
