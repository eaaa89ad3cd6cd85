// Package mock provides a scripted capture producer for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/localbrain/voicecore/pkg/audio"
)

// Producer is a test double implementing capture.Producer. Frames are pushed
// by the test via Push and delivered on the Frames channel.
type Producer struct {
	// StartErr, when non-nil, is returned from Start (simulates a device
	// error or permission denial).
	StartErr error

	mu      sync.Mutex
	frames  chan audio.Frame
	started bool
	stopped bool
}

// New returns a Producer with a frame buffer of the given capacity.
func New(buffer int) *Producer {
	if buffer <= 0 {
		buffer = 64
	}
	return &Producer{frames: make(chan audio.Frame, buffer)}
}

// Start marks the producer running, or returns StartErr if set.
func (p *Producer) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StartErr != nil {
		return p.StartErr
	}
	if p.stopped {
		return errors.New("mock: producer already stopped")
	}
	p.started = true
	return nil
}

// Frames returns the scripted frame channel.
func (p *Producer) Frames() <-chan audio.Frame { return p.frames }

// Stop closes the frame channel. Idempotent.
func (p *Producer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.frames)
	return nil
}

// Push delivers a frame to consumers. Returns false if the producer has been
// stopped or the buffer is full.
func (p *Producer) Push(frame audio.Frame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	select {
	case p.frames <- frame:
		return true
	default:
		return false
	}
}

// Started reports whether Start has been called successfully.
func (p *Producer) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Stopped reports whether Stop has been called.
func (p *Producer) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
