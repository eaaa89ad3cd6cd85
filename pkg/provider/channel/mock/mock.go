// Package mock provides scripted channel and session doubles for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/localbrain/voicecore/pkg/provider/channel"
)

// Compile-time assertions.
var _ channel.Channel = (*Channel)(nil)
var _ channel.Session = (*Session)(nil)

// Channel is a test double implementing channel.Channel.
type Channel struct {
	// ConnectErr, when non-nil, is returned from Connect.
	ConnectErr error

	mu       sync.Mutex
	sessions []*Session
	lastCfg  channel.SessionConfig
}

// Connect returns a fresh Session, or ConnectErr if set.
func (c *Channel) Connect(_ context.Context, cfg channel.SessionConfig) (channel.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	s := NewSession()
	c.sessions = append(c.sessions, s)
	c.lastCfg = cfg
	return s, nil
}

// Sessions returns all sessions handed out so far.
func (c *Channel) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Session(nil), c.sessions...)
}

// LastConfig returns the config of the most recent Connect call.
func (c *Channel) LastConfig() channel.SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCfg
}

// Session is a test double implementing channel.Session. Tests push events
// with Emit and inspect state via the accessors.
type Session struct {
	// SendErr, when non-nil, is returned from SendAudio.
	SendErr error

	mu          sync.Mutex
	events      chan channel.Event
	sent        [][]byte
	toolResults map[string]string
	sleeping    bool
	closed      bool
	errVal      error
}

// NewSession returns an open Session with a buffered event stream.
func NewSession() *Session {
	return &Session{
		events:      make(chan channel.Event, 64),
		toolResults: make(map[string]string),
	}
}

// SendAudio records the chunk. While sleeping chunks are discarded, matching
// the real transport behavior.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session closed")
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	if s.sleeping {
		return nil
	}
	s.sent = append(s.sent, append([]byte(nil), chunk...))
	return nil
}

// Events returns the scripted event stream.
func (s *Session) Events() <-chan channel.Event { return s.events }

// RelayToolResult records the relayed result keyed by call ID.
func (s *Session) RelayToolResult(callID, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session closed")
	}
	s.toolResults[callID] = output
	return nil
}

// SetSleeping records the sleep state.
func (s *Session) SetSleeping(sleeping bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session closed")
	}
	s.sleeping = sleeping
	return nil
}

// Err returns the scripted terminal error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close closes the event stream. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// Emit delivers an event to the consumer. Returns false if the session is
// closed or the buffer is full.
func (s *Session) Emit(evt channel.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- evt:
		return true
	default:
		return false
	}
}

// Fail records err as the terminal error and closes the event stream,
// simulating a fatal transport failure.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.errVal = err
	s.closed = true
	close(s.events)
}

// Sent returns copies of all audio chunks accepted so far.
func (s *Session) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// ToolResult returns the relayed output for a call ID.
func (s *Session) ToolResult(callID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.toolResults[callID]
	return out, ok
}

// Pending returns the number of emitted events not yet consumed.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Sleeping reports the recorded sleep state.
func (s *Session) Sleeping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sleeping
}

// Closed reports whether Close or Fail has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
