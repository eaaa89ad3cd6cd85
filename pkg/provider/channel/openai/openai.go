// Package openai implements the channel.Channel interface for OpenAI's
// Realtime API.
//
// It establishes a bidirectional WebSocket connection to the Realtime endpoint
// and exchanges JSON events according to the Realtime API protocol. Audio is
// transmitted as base64-encoded PCM16 chunks; tool calls are surfaced as
// channel events and their results relayed back via conversation items. Sleep
// directives are derived from the agent's own spoken transcript.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/localbrain/voicecore/pkg/provider/channel"
)

// Compile-time assertions that Channel and session satisfy the channel
// interfaces.
var _ channel.Channel = (*Channel)(nil)
var _ channel.Session = (*session)(nil)

const (
	defaultModel      = "gpt-4o-realtime-preview"
	defaultBaseURL    = "wss://api.openai.com/v1/realtime"
	defaultSampleRate = 24000
)

// defaultSleepPhrases are matched against the agent's accumulated response
// transcript to derive a sleep directive when the config supplies none.
var defaultSleepPhrases = []string{"go to sleep", "going to sleep"}

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Channel.
type Option func(*Channel)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(c *Channel) { c.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(c *Channel) { c.baseURL = url }
}

// ── Channel ────────────────────────────────────────────────────────────────────

// Channel implements channel.Channel for OpenAI's Realtime API.
type Channel struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new OpenAI Realtime Channel with the given API key and options.
func New(apiKey string, opts ...Option) *Channel {
	c := &Channel{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect establishes a new Realtime session with the given configuration.
// The returned Session is ready to accept audio immediately after the
// session.update message is sent.
func (c *Channel) Connect(ctx context.Context, cfg channel.SessionConfig) (channel.Session, error) {
	wsURL := fmt.Sprintf("%s?model=%s", c.baseURL, c.model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + c.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai channel: dial: %w", err)
	}

	sleepPhrases := cfg.SleepPhrases
	if len(sleepPhrases) == 0 {
		sleepPhrases = defaultSleepPhrases
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:         conn,
		events:       make(chan channel.Event, 64),
		sleepPhrases: sleepPhrases,
		ctx:          sessCtx,
		cancel:       sessCancel,
	}

	if err := sess.sendSessionUpdate(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai channel: session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice             string    `json:"voice,omitempty"`
	Instructions      string    `json:"instructions,omitempty"`
	Tools             []oaiTool `json:"tools,omitempty"`
	InputAudioFormat  string    `json:"input_audio_format"`
	OutputAudioFormat string    `json:"output_audio_format"`
}

type oaiTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}

// serverErrorDetail represents the nested error object in a Realtime error
// event: {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// serverSessionDetail carries the remote session identifier from a
// session.created event.
type serverSessionDetail struct {
	ID string `json:"id"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// response.function_call_arguments.done
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	// session.created
	Session *serverSessionDetail `json:"session,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn         *websocket.Conn
	events       chan channel.Event
	sleepPhrases []string

	mu       sync.Mutex
	errVal   error
	closed   bool
	sleeping bool

	// currentTxText accumulates response.audio_transcript.delta events for the
	// in-flight response; sleepSignalled suppresses duplicate directives from
	// subsequent deltas of the same response.
	currentTxText  string
	sleepSignalled bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionUpdate sends a session.update event to configure voice,
// instructions, tools and audio formats.
func (s *session) sendSessionUpdate(cfg channel.SessionConfig) error {
	params := sessionParams{
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
	}
	if cfg.Voice != "" {
		params.Voice = cfg.Voice
	}
	if cfg.Instructions != "" {
		params.Instructions = cfg.Instructions
	}
	if len(cfg.Tools) > 0 {
		params.Tools = toOAITools(cfg.Tools)
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai channel: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the WebSocket and dispatches them. It owns the
// events channel and closes it on exit.
func (s *session) receiveLoop() {
	defer s.closeEvents()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		s.handleServerEvent(&evt)
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "session.created":
		handle := ""
		if evt.Session != nil {
			handle = evt.Session.ID
		}
		s.emit(channel.Event{Kind: channel.KindCreated, Handle: handle})

	case "input_audio_buffer.speech_started":
		s.emit(channel.Event{Kind: channel.KindSpeechStarted})

	case "input_audio_buffer.speech_stopped":
		s.emit(channel.Event{Kind: channel.KindSpeechStopped})

	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		audioData, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(audioData) == 0 {
			return
		}
		s.emit(channel.Event{Kind: channel.KindAudioDelta, Audio: audioData})

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.handleTranscriptDelta(evt.Delta)

	case "response.audio_transcript.done":
		s.mu.Lock()
		s.currentTxText = ""
		s.sleepSignalled = false
		s.mu.Unlock()

	case "response.function_call_arguments.done":
		s.emit(channel.Event{
			Kind:   channel.KindToolCall,
			CallID: evt.CallID,
			Name:   evt.Name,
			Args:   evt.Arguments,
		})

	case "error":
		code, msg := "unknown", "unknown error"
		if evt.Error != nil {
			if evt.Error.Code != "" {
				code = evt.Error.Code
			} else if evt.Error.Type != "" {
				code = evt.Error.Type
			}
			if evt.Error.Message != "" {
				msg = evt.Error.Message
			}
		}
		s.emit(channel.Event{Kind: channel.KindError, Code: code, Message: msg})
	}
}

// handleTranscriptDelta accumulates the agent's response transcript, emits the
// delta, and derives a sleep directive once the accumulated text contains a
// sleep phrase.
func (s *session) handleTranscriptDelta(delta string) {
	s.mu.Lock()
	s.currentTxText += delta
	text := strings.ToLower(s.currentTxText)
	signalled := s.sleepSignalled
	s.mu.Unlock()

	s.emit(channel.Event{Kind: channel.KindTranscriptDelta, Text: delta})

	if signalled {
		return
	}
	for _, phrase := range s.sleepPhrases {
		if strings.Contains(text, phrase) {
			s.mu.Lock()
			s.sleepSignalled = true
			s.mu.Unlock()
			s.emit(channel.Event{Kind: channel.KindSleepDirective, Sleeping: true})
			return
		}
	}
}

// emit delivers an event to the consumer unless the session context is done.
func (s *session) emit(evt channel.Event) {
	select {
	case s.events <- evt:
	case <-s.ctx.Done():
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeEvents() {
	s.closeOnce.Do(func() {
		close(s.events)
	})
}

// toOAITools converts channel.ToolDefinition values to the Realtime tool
// format.
func toOAITools(tools []channel.ToolDefinition) []oaiTool {
	out := make([]oaiTool, len(tools))
	for i, t := range tools {
		out[i] = oaiTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
	}
	return out
}

// ── Session methods ────────────────────────────────────────────────────────────

// SendAudio delivers a raw PCM16 audio chunk to the agent. While sleeping the
// chunk is discarded without touching the transport.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai channel: session closed")
	}
	if s.sleeping {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(chunk)
	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: encoded,
	})
}

// Events returns the channel on which session events arrive.
func (s *session) Events() <-chan channel.Event { return s.events }

// Err returns the first non-nil error that caused the session to terminate.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// RelayToolResult returns a tool result and triggers the next model response.
func (s *session) RelayToolResult(callID, output string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai channel: session closed")
	}
	s.mu.Unlock()

	if err := s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{"type": "response.create"})
}

// SetSleeping switches the sleep state. Entering sleep cancels any in-flight
// agent response so no further audio deltas arrive.
func (s *session) SetSleeping(sleeping bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai channel: session closed")
	}
	if s.sleeping == sleeping {
		s.mu.Unlock()
		return nil
	}
	s.sleeping = sleeping
	s.mu.Unlock()

	if sleeping {
		return s.writeJSON(map[string]string{"type": "response.cancel"})
	}
	return nil
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
