// Package channel defines the Channel interface for remote conversational
// agent backends.
//
// A channel wraps a real-time agent service that accepts streamed audio input
// and returns synthesised audio output in a single, stateful session. The
// central abstraction is Session: a bidirectional, multiplexed event stream
// carrying audio deltas, transcripts, speech boundaries, sleep directives and
// tool calls. Sessions are long-lived (seconds to minutes).
//
// All implementations must be safe for concurrent use.
package channel

import "context"

// EventKind discriminates the Event union.
type EventKind int

const (
	// KindCreated is emitted once the remote agent acknowledges the session.
	// Event.Handle carries the remote session identifier.
	KindCreated EventKind = iota

	// KindSpeechStarted signals the agent detected the start of user speech.
	KindSpeechStarted

	// KindSpeechStopped signals the agent detected the end of user speech.
	KindSpeechStopped

	// KindAudioDelta carries a chunk of synthesised agent audio in Event.Audio
	// (little-endian 16-bit mono PCM at the negotiated session rate).
	KindAudioDelta

	// KindTranscriptDelta carries an incremental piece of the agent's spoken
	// response text in Event.Text.
	KindTranscriptDelta

	// KindSleepDirective signals the agent asked the session to sleep or wake.
	// Event.Sleeping is the requested state.
	KindSleepDirective

	// KindToolCall signals the agent requested a collaborator tool invocation.
	// Event.CallID, Event.Name and Event.Args identify the call; the result
	// must be returned via Session.RelayToolResult.
	KindToolCall

	// KindError carries a non-fatal error reported by the remote agent in
	// Event.Code and Event.Message. Fatal transport errors close the Events
	// channel instead; see Session.Err.
	KindError
)

// String returns the lowercase name of the event kind.
func (k EventKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindSpeechStarted:
		return "speech_started"
	case KindSpeechStopped:
		return "speech_stopped"
	case KindAudioDelta:
		return "audio_delta"
	case KindTranscriptDelta:
		return "transcript_delta"
	case KindSleepDirective:
		return "sleep_directive"
	case KindToolCall:
		return "tool_call"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single occurrence on the session's event stream. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// Handle is the remote session identifier (KindCreated).
	Handle string

	// Audio is a synthesised PCM chunk (KindAudioDelta).
	Audio []byte

	// Text is an incremental transcript piece (KindTranscriptDelta).
	Text string

	// Sleeping is the requested sleep state (KindSleepDirective).
	Sleeping bool

	// CallID, Name and Args describe a tool invocation (KindToolCall).
	CallID string
	Name   string
	Args   string

	// Code and Message describe a remote error (KindError).
	Code    string
	Message string
}

// ToolDefinition describes a collaborator tool offered to the agent. The
// controller treats definitions as opaque; they originate from the tool relay.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// SessionConfig is the initial configuration for a new session.
type SessionConfig struct {
	// Voice selects the agent's synthesised voice. Empty means the backend
	// default.
	Voice string

	// Instructions is the system-level prompt defining the agent's behaviour.
	Instructions string

	// SampleRate is the PCM sample rate for both directions, in Hz. Zero means
	// the backend default (24000 for the OpenAI Realtime implementation).
	SampleRate int

	// Tools is the set of tool definitions offered to the agent.
	Tools []ToolDefinition

	// SleepPhrases are lowercase phrases that, when spoken by the agent,
	// trigger a KindSleepDirective event. Empty means the implementation
	// default.
	SleepPhrases []string
}

// Session represents an open agent session.
//
// The session is the hot path of the voice pipeline — every method must
// return quickly. Events are channel-based to avoid blocking the caller's
// audio thread. All methods must be safe for concurrent use.
//
// Callers must call Close when the session is no longer needed.
type Session interface {
	// SendAudio delivers a raw PCM16 audio chunk to the agent. While the
	// session is sleeping the chunk is silently discarded. Returns an error if
	// the session is closed or the transport rejects the write.
	SendAudio(chunk []byte) error

	// Events returns the read-only event stream. The channel is closed when
	// the session ends or a fatal transport error occurs; check Err afterwards.
	// Consumers must drain this channel promptly.
	Events() <-chan Event

	// RelayToolResult returns the opaque output of a tool invocation that was
	// surfaced via a KindToolCall event, identified by its call ID.
	RelayToolResult(callID, output string) error

	// SetSleeping switches the session's sleep state. While sleeping, incoming
	// audio is discarded and any in-flight agent response is cancelled.
	SetSleeping(sleeping bool) error

	// Err returns the error that caused the Events channel to close
	// prematurely, or nil if the session ended cleanly.
	Err() error

	// Close terminates the session, releases all resources, and closes the
	// Events channel. Calling Close more than once is safe and returns nil.
	Close() error
}

// Channel is the abstraction over any remote agent backend.
type Channel interface {
	// Connect establishes a new session with the given configuration. The
	// returned Session is ready to accept audio immediately. The caller owns
	// the Session and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
