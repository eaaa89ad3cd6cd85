package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/localbrain/voicecore/pkg/provider/channel"
)

// newTestSession builds a session with the receive loop replaced by direct
// event injection via dispatch.
func newTestSession(t *testing.T) (*session, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		events:       make(chan channel.Event, 64),
		sleepPhrases: defaultSleepPhrases,
		ctx:          ctx,
		cancel:       cancel,
	}, cancel
}

// dispatch unmarshals a raw server frame and runs it through the event
// handler, the same path receiveLoop takes.
func dispatch(t *testing.T, s *session, raw string) {
	t.Helper()
	var evt serverEvent
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	s.handleServerEvent(&evt)
}

func next(t *testing.T, s *session) channel.Event {
	t.Helper()
	select {
	case evt := <-s.events:
		return evt
	default:
		t.Fatal("expected a pending event")
		return channel.Event{}
	}
}

func TestHandleServerEvent_SessionCreated(t *testing.T) {
	s, cancel := newTestSession(t)
	defer cancel()

	dispatch(t, s, `{"type":"session.created","session":{"id":"sess_123"}}`)

	evt := next(t, s)
	if evt.Kind != channel.KindCreated {
		t.Fatalf("kind = %v, want created", evt.Kind)
	}
	if evt.Handle != "sess_123" {
		t.Errorf("handle = %q, want sess_123", evt.Handle)
	}
}

func TestHandleServerEvent_SpeechBoundaries(t *testing.T) {
	s, cancel := newTestSession(t)
	defer cancel()

	dispatch(t, s, `{"type":"input_audio_buffer.speech_started"}`)
	dispatch(t, s, `{"type":"input_audio_buffer.speech_stopped"}`)

	if evt := next(t, s); evt.Kind != channel.KindSpeechStarted {
		t.Errorf("first kind = %v, want speech_started", evt.Kind)
	}
	if evt := next(t, s); evt.Kind != channel.KindSpeechStopped {
		t.Errorf("second kind = %v, want speech_stopped", evt.Kind)
	}
}

func TestHandleServerEvent_AudioDelta(t *testing.T) {
	s, cancel := newTestSession(t)
	defer cancel()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	raw, _ := json.Marshal(map[string]string{
		"type":  "response.audio.delta",
		"delta": base64.StdEncoding.EncodeToString(pcm),
	})
	dispatch(t, s, string(raw))

	evt := next(t, s)
	if evt.Kind != channel.KindAudioDelta {
		t.Fatalf("kind = %v, want audio_delta", evt.Kind)
	}
	if string(evt.Audio) != string(pcm) {
		t.Errorf("audio = %v, want %v", evt.Audio, pcm)
	}
}

func TestHandleServerEvent_InvalidAudioDeltaIgnored(t *testing.T) {
	s, cancel := newTestSession(t)
	defer cancel()

	dispatch(t, s, `{"type":"response.audio.delta","delta":"not-base64!!!"}`)

	select {
	case evt := <-s.events:
		t.Fatalf("unexpected event %v for invalid base64", evt.Kind)
	default:
	}
}

func TestHandleServerEvent_SleepDirectiveFromTranscript(t *testing.T) {
	s, cancel := newTestSession(t)
	defer cancel()

	dispatch(t, s, `{"type":"response.audio_transcript.delta","delta":"Alright, going "}`)
	dispatch(t, s, `{"type":"response.audio_transcript.delta","delta":"to sleep now."}`)

	if evt := next(t, s); evt.Kind != channel.KindTranscriptDelta {
		t.Fatalf("first kind = %v, want transcript_delta", evt.Kind)
	}
	if evt := next(t, s); evt.Kind != channel.KindTranscriptDelta {
		t.Fatalf("second kind = %v, want transcript_delta", evt.Kind)
	}

	evt := next(t, s)
	if evt.Kind != channel.KindSleepDirective {
		t.Fatalf("kind = %v, want sleep_directive", evt.Kind)
	}
	if !evt.Sleeping {
		t.Error("sleeping = false, want true")
	}

	// Further deltas of the same response must not re-signal.
	dispatch(t, s, `{"type":"response.audio_transcript.delta","delta":" Good night."}`)
	if evt := next(t, s); evt.Kind != channel.KindTranscriptDelta {
		t.Fatalf("kind = %v, want transcript_delta", evt.Kind)
	}
	select {
	case evt := <-s.events:
		t.Fatalf("unexpected extra event %v after sleep already signalled", evt.Kind)
	default:
	}
}

func TestHandleServerEvent_TranscriptDoneResetsAccumulator(t *testing.T) {
	s, cancel := newTestSession(t)
	defer cancel()

	dispatch(t, s, `{"type":"response.audio_transcript.delta","delta":"go to"}`)
	dispatch(t, s, `{"type":"response.audio_transcript.done"}`)
	dispatch(t, s, `{"type":"response.audio_transcript.delta","delta":" sleep"}`)

	var directives int
	for {
		select {
		case evt := <-s.events:
			if evt.Kind == channel.KindSleepDirective {
				directives++
			}
			continue
		default:
		}
		break
	}
	if directives != 0 {
		t.Errorf("got %d sleep directives across response boundary, want 0", directives)
	}
}

func TestHandleServerEvent_ToolCall(t *testing.T) {
	s, cancel := newTestSession(t)
	defer cancel()

	dispatch(t, s, `{"type":"response.function_call_arguments.done","call_id":"call_7","name":"lookup","arguments":"{\"q\":\"weather\"}"}`)

	evt := next(t, s)
	if evt.Kind != channel.KindToolCall {
		t.Fatalf("kind = %v, want tool_call", evt.Kind)
	}
	if evt.CallID != "call_7" || evt.Name != "lookup" {
		t.Errorf("call = (%q, %q), want (call_7, lookup)", evt.CallID, evt.Name)
	}
	if evt.Args != `{"q":"weather"}` {
		t.Errorf("args = %q", evt.Args)
	}
}

func TestHandleServerEvent_Error(t *testing.T) {
	s, cancel := newTestSession(t)
	defer cancel()

	dispatch(t, s, `{"type":"error","error":{"type":"invalid_request_error","code":"bad_audio","message":"unsupported format"}}`)

	evt := next(t, s)
	if evt.Kind != channel.KindError {
		t.Fatalf("kind = %v, want error", evt.Kind)
	}
	if evt.Code != "bad_audio" {
		t.Errorf("code = %q, want bad_audio", evt.Code)
	}
	if evt.Message != "unsupported format" {
		t.Errorf("message = %q", evt.Message)
	}
}

func TestHandleServerEvent_UnknownTypeIgnored(t *testing.T) {
	s, cancel := newTestSession(t)
	defer cancel()

	dispatch(t, s, `{"type":"rate_limits.updated"}`)

	select {
	case evt := <-s.events:
		t.Fatalf("unexpected event %v for unknown type", evt.Kind)
	default:
	}
}
