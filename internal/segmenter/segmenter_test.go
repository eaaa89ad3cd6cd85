package segmenter

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/localbrain/voicecore/pkg/audio"
)

const (
	testRate    = 16000
	testFrameMs = 20
)

// frame builds a 20 ms mono frame of constant amplitude at 16 kHz. A constant
// amplitude a has RMS exactly a.
func frame(amplitude int16, ts time.Duration) audio.Frame {
	samples := testRate * testFrameMs / 1000
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amplitude))
	}
	return audio.Frame{Data: data, SampleRate: testRate, Channels: 1, Timestamp: ts}
}

func newTestSegmenter() *Segmenter {
	return New(Config{
		SilenceTimeout:    500 * time.Millisecond,
		Retention:         2 * time.Second,
		SilenceThreshold:  300,
		ActivityThreshold: 600,
		MinFrames:         3,
	})
}

// feed pushes n frames of the given amplitude, advancing timestamps by one
// frame duration each.
func feed(s *Segmenter, amplitude int16, n int, start time.Duration) time.Duration {
	ts := start
	for i := 0; i < n; i++ {
		s.Process(frame(amplitude, ts))
		ts += testFrameMs * time.Millisecond
	}
	return ts
}

func TestProcess_EmitsCandidateAboveActivity(t *testing.T) {
	s := newTestSegmenter()

	// 10 frames (200 ms) of loud audio: candidate conditions hold once more
	// than MinFrames are buffered.
	feed(s, 1000, 10, 0)

	select {
	case seg := <-s.Candidates():
		if seg.SampleRate != testRate {
			t.Errorf("sample rate = %d, want %d", seg.SampleRate, testRate)
		}
		if seg.Duration() < 80*time.Millisecond {
			t.Errorf("segment duration = %v, want at least 4 frames", seg.Duration())
		}
	default:
		t.Fatal("expected a candidate segment")
	}
}

func TestBuffered_TracksAndClears(t *testing.T) {
	s := newTestSegmenter()

	if got := s.Buffered(); got != 0 {
		t.Fatalf("fresh segmenter Buffered() = %v, want 0", got)
	}

	feed(s, 1000, 10, 0)
	if got := s.Buffered(); got != 200*time.Millisecond {
		t.Errorf("Buffered() after 10 frames = %v, want 200ms", got)
	}

	s.Clear()
	if got := s.Buffered(); got != 0 {
		t.Errorf("Buffered() after Clear = %v, want 0", got)
	}
}

func TestProcess_NoCandidateBelowActivity(t *testing.T) {
	s := newTestSegmenter()

	// Mid-level frames are buffered but never cross the activity threshold.
	feed(s, 400, 20, 0)

	select {
	case <-s.Candidates():
		t.Fatal("unexpected candidate below the activity threshold")
	default:
	}
	if len(s.frames) != 20 {
		t.Errorf("buffered frames = %d, want 20", len(s.frames))
	}
}

func TestProcess_NoCandidateBelowMinFrames(t *testing.T) {
	s := newTestSegmenter()

	feed(s, 1000, 3, 0)

	select {
	case <-s.Candidates():
		t.Fatal("unexpected candidate with only MinFrames buffered")
	default:
	}
}

func TestProcess_SilenceTimeoutClearsBuffer(t *testing.T) {
	s := newTestSegmenter()

	ts := feed(s, 400, 10, 0)

	// 24 silence frames = 480 ms: buffer survives.
	ts = feed(s, 0, 24, ts)
	if len(s.frames) == 0 {
		t.Fatal("buffer cleared before the silence timeout")
	}

	// One more frame crosses 500 ms.
	feed(s, 0, 1, ts)
	if len(s.frames) != 0 {
		t.Fatalf("buffered frames = %d after silence timeout, want 0", len(s.frames))
	}
	if got := s.Buffered(); got != 0 {
		t.Errorf("buffered duration = %v, want 0", got)
	}
}

func TestProcess_ActivityResetsSilenceTimer(t *testing.T) {
	s := newTestSegmenter()

	ts := feed(s, 400, 5, 0)
	ts = feed(s, 0, 20, ts) // 400 ms silence
	ts = feed(s, 400, 1, ts)
	feed(s, 0, 20, ts) // another 400 ms silence

	// Neither silence run reached 500 ms on its own.
	if len(s.frames) == 0 {
		t.Fatal("buffer cleared although the silence timer was reset")
	}
}

func TestProcess_SilenceBeforeSpeechIgnored(t *testing.T) {
	s := newTestSegmenter()

	feed(s, 0, 50, 0)

	if len(s.frames) != 0 {
		t.Errorf("buffered frames = %d for pure silence, want 0", len(s.frames))
	}
}

func TestProcess_RetentionBoundsBuffer(t *testing.T) {
	s := newTestSegmenter()

	// 3 s of mid-level audio against a 2 s retention window.
	feed(s, 400, 150, 0)

	if got := s.Buffered(); got > 2*time.Second {
		t.Errorf("buffered duration = %v, want at most 2s", got)
	}
	if len(s.frames) != 100 {
		t.Errorf("buffered frames = %d, want 100", len(s.frames))
	}
	// Oldest frames were evicted, so the first timestamp moved forward.
	if s.frames[0].Timestamp == 0 {
		t.Error("expected the oldest frame to be evicted")
	}
}

func TestProcess_NoiseSuppressionZeroesGapFrames(t *testing.T) {
	s := New(Config{
		SilenceTimeout:    500 * time.Millisecond,
		Retention:         2 * time.Second,
		SilenceThreshold:  300,
		ActivityThreshold: 600,
		MinFrames:         3,
		NoiseSuppression:  true,
	})

	ts := feed(s, 400, 5, 0)
	feed(s, 200, 2, ts) // sub-threshold gap inside a segment

	last := s.frames[len(s.frames)-1]
	if audio.RMS(last.Data) != 0 {
		t.Error("expected the gap frame to be zeroed under noise suppression")
	}
}

func TestLevel_TracksLatestFrame(t *testing.T) {
	s := newTestSegmenter()

	feed(s, 1000, 1, 0)
	if got := s.Level(); got < 999 || got > 1001 {
		t.Errorf("level = %.1f, want ~1000", got)
	}
	feed(s, 0, 1, testFrameMs*time.Millisecond)
	if got := s.Level(); got != 0 {
		t.Errorf("level = %.1f after silence, want 0", got)
	}
}

func TestClear_DiscardsEverything(t *testing.T) {
	s := newTestSegmenter()

	feed(s, 400, 10, 0)
	s.Clear()

	if len(s.frames) != 0 || s.Buffered() != 0 || s.silence != 0 {
		t.Error("Clear left residual state")
	}
}

func TestSegmentDuration(t *testing.T) {
	seg := Segment{PCM: make([]byte, 16000), SampleRate: 16000}
	if got := seg.Duration(); got != 500*time.Millisecond {
		t.Errorf("duration = %v, want 500ms", got)
	}
}
