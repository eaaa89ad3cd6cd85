// Package segmenter accumulates capture frames into candidate speech
// segments using RMS energy scoring.
//
// The segmenter maintains a rolling buffer bounded by a retention window.
// Frames above the silence threshold are appended; sustained silence clears
// the buffer. Once a frame exceeds the stricter activity threshold and the
// buffer holds enough frames, a candidate segment is emitted for wake
// evaluation. All timing derives from frame durations, not wall-clock time,
// so behavior is deterministic under test.
package segmenter

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/localbrain/voicecore/pkg/audio"
)

// Config holds segmenter tuning parameters.
type Config struct {
	// SilenceTimeout clears the buffer after this much sustained silence.
	SilenceTimeout time.Duration

	// Retention bounds the rolling buffer duration.
	Retention time.Duration

	// SilenceThreshold is the RMS level below which a frame counts as silence.
	SilenceThreshold float64

	// ActivityThreshold is the RMS level above which a frame counts as speech.
	ActivityThreshold float64

	// MinFrames is the minimum number of buffered frames before a candidate is
	// emitted.
	MinFrames int

	// NoiseSuppression zeroes sub-threshold frames before buffering instead of
	// appending them verbatim, so trailing noise does not leak into the
	// candidate handed to the probe.
	NoiseSuppression bool
}

// Segment is a bounded span of buffered speech audio.
type Segment struct {
	// PCM is the concatenated little-endian 16-bit mono sample data.
	PCM []byte

	// SampleRate is the sample rate of PCM in Hz.
	SampleRate int

	// Start and End are the capture timestamps of the first and last frame.
	Start time.Duration
	End   time.Duration
}

// Duration returns the audio duration covered by the segment's PCM data.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	samples := len(s.PCM) / 2
	return time.Duration(samples) * time.Second / time.Duration(s.SampleRate)
}

// Segmenter scores frames and assembles candidate segments.
//
// Process and Clear must be called from a single goroutine (the
// capture-consuming path); Level, Buffered and Candidates are safe to use
// from any goroutine.
type Segmenter struct {
	cfg        Config
	candidates chan Segment

	// level holds the latest RMS as math.Float64bits, advisory only.
	level atomic.Uint64

	// buffered holds the buffered audio duration in nanoseconds, readable
	// from outside the processing goroutine.
	buffered atomic.Int64

	frames     []audio.Frame
	silence    time.Duration
	sampleRate int
}

// New creates a Segmenter with the given config. Zero-valued fields fall back
// to conservative defaults.
func New(cfg Config) *Segmenter {
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = 500 * time.Millisecond
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 2 * time.Second
	}
	if cfg.MinFrames <= 0 {
		cfg.MinFrames = 3
	}
	if cfg.ActivityThreshold < cfg.SilenceThreshold {
		cfg.ActivityThreshold = cfg.SilenceThreshold
	}
	return &Segmenter{
		cfg:        cfg,
		candidates: make(chan Segment, 4),
	}
}

// Candidates returns the channel on which candidate segments are emitted.
// Emission is non-blocking; a candidate is dropped if the consumer lags, which
// is safe because the next active frame re-emits a superset.
func (s *Segmenter) Candidates() <-chan Segment { return s.candidates }

// Level returns the most recent frame RMS, for advisory display only.
func (s *Segmenter) Level() float64 {
	return math.Float64frombits(s.level.Load())
}

// Buffered returns the duration of audio currently held in the rolling
// buffer.
func (s *Segmenter) Buffered() time.Duration {
	return time.Duration(s.buffered.Load())
}

// Clear discards all buffered audio and resets the silence timer.
func (s *Segmenter) Clear() {
	s.frames = nil
	s.buffered.Store(0)
	s.silence = 0
}

// Process scores one frame and updates the rolling buffer. It never blocks.
func (s *Segmenter) Process(frame audio.Frame) {
	rms := audio.RMS(frame.Data)
	s.level.Store(math.Float64bits(rms))
	s.sampleRate = frame.SampleRate

	if rms < s.cfg.SilenceThreshold {
		if len(s.frames) == 0 {
			return
		}
		// Silence continues an in-progress segment until the timeout clears it.
		s.silence += frame.Duration()
		if s.silence >= s.cfg.SilenceTimeout {
			s.Clear()
			return
		}
		if s.cfg.NoiseSuppression {
			frame.Data = make([]byte, len(frame.Data))
		}
		s.append(frame)
		return
	}

	s.silence = 0
	s.append(frame)

	if rms >= s.cfg.ActivityThreshold && len(s.frames) > s.cfg.MinFrames {
		s.emit()
	}
}

// append adds a frame and evicts the oldest frames beyond the retention
// window.
func (s *Segmenter) append(frame audio.Frame) {
	s.frames = append(s.frames, frame)
	s.buffered.Add(int64(frame.Duration()))

	for len(s.frames) > 0 && time.Duration(s.buffered.Load()) > s.cfg.Retention {
		s.buffered.Add(-int64(s.frames[0].Duration()))
		s.frames = s.frames[1:]
	}
}

// emit assembles the buffered frames into a Segment and offers it to the
// candidate channel without blocking.
func (s *Segmenter) emit() {
	var size int
	for _, f := range s.frames {
		size += len(f.Data)
	}
	pcm := make([]byte, 0, size)
	for _, f := range s.frames {
		pcm = append(pcm, f.Data...)
	}

	seg := Segment{
		PCM:        pcm,
		SampleRate: s.sampleRate,
		Start:      s.frames[0].Timestamp,
		End:        s.frames[len(s.frames)-1].Timestamp,
	}

	select {
	case s.candidates <- seg:
	default:
	}
}
