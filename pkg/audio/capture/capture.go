// Package capture provides the frame-producer abstraction between the audio
// input device and the rest of the voicecore pipeline.
//
// A [Producer] is a uniform source of [audio.Frame] values, regardless of how
// the bytes reach the process: a raw PCM stream from the platform capture
// utility (the preferred low-latency path) or an Opus packet stream from a
// remote capture source (the fallback path). [Select] performs the
// capability-selection step exactly once at startup so the controller only
// ever sees a single producer.
//
// Producers must never block on downstream consumers: when the frame channel
// is full the oldest frame is dropped, because stalling the hardware-clocked
// capture stream is worse than losing a frame.
package capture

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/localbrain/voicecore/internal/observe"
	"github.com/localbrain/voicecore/pkg/audio"
)

// defaultFrameBuffer is the capacity of a producer's frame channel. At 20 ms
// frames this holds a little over one second of audio.
const defaultFrameBuffer = 64

// Producer is a uniform source of capture frames.
//
// Start acquires the underlying device or stream and begins delivering frames;
// it returns an error if the device is unavailable or permission is denied
// (fatal to the current attempt — the caller surfaces it, no retry here).
// Starting a running producer is a no-op, so a producer chosen by [Select]
// (which already started it) can be handed to a consumer that calls Start
// itself. The Frames channel is closed when the producer stops, either via
// Stop or because the context given to Start was cancelled.
//
// Implementations must be safe for concurrent use of Stop against a running
// Start; Frames may be called at any time.
type Producer interface {
	Start(ctx context.Context) error
	Frames() <-chan audio.Frame
	Stop() error
}

// Select starts the preferred producer and falls back to the fallback
// producer if the preferred one cannot be started. The decision is made once;
// the returned producer is already running.
//
// Returns an error only if both producers fail to start.
func Select(ctx context.Context, preferred, fallback Producer) (Producer, error) {
	if err := preferred.Start(ctx); err == nil {
		return preferred, nil
	} else if fallback == nil {
		return nil, fmt.Errorf("capture: preferred producer failed and no fallback configured: %w", err)
	} else {
		slog.Warn("capture: preferred producer unavailable, trying fallback", "err", err)
	}

	if err := fallback.Start(ctx); err != nil {
		return nil, fmt.Errorf("capture: fallback producer failed: %w", err)
	}
	return fallback, nil
}

// deliver performs the non-blocking producer-side enqueue: if ch is full the
// oldest frame is discarded to make room. Shared by all producer
// implementations in this package.
func deliver(ch chan audio.Frame, frame audio.Frame) {
	select {
	case ch <- frame:
		return
	default:
	}
	// Full: drop the oldest frame, then retry once. A concurrent consumer may
	// have drained the channel in between, in which case the drop is a no-op.
	select {
	case <-ch:
		observe.DefaultMetrics().CaptureDrops.Add(context.Background(), 1)
	default:
	}
	select {
	case ch <- frame:
	default:
	}
}
