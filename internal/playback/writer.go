package playback

import (
	"context"
	"fmt"
	"io"
	"time"
)

// WriterRenderer renders PCM by writing it to an io.Writer, paced to real
// time so the queue's backlog accounting reflects actual playback. It suits
// piping into an external player (e.g. aplay reading stdin) or a FIFO backed
// by a sound daemon.
type WriterRenderer struct {
	w          io.Writer
	sampleRate int
}

var _ Renderer = (*WriterRenderer)(nil)

// NewWriterRenderer wraps w as a paced PCM sink at the given sample rate.
func NewWriterRenderer(w io.Writer, sampleRate int) *WriterRenderer {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &WriterRenderer{w: w, sampleRate: sampleRate}
}

// Render writes the chunk and then sleeps out its playback duration, so the
// call returns roughly when a real device would finish. Cancelling ctx cuts
// the pacing sleep short.
func (r *WriterRenderer) Render(ctx context.Context, pcm []byte) error {
	start := time.Now()
	if _, err := r.w.Write(pcm); err != nil {
		return fmt.Errorf("playback: write pcm: %w", err)
	}

	samples := len(pcm) / 2
	playTime := time.Duration(samples) * time.Second / time.Duration(r.sampleRate)
	remaining := playTime - time.Since(start)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the underlying writer when it is closeable.
func (r *WriterRenderer) Close() error {
	if c, ok := r.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
