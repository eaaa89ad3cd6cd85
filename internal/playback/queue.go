// Package playback buffers decoded agent audio and renders it strictly in
// arrival order.
//
// A single dispatch goroutine owns the render loop, so at most one chunk is
// ever being rendered. The queue is bounded by a backlog ceiling: when the
// buffered duration exceeds it, the oldest unplayed chunk is dropped with a
// logged notice rather than stalling the receive path.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/localbrain/voicecore/internal/observe"
)

// Renderer plays one PCM chunk on the output device, returning once the
// device reports completion. Implementations must honour ctx cancellation so
// a close request can interrupt an in-flight render.
type Renderer interface {
	// Render plays a little-endian 16-bit mono PCM chunk to completion.
	Render(ctx context.Context, pcm []byte) error

	// Close releases the output device.
	Close() error
}

// Config holds queue tuning parameters.
type Config struct {
	// SampleRate is the PCM sample rate of enqueued chunks in Hz, used to
	// compute backlog duration. Defaults to 24000.
	SampleRate int

	// Ceiling bounds the buffered backlog duration. Defaults to 5 s.
	Ceiling time.Duration
}

// Queue is a strict-FIFO playback queue.
//
// All methods are safe for concurrent use. Callers must call Close when the
// queue is no longer needed; Close releases the renderer.
type Queue struct {
	renderer Renderer
	cfg      Config
	metrics  *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	chunks  [][]byte
	backlog time.Duration
	closed  bool

	wake chan struct{}
	errs chan error
	wg   sync.WaitGroup
}

// New creates a Queue rendering through r and starts the dispatch goroutine.
func New(r Renderer, cfg Config, metrics *observe.Metrics) *Queue {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 5 * time.Second
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		renderer: r,
		cfg:      cfg,
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		errs:     make(chan error, 1),
	}

	q.wg.Add(1)
	go q.dispatchLoop()
	return q
}

// Enqueue appends a chunk. If the backlog exceeds the ceiling, the oldest
// unplayed chunk is dropped and the drop is logged and counted. Enqueue never
// blocks.
func (q *Queue) Enqueue(pcm []byte) {
	if len(pcm) == 0 {
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.chunks = append(q.chunks, pcm)
	q.backlog += q.chunkDuration(pcm)

	for len(q.chunks) > 1 && q.backlog > q.cfg.Ceiling {
		dropped := q.chunks[0]
		q.chunks = q.chunks[1:]
		q.backlog -= q.chunkDuration(dropped)
		q.mu.Unlock()

		slog.Warn("playback: backlog ceiling exceeded, dropping oldest chunk",
			"dropped_bytes", len(dropped),
			"ceiling", q.cfg.Ceiling,
		)
		q.metrics.PlaybackDrops.Add(q.ctx, 1)

		q.mu.Lock()
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Flush drops all queued-but-unplayed chunks. An in-flight render finishes
// normally.
func (q *Queue) Flush() {
	q.mu.Lock()
	q.chunks = nil
	q.backlog = 0
	q.mu.Unlock()
}

// Backlog returns the buffered (unplayed) audio duration.
func (q *Queue) Backlog() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.backlog
}

// Errors returns a channel carrying the first render failure, if any. Device
// errors are fatal to the playback path; the consumer decides whether to tear
// the session down.
func (q *Queue) Errors() <-chan error { return q.errs }

// Close drops all queued chunks, interrupts any in-flight render, waits for
// the dispatch goroutine to exit, and releases the renderer. Idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.chunks = nil
	q.backlog = 0
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	return q.renderer.Close()
}

// dispatchLoop renders queued chunks one at a time until the queue closes.
func (q *Queue) dispatchLoop() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
		}

		for {
			q.mu.Lock()
			if q.closed || len(q.chunks) == 0 {
				q.mu.Unlock()
				break
			}
			chunk := q.chunks[0]
			q.chunks = q.chunks[1:]
			q.backlog -= q.chunkDuration(chunk)
			q.mu.Unlock()

			start := time.Now()
			err := q.renderer.Render(q.ctx, chunk)
			q.metrics.RenderDuration.Record(q.ctx, time.Since(start).Seconds())
			if err != nil {
				if errors.Is(err, context.Canceled) || q.ctx.Err() != nil {
					return
				}
				slog.Error("playback: render failed", "err", err)
				select {
				case q.errs <- err:
				default:
				}
				return
			}
		}
	}
}

// chunkDuration converts a PCM byte count to audio duration.
func (q *Queue) chunkDuration(pcm []byte) time.Duration {
	samples := len(pcm) / 2
	return time.Duration(samples) * time.Second / time.Duration(q.cfg.SampleRate)
}
