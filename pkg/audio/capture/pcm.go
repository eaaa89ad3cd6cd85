package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/localbrain/voicecore/pkg/audio"
)

// Compile-time assertion.
var _ Producer = (*PCMProducer)(nil)

// PCMProducer reads raw little-endian 16-bit PCM from a device stream and
// chops it into fixed-duration mono frames. This is the preferred low-latency
// capture path: the stream is typically a pipe from the platform capture
// utility or an in-process device binding. Stereo streams are downmixed
// before frames enter the pipeline.
type PCMProducer struct {
	open       func() (io.ReadCloser, error)
	sampleRate int
	frameMs    int
	channels   int

	mu     sync.Mutex
	rc     io.ReadCloser
	frames chan audio.Frame
	closed bool
}

// PCMOption is a functional option for configuring a PCMProducer.
type PCMOption func(*PCMProducer)

// WithChannels sets the channel count of the device stream. Stereo (2) input
// is downmixed to mono per frame. Defaults to mono (1).
func WithChannels(n int) PCMOption {
	return func(p *PCMProducer) { p.channels = n }
}

// NewPCMProducer creates a PCMProducer. open is called once from Start and
// must return a stream of raw PCM at sampleRate; an open failure is a device
// error and is surfaced from Start. frameMs is the frame duration in
// milliseconds (typical: 20).
func NewPCMProducer(open func() (io.ReadCloser, error), sampleRate, frameMs int, opts ...PCMOption) (*PCMProducer, error) {
	if open == nil {
		return nil, errors.New("capture: open func must not be nil")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("capture: invalid sample rate %d", sampleRate)
	}
	if frameMs <= 0 {
		frameMs = 20
	}
	p := &PCMProducer{
		open:       open,
		sampleRate: sampleRate,
		frameMs:    frameMs,
		channels:   1,
		frames:     make(chan audio.Frame, defaultFrameBuffer),
	}
	for _, o := range opts {
		o(p)
	}
	if p.channels != 1 && p.channels != 2 {
		return nil, fmt.Errorf("capture: unsupported channel count %d", p.channels)
	}
	return p, nil
}

// Start opens the device stream and begins the read loop. Returns an error if
// the stream cannot be opened (device unavailable, permission denied).
// Starting an already-running producer is a no-op.
func (p *PCMProducer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("capture: producer already stopped")
	}
	if p.rc != nil {
		return nil
	}

	rc, err := p.open()
	if err != nil {
		return fmt.Errorf("capture: open device stream: %w", err)
	}
	p.rc = rc

	go p.readLoop(ctx, rc)
	return nil
}

// Frames returns the producer's frame channel. It is closed when the read
// loop exits.
func (p *PCMProducer) Frames() <-chan audio.Frame { return p.frames }

// Stop closes the device stream, which terminates the read loop and closes
// the frame channel. Idempotent.
func (p *PCMProducer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.rc != nil {
		return p.rc.Close()
	}
	close(p.frames)
	return nil
}

// readLoop reads fixed-size PCM buffers and delivers them as frames until the
// stream ends or ctx is cancelled. It owns the frames channel and closes it
// on exit.
func (p *PCMProducer) readLoop(ctx context.Context, rc io.ReadCloser) {
	defer close(p.frames)

	frameBytes := p.sampleRate * 2 * p.channels * p.frameMs / 1000
	buf := make([]byte, frameBytes)
	start := time.Now()

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := io.ReadFull(rc, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.ErrClosedPipe) {
				slog.Warn("capture: device stream read error", "err", err)
			}
			return
		}

		data := append([]byte(nil), buf...)
		if p.channels == 2 {
			data = audio.StereoToMono(data)
		}

		frame := audio.Frame{
			Data:       data,
			SampleRate: p.sampleRate,
			Channels:   1,
			Timestamp:  time.Since(start),
		}
		deliver(p.frames, frame)
	}
}
