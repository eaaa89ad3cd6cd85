package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"layeh.com/gopus"

	"github.com/localbrain/voicecore/pkg/audio"
)

// Compile-time assertion.
var _ Producer = (*OpusProducer)(nil)

// OpusProducer decodes a stream of Opus packets into PCM frames. This is the
// fallback capture path, used when the raw PCM device stream is unavailable
// and audio instead arrives pre-encoded from a remote capture source (e.g. a
// browser or companion app).
//
// Each packet is decoded with a persistent decoder so inter-frame prediction
// state is maintained across consecutive packets.
type OpusProducer struct {
	packets    <-chan []byte
	sampleRate int
	frameSize  int // samples per packet at sampleRate

	mu      sync.Mutex
	dec     *gopus.Decoder
	frames  chan audio.Frame
	stop    chan struct{}
	stopped bool
}

// NewOpusProducer creates an OpusProducer reading packets from the given
// channel. sampleRate must match the rate the packets were encoded at;
// frameMs is the packet frame duration in milliseconds (typical: 20).
func NewOpusProducer(packets <-chan []byte, sampleRate, frameMs int) (*OpusProducer, error) {
	if packets == nil {
		return nil, errors.New("capture: packet channel must not be nil")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("capture: invalid sample rate %d", sampleRate)
	}
	if frameMs <= 0 {
		frameMs = 20
	}
	return &OpusProducer{
		packets:    packets,
		sampleRate: sampleRate,
		frameSize:  sampleRate * frameMs / 1000,
		frames:     make(chan audio.Frame, defaultFrameBuffer),
		stop:       make(chan struct{}),
	}, nil
}

// Start creates the Opus decoder and begins the decode loop. Returns an error
// if the decoder cannot be created for the configured format. Starting an
// already-running producer is a no-op.
func (p *OpusProducer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return errors.New("capture: producer already stopped")
	}
	if p.dec != nil {
		return nil
	}

	dec, err := gopus.NewDecoder(p.sampleRate, 1)
	if err != nil {
		return fmt.Errorf("capture: create opus decoder: %w", err)
	}
	p.dec = dec

	go p.decodeLoop(ctx, dec)
	return nil
}

// Frames returns the producer's frame channel. It is closed when the decode
// loop exits.
func (p *OpusProducer) Frames() <-chan audio.Frame { return p.frames }

// Stop terminates the decode loop and closes the frame channel. Idempotent.
func (p *OpusProducer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stop)
	return nil
}

// decodeLoop decodes packets until the input channel closes, Stop is called,
// or ctx is cancelled. It owns the frames channel and closes it on exit.
func (p *OpusProducer) decodeLoop(ctx context.Context, dec *gopus.Decoder) {
	defer close(p.frames)

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case packet, ok := <-p.packets:
			if !ok {
				return
			}
			pcm, err := dec.Decode(packet, p.frameSize, false)
			if err != nil {
				// A corrupt packet resets nothing: skip it and keep decoding.
				continue
			}
			frame := audio.Frame{
				Data:       int16sToBytes(pcm),
				SampleRate: p.sampleRate,
				Channels:   1,
				Timestamp:  time.Since(start),
			}
			deliver(p.frames, frame)
		}
	}
}

// int16sToBytes converts int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
