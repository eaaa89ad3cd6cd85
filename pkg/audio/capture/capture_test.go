package capture_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/localbrain/voicecore/pkg/audio/capture"
	"github.com/localbrain/voicecore/pkg/audio/capture/mock"
)

func TestSelect_PrefersFirstProducer(t *testing.T) {
	preferred := mock.New(4)
	fallback := mock.New(4)

	got, err := capture.Select(context.Background(), preferred, fallback)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != capture.Producer(preferred) {
		t.Error("expected the preferred producer to be selected")
	}
	if fallback.Started() {
		t.Error("fallback must not be started when preferred succeeds")
	}
}

func TestSelect_FallsBack(t *testing.T) {
	preferred := mock.New(4)
	preferred.StartErr = errors.New("device busy")
	fallback := mock.New(4)

	got, err := capture.Select(context.Background(), preferred, fallback)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != capture.Producer(fallback) {
		t.Error("expected the fallback producer to be selected")
	}
}

func TestSelect_BothFail(t *testing.T) {
	preferred := mock.New(4)
	preferred.StartErr = errors.New("device busy")
	fallback := mock.New(4)
	fallback.StartErr = errors.New("no source")

	if _, err := capture.Select(context.Background(), preferred, fallback); err == nil {
		t.Fatal("expected an error when both producers fail")
	}
}

func TestPCMProducer_ChopsFrames(t *testing.T) {
	// 16 kHz, 20 ms frames → 640 bytes per frame. Provide exactly 3 frames.
	const frameBytes = 16000 * 2 * 20 / 1000
	data := make([]byte, frameBytes*3)
	for i := range data {
		data[i] = byte(i)
	}

	p, err := capture.NewPCMProducer(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, 16000, 20)
	if err != nil {
		t.Fatalf("NewPCMProducer: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var n int
	timeout := time.After(2 * time.Second)
	for {
		select {
		case frame, ok := <-p.Frames():
			if !ok {
				if n != 3 {
					t.Fatalf("got %d frames, want 3", n)
				}
				return
			}
			if len(frame.Data) != frameBytes {
				t.Fatalf("frame %d has %d bytes, want %d", n, len(frame.Data), frameBytes)
			}
			if frame.SampleRate != 16000 || frame.Channels != 1 {
				t.Fatalf("frame format %d Hz %dch, want 16000 Hz mono", frame.SampleRate, frame.Channels)
			}
			n++
		case <-timeout:
			t.Fatal("timed out waiting for frames")
		}
	}
}

func TestSelect_NilFallback(t *testing.T) {
	preferred := mock.New(4)

	got, err := capture.Select(context.Background(), preferred, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != capture.Producer(preferred) {
		t.Error("expected the preferred producer to be selected")
	}

	preferred = mock.New(4)
	preferred.StartErr = errors.New("device busy")
	if _, err := capture.Select(context.Background(), preferred, nil); err == nil {
		t.Fatal("expected an error when preferred fails and no fallback is configured")
	}
}

func TestPCMProducer_StartIdempotent(t *testing.T) {
	const frameBytes = 16000 * 2 * 20 / 1000
	data := make([]byte, frameBytes*3)

	var opens int
	p, err := capture.NewPCMProducer(func() (io.ReadCloser, error) {
		opens++
		return io.NopCloser(bytes.NewReader(data)), nil
	}, 16000, 20)
	if err != nil {
		t.Fatalf("NewPCMProducer: %v", err)
	}

	// Select starts the chosen producer; the consumer calls Start again.
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if opens != 1 {
		t.Errorf("device opened %d times, want 1", opens)
	}

	var n int
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-p.Frames():
			if !ok {
				if n != 3 {
					t.Fatalf("got %d frames, want 3 (single read loop)", n)
				}
				return
			}
			n++
		case <-timeout:
			t.Fatal("timed out waiting for frames")
		}
	}
}

func TestPCMProducer_DownmixesStereo(t *testing.T) {
	// 16 kHz stereo, 20 ms frames → 1280 bytes in, 640 bytes of mono out.
	const monoBytes = 16000 * 2 * 20 / 1000
	data := make([]byte, monoBytes*2)
	for i := 0; i < len(data); i += 4 {
		binary.LittleEndian.PutUint16(data[i:], uint16(int16(1000)))   // left
		binary.LittleEndian.PutUint16(data[i+2:], uint16(int16(3000))) // right
	}

	p, err := capture.NewPCMProducer(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, 16000, 20, capture.WithChannels(2))
	if err != nil {
		t.Fatalf("NewPCMProducer: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case frame := <-p.Frames():
		if len(frame.Data) != monoBytes {
			t.Fatalf("frame has %d bytes, want %d after downmix", len(frame.Data), monoBytes)
		}
		if frame.Channels != 1 {
			t.Errorf("frame channels = %d, want mono", frame.Channels)
		}
		if got := int16(binary.LittleEndian.Uint16(frame.Data)); got != 2000 {
			t.Errorf("downmixed sample = %d, want the L/R average 2000", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
}

func TestPCMProducer_RejectsUnsupportedChannels(t *testing.T) {
	_, err := capture.NewPCMProducer(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}, 16000, 20, capture.WithChannels(6))
	if err == nil {
		t.Fatal("expected an error for a 6-channel stream")
	}
}

func TestPCMProducer_OpenError(t *testing.T) {
	p, err := capture.NewPCMProducer(func() (io.ReadCloser, error) {
		return nil, errors.New("permission denied")
	}, 16000, 20)
	if err != nil {
		t.Fatalf("NewPCMProducer: %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected Start to surface the device error")
	}
}

func TestOpusProducer_ClosesOnInputClose(t *testing.T) {
	packets := make(chan []byte)
	p, err := capture.NewOpusProducer(packets, 16000, 20)
	if err != nil {
		t.Fatalf("NewOpusProducer: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(packets)

	select {
	case _, ok := <-p.Frames():
		if ok {
			t.Fatal("expected frame channel to close without frames")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame channel did not close")
	}
}
