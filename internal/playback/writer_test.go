package playback

import (
	"bytes"
	"context"
	"testing"
	"time"
)

type closeBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closeBuffer) Close() error {
	b.closed = true
	return nil
}

func TestWriterRenderer_WritesChunk(t *testing.T) {
	var buf closeBuffer
	r := NewWriterRenderer(&buf, 24000)

	chunk := []byte{1, 2, 3, 4}
	if err := r.Render(context.Background(), chunk); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), chunk) {
		t.Errorf("wrote %v, want %v", buf.Bytes(), chunk)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !buf.closed {
		t.Error("underlying writer was not closed")
	}
}

func TestWriterRenderer_CancelCutsPacingShort(t *testing.T) {
	var buf bytes.Buffer
	// 1 kHz: a 2000-sample chunk paces for two seconds unless cancelled.
	r := NewWriterRenderer(&buf, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := r.Render(ctx, make([]byte, 4000))
	if err == nil {
		t.Fatal("expected a context error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("render blocked %v despite cancellation", elapsed)
	}
	if buf.Len() != 4000 {
		t.Errorf("wrote %d bytes, want 4000 (write precedes pacing)", buf.Len())
	}
}
