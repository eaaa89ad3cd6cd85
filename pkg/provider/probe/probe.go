// Package probe defines the Transcriber interface for wake-word probe
// transcription backends.
//
// Unlike a streaming STT session, a probe is a one-shot classification: the
// wake gate hands over a bounded PCM buffer (a candidate speech segment) and
// receives the recognised text, with no session state implied. Probes may be
// slow — they run off the capture path, so a sluggish backend never stalls
// audio ingestion.
//
// Implementations must be safe for concurrent use.
package probe

import "context"

// Transcriber converts a PCM byte buffer into recognised text.
type Transcriber interface {
	// Transcribe submits little-endian 16-bit mono PCM at the given sample
	// rate and returns the recognised text. An empty string with a nil error
	// means the backend heard nothing intelligible.
	//
	// The ctx deadline bounds the request; implementations must honour
	// cancellation.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}
