package audio

import "time"

// Frame represents a single frame of captured audio flowing through the
// pipeline. Frames are the atomic unit of audio transport — produced by the
// capture device, scored by the segmenter, and streamed to the remote channel.
//
// A Frame is immutable once produced: exactly one pipeline stage owns it at a
// time and ownership transfers on handoff. Stages must not retain or mutate
// Data after passing a Frame on.
type Frame struct {
	// Data is little-endian 16-bit signed PCM.
	Data []byte

	// SampleRate in Hz (24000 for session audio, 16000 for wake probes).
	SampleRate int

	// Channels: 1 for mono. Stereo capture devices are downmixed before
	// frames enter the pipeline.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	// It is monotonic within one capture stream.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame's PCM data.
// Returns 0 for frames with an invalid format.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
