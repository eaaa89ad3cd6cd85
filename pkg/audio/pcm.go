// Package audio defines the frame type and PCM primitives shared by every
// stage of the voicecore pipeline.
//
// All wire audio is little-endian 16-bit signed PCM. The sample codec
// (EncodeSample / DecodeSample) is the single conversion point between the
// device's floating-point samples and wire PCM; every component must use it so
// that rounding and clamping stay bit-exact across buffer boundaries.
package audio

import (
	"encoding/binary"
	"math"
)

// EncodeSample converts a floating-point sample in [-1, 1] to a 16-bit PCM
// value. Out-of-range input is clamped, not an error. Positive samples scale
// by 32767 and negative samples by 32768, matching the asymmetric int16 range.
func EncodeSample(s float64) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s >= 0 {
		return int16(s * 32767)
	}
	return int16(s * 32768)
}

// DecodeSample converts a 16-bit PCM value back to a floating-point sample by
// dividing by 32768. The result is always within [-1, 1).
func DecodeSample(s int16) float64 {
	return float64(s) / 32768.0
}

// EncodePCM16 converts floating-point samples to little-endian 16-bit PCM
// bytes using EncodeSample for each value.
func EncodePCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(EncodeSample(s)))
	}
	return out
}

// DecodePCM16 converts little-endian 16-bit PCM bytes to floating-point
// samples using DecodeSample for each value. A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := range n {
		out[i] = DecodeSample(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// DecodePCM16Float32 converts little-endian 16-bit PCM bytes to normalized
// float32 samples using DecodeSample, the format local inference backends
// expect. A trailing odd byte is ignored.
func DecodePCM16Float32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		out[i] = float32(DecodeSample(int16(binary.LittleEndian.Uint16(pcm[i*2:]))))
	}
	return out
}

// RMS returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer, in PCM sample units (0–32767). Returns 0 for buffers shorter
// than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
