// Package audio adapts microphone and speaker devices to the PCM16 stream
// exchanged with the voice pipeline.
package audio

import (
	"encoding/binary"
	"math"
)

// Frame is one fixed-size block of mono float samples in [-1, 1] at the
// device sample rate.
type Frame []float32

// FloatToInt16 converts float samples to int16, clamping out-of-range values.
func FloatToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * math.MaxInt16)
	}
	return out
}

// EncodePCM16 writes samples as little-endian 16-bit PCM.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodePCM16 reads little-endian 16-bit PCM. A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Level returns the RMS energy of a PCM16 chunk normalised to [0, 1].
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Duration reports how long a PCM16 mono buffer plays at rate.
func Duration(pcm []byte, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(len(pcm)/2) / float64(rate)
}
