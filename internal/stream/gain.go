package stream

import (
	"encoding/binary"
	"math"
)

// ApplyGain scales interleaved s16le samples in place, clipping at the
// int16 range. A gain of 1 leaves pcm untouched.
func ApplyGain(pcm []byte, gain float64) {
	if gain == 1 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) * gain
		v = math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v)))
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(v)))
	}
}
