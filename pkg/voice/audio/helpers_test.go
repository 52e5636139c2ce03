package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// generateSilence returns duration of zero samples as s16le
func generateSilence(duration time.Duration, sampleRate int) []byte {
	n := int(duration.Seconds() * float64(sampleRate))
	return make([]byte, n*2)
}

// generateTone returns a sine wave as s16le, amplitude in [0,1]
func generateTone(duration time.Duration, sampleRate int, freq, amplitude float64) []byte {
	n := int(duration.Seconds() * float64(sampleRate))
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}
