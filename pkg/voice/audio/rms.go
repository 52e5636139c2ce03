package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"strings"
)

// RMS of little-endian int16 samples normalised to [0,1].
// An odd trailing byte is ignored; fewer than two bytes yields 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// EstimateDuration uses a fixed byte rate, which is only an estimate for
// compressed containers.
func EstimateDuration(size, bytesPerSecond int) float64 {
	if bytesPerSecond <= 0 {
		return 0
	}
	return float64(size) / float64(bytesPerSecond)
}

// IsValidAudio reports whether data is at least minSeconds long at the
// given byte rate.
func IsValidAudio(data []byte, minSeconds float64, bytesPerSecond int) bool {
	return len(data) >= int(minSeconds*float64(bytesPerSecond))
}

// DecodeBase64 accepts standard and data-url prefixed payloads.
func DecodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 {
		s = s[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(s)
}

func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
