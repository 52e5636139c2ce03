package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/youpy/go-wav"
)

const (
	DefaultSampleRate = 16000
	bitsPerSample     = 16
)

// IsWAVFile checks the RIFF/WAVE magic.
func IsWAVFile(data []byte) bool {
	return len(data) >= 44 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// EncodeWAV wraps mono s16le PCM in a RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	n := len(pcm) / 2
	samples := make([]wav.Sample, n)
	for i := 0; i < n; i++ {
		samples[i].Values[0] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(n), 1, uint32(sampleRate), bitsPerSample)
	if err := w.WriteSamples(samples); err != nil {
		return nil, fmt.Errorf("write wav samples: %w", err)
	}
	return buf.Bytes(), nil
}

// Format describes a decoded WAV stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DecodeWAV returns the first channel as s16le PCM plus the source format.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if !IsWAVFile(data) {
		return nil, Format{}, errors.New("not a wav container")
	}
	r := wav.NewReader(bytes.NewReader(data))
	f, err := r.Format()
	if err != nil {
		return nil, Format{}, fmt.Errorf("read wav format: %w", err)
	}
	format := Format{SampleRate: int(f.SampleRate), Channels: int(f.NumChannels), BitsPerSample: int(f.BitsPerSample)}
	if format.BitsPerSample != bitsPerSample {
		return nil, format, fmt.Errorf("unsupported bits per sample %d", format.BitsPerSample)
	}

	var pcm bytes.Buffer
	for {
		samples, err := r.ReadSamples()
		for _, s := range samples {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(int16(r.IntValue(s, 0))))
			pcm.Write(b[:])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, format, fmt.Errorf("read wav samples: %w", err)
		}
	}
	return pcm.Bytes(), format, nil
}
