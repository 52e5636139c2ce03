package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Decoder turns container audio into mono s16le PCM at the target rate.
// An empty format asks the decoder to sniff the input.
type Decoder interface {
	Decode(ctx context.Context, data []byte, format string) ([]byte, error)
	DecodeFile(ctx context.Context, path, format string) ([]byte, error)
}

// FFmpegDecoder shells out to ffmpeg.
type FFmpegDecoder struct {
	Path       string
	SampleRate int
	Timeout    time.Duration
}

func NewFFmpegDecoder(path string, sampleRate int) *FFmpegDecoder {
	if path == "" {
		path = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &FFmpegDecoder{Path: path, SampleRate: sampleRate, Timeout: 60 * time.Second}
}

// Available reports whether the ffmpeg binary can be found.
func (d *FFmpegDecoder) Available() bool {
	_, err := exec.LookPath(d.Path)
	return err == nil
}

func (d *FFmpegDecoder) args(input, format string) []string {
	args := []string{"-v", "quiet", "-y"}
	if format != "" {
		args = append(args, "-f", format)
	}
	return append(args, "-i", input,
		"-acodec", "pcm_s16le", "-ac", "1", "-ar", strconv.Itoa(d.SampleRate), "-f", "s16le", "pipe:1")
}

func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte, format string) ([]byte, error) {
	return d.run(ctx, bytes.NewReader(data), d.args("pipe:0", format))
}

func (d *FFmpegDecoder) DecodeFile(ctx context.Context, path, format string) ([]byte, error) {
	return d.run(ctx, nil, d.args(path, format))
}

func (d *FFmpegDecoder) run(ctx context.Context, stdin *bytes.Reader, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Path, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("ffmpeg killed after %s", d.Timeout)
		}
		return nil, fmt.Errorf("ffmpeg: %w %s", err, stderr.String())
	}
	if out.Len() == 0 {
		return nil, errors.New("ffmpeg produced no audio")
	}
	return out.Bytes(), nil
}
