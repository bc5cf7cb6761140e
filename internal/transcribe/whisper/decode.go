package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"

	"github.com/skillsenselab/whisper-server/internal/apierr"
	"github.com/skillsenselab/whisper-server/internal/process"
)

// decodeToPCM converts an audio container to mono float32 PCM at the given
// sample rate by shelling out to ffmpeg. The payload is staged in a temp
// file because some containers (mp4/m4a) are not pipe-seekable.
func decodeToPCM(ctx context.Context, payload []byte, format string, sampleRate int) ([]float32, error) {
	path, cleanup, err := stagePayload(payload, format)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, err := process.Run(ctx, process.Command{
		Binary: "ffmpeg",
		Args: []string{
			"-i", path,
			"-f", "s16le",
			"-acodec", "pcm_s16le",
			"-ar", fmt.Sprintf("%d", sampleRate),
			"-ac", "1",
			"-loglevel", "error",
			"pipe:1",
		},
	})
	if err != nil {
		return nil, classifyDecodeError(ctx, result, err)
	}

	return bytesToFloat32(result.Stdout), nil
}

// classifyDecodeError separates corrupt input from infrastructure failure.
// A decoder that ran and refused the stream means the upload is bad even
// though it looked intact at admission time; a missing binary or a canceled
// context is the server's problem and stays unclassified.
func classifyDecodeError(ctx context.Context, result *process.Result, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("ffmpeg decode interrupted: %w", err)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	reason := "stream is not decodable"
	if result != nil && len(result.Stderr) > 0 {
		reason = firstLine(result.Stderr)
	}
	return apierr.InvalidAudioFile(reason)
}

// stagePayload writes the payload to a temp file with the right extension
// and returns its path with a cleanup func.
func stagePayload(payload []byte, format string) (string, func(), error) {
	pattern := "upload-*"
	if format != "" {
		pattern += "." + format
	}
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("staging audio: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := f.Write(payload); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("staging audio: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("staging audio: %w", err)
	}
	return path, cleanup, nil
}

// bytesToFloat32 converts little-endian signed 16-bit PCM to normalized
// float32 samples.
func bytesToFloat32(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		samples[i] = float32(v) / float32(math.MaxInt16)
	}
	return samples
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}
