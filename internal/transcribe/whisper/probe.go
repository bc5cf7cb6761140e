package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/skillsenselab/whisper-server/internal/process"
)

// Prober is the validator's decode-and-measure capability: it confirms an
// upload's container is intact and reports its duration in seconds. WAV is
// parsed natively; everything else goes through ffprobe.
type Prober struct{}

// NewProber creates a prober.
func NewProber() *Prober { return &Prober{} }

// Probe returns the audio duration or an error describing why the container
// could not be decoded.
func (p *Prober) Probe(ctx context.Context, payload []byte, format string) (float64, error) {
	if format == "wav" {
		return wavDuration(payload)
	}
	return ffprobeDuration(ctx, payload, format)
}

// ffprobeDuration asks ffprobe for the container duration.
func ffprobeDuration(ctx context.Context, payload []byte, format string) (float64, error) {
	path, cleanup, err := stagePayload(payload, format)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	result, err := process.Run(ctx, process.Command{
		Binary: "ffprobe",
		Args: []string{
			"-v", "quiet",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			path,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("container is not decodable")
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(result.Stdout)), 64)
	if err != nil || duration <= 0 {
		return 0, fmt.Errorf("container has no measurable duration")
	}
	return duration, nil
}

// wavDuration walks the RIFF chunk list to the fmt and data chunks and
// derives the duration from the data size and byte rate.
func wavDuration(payload []byte) (float64, error) {
	if len(payload) < 12 || !bytes.Equal(payload[0:4], []byte("RIFF")) || !bytes.Equal(payload[8:12], []byte("WAVE")) {
		return 0, fmt.Errorf("invalid WAV file header")
	}

	var (
		byteRate uint32
		dataSize uint32
		foundFmt bool
	)

	offset := 12
	for offset+8 <= len(payload) {
		chunkID := string(payload[offset : offset+4])
		chunkSize := binary.LittleEndian.Uint32(payload[offset+4 : offset+8])
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || body+16 > len(payload) {
				return 0, fmt.Errorf("truncated WAV fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(payload[body+8 : body+12])
			foundFmt = true
		case "data":
			dataSize = chunkSize
			if remaining := len(payload) - body; remaining < int(chunkSize) {
				return 0, fmt.Errorf("truncated WAV data chunk")
			}
		}

		// Chunks are word-aligned.
		offset = body + int(chunkSize)
		if chunkSize%2 != 0 {
			offset++
		}
	}

	if !foundFmt || byteRate == 0 {
		return 0, fmt.Errorf("WAV fmt chunk missing")
	}
	if dataSize == 0 {
		return 0, fmt.Errorf("WAV data chunk missing or empty")
	}
	return float64(dataSize) / float64(byteRate), nil
}
