package transcribe

import "context"

// EngineRequest holds the audio and parameters for one inference call.
type EngineRequest struct {
	// Payload is the raw audio container bytes.
	Payload []byte
	// Format is the detected format tag (e.g. "wav", "mp3").
	Format string
	// Language is the optional language hint; empty means auto-detect.
	Language string
	// Temperature is the sampling temperature, 0.0-2.0.
	Temperature float64
}

// Result holds the raw transcription output.
type Result struct {
	// Text is the full transcription text.
	Text string
	// Language is the detected or requested language.
	Language string
	// Duration is the audio duration in seconds.
	Duration float64
	// Segments contains time-aligned transcript segments, in order.
	Segments []Segment
}

// Segment is a time-aligned portion of a transcript.
type Segment struct {
	ID               int     `json:"id"`
	Seek             int     `json:"seek"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	Tokens           []int   `json:"tokens"`
	Temperature      float64 `json:"temperature"`
	AvgLogprob       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
}

// Engine is one loaded instance of the transcription capability. An engine
// is exclusively owned by a single worker and is never called concurrently.
type Engine interface {
	// Transcribe runs inference on the given audio.
	Transcribe(ctx context.Context, req EngineRequest) (*Result, error)

	// Close releases the engine's resources.
	Close() error
}

// EngineFactory creates the engine owned by the worker with the given
// ordinal. Loading may be slow; it runs during pool initialization and a
// failure aborts startup.
type EngineFactory func(ctx context.Context, workerID int) (Engine, error)

// Prober confirms an upload's container is decodable and measures its
// duration in seconds. It is the validator's view of the decode capability.
type Prober interface {
	Probe(ctx context.Context, payload []byte, format string) (float64, error)
}
