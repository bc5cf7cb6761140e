// Package whisper implements the transcription engine on sherpa-onnx
// offline whisper models, with ffmpeg handling container decoding.
package whisper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/skillsenselab/whisper-server/internal/logger"
	"github.com/skillsenselab/whisper-server/internal/transcribe"
)

// Whisper processes audio in windows of at most 30 seconds.
const chunkSeconds = 30

// Config holds configuration for the whisper engine.
type Config struct {
	// ModelDir is the directory holding encoder/decoder ONNX files and tokens.
	ModelDir string `yaml:"model_dir" mapstructure:"model_dir"`
	// Language is the default transcription language; empty auto-detects.
	Language string `yaml:"language" mapstructure:"language"`
	// NumThreads is the ONNX runtime thread count per engine.
	NumThreads int `yaml:"num_threads" mapstructure:"num_threads"`
	// SampleRate is the model input sample rate.
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// ApplyDefaults applies default values to whisper configuration.
func (c *Config) ApplyDefaults() {
	if c.NumThreads == 0 {
		c.NumThreads = 4
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
}

// Validate validates whisper configuration.
func (c *Config) Validate() error {
	if c.ModelDir == "" {
		return fmt.Errorf("whisper.model_dir is required")
	}
	return nil
}

// Engine wraps one sherpa-onnx offline recognizer. It is exclusively owned
// by a single pool worker and must not be shared.
type Engine struct {
	recognizer *sherpa.OfflineRecognizer
	cfg        Config
}

// NewEngine loads the whisper model from cfg.ModelDir. Loading is slow and
// memory-heavy; call it once per worker at startup.
func NewEngine(cfg Config) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	encoderPath := findModelFile(cfg.ModelDir, []string{
		"encoder.int8.onnx", "encoder.onnx",
		"large-v3-encoder.int8.onnx", "large-v3-encoder.onnx",
		"turbo-encoder.int8.onnx", "turbo-encoder.onnx",
	})
	decoderPath := findModelFile(cfg.ModelDir, []string{
		"decoder.int8.onnx", "decoder.onnx",
		"large-v3-decoder.int8.onnx", "large-v3-decoder.onnx",
		"turbo-decoder.int8.onnx", "turbo-decoder.onnx",
	})
	tokensPath := findModelFile(cfg.ModelDir, []string{
		"tokens.txt", "large-v3-tokens.txt",
	})

	if encoderPath == "" {
		return nil, fmt.Errorf("whisper: encoder model not found in %s", cfg.ModelDir)
	}
	if decoderPath == "" {
		return nil, fmt.Errorf("whisper: decoder model not found in %s", cfg.ModelDir)
	}
	if tokensPath == "" {
		return nil, fmt.Errorf("whisper: tokens file not found in %s", cfg.ModelDir)
	}

	sherpaConfig := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: cfg.SampleRate,
			FeatureDim: 80,
		},
		ModelConfig: sherpa.OfflineModelConfig{
			Whisper: sherpa.OfflineWhisperModelConfig{
				Encoder:  encoderPath,
				Decoder:  decoderPath,
				Language: cfg.Language,
				Task:     "transcribe",
			},
			Tokens:     tokensPath,
			NumThreads: cfg.NumThreads,
			Debug:      0,
		},
	}

	recognizer := sherpa.NewOfflineRecognizer(&sherpaConfig)
	if recognizer == nil {
		return nil, fmt.Errorf("whisper: failed to create recognizer from %s", cfg.ModelDir)
	}

	return &Engine{recognizer: recognizer, cfg: cfg}, nil
}

// Factory returns an EngineFactory loading one engine per worker.
func Factory(cfg Config, log *logger.Logger) transcribe.EngineFactory {
	wlog := log.WithComponent("whisper")
	return func(ctx context.Context, workerID int) (transcribe.Engine, error) {
		start := time.Now()
		engine, err := NewEngine(cfg)
		if err != nil {
			return nil, err
		}
		wlog.Info("Whisper model loaded", map[string]interface{}{
			logger.FieldWorkerID: workerID,
			"model_dir":          cfg.ModelDir,
			logger.FieldDuration: time.Since(start).Milliseconds(),
		})
		return engine, nil
	}
}

// Transcribe decodes the audio to PCM and runs it through the recognizer in
// 30-second windows, stitching the window results into one transcript.
func (e *Engine) Transcribe(ctx context.Context, req transcribe.EngineRequest) (*transcribe.Result, error) {
	samples, err := decodeToPCM(ctx, req.Payload, req.Format, e.cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return &transcribe.Result{Language: e.resultLanguage(req.Language)}, nil
	}

	chunkSamples := e.cfg.SampleRate * chunkSeconds
	var (
		text     strings.Builder
		segments []transcribe.Segment
	)

	for seek := 0; seek < len(samples); seek += chunkSamples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := seek + chunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		chunk := samples[seek:end]

		segText := e.decodeChunk(chunk)
		if segText == "" {
			continue
		}

		if text.Len() > 0 {
			text.WriteString(" ")
		}
		text.WriteString(segText)

		segments = append(segments, transcribe.Segment{
			ID:          len(segments),
			Seek:        seek / e.cfg.SampleRate,
			Start:       float64(seek) / float64(e.cfg.SampleRate),
			End:         float64(end) / float64(e.cfg.SampleRate),
			Text:        segText,
			Tokens:      []int{},
			Temperature: req.Temperature,
		})
	}

	return &transcribe.Result{
		Text:     text.String(),
		Language: e.resultLanguage(req.Language),
		Duration: float64(len(samples)) / float64(e.cfg.SampleRate),
		Segments: segments,
	}, nil
}

// decodeChunk runs one window through the recognizer.
func (e *Engine) decodeChunk(samples []float32) string {
	stream := sherpa.NewOfflineStream(e.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(e.cfg.SampleRate, samples)
	e.recognizer.Decode(stream)

	result := stream.GetResult()
	if result == nil {
		return ""
	}
	return strings.TrimSpace(result.Text)
}

func (e *Engine) resultLanguage(requested string) string {
	if requested != "" {
		return requested
	}
	return e.cfg.Language
}

// Close releases the recognizer.
func (e *Engine) Close() error {
	if e.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(e.recognizer)
		e.recognizer = nil
	}
	return nil
}

// findModelFile returns the first candidate that exists under dir.
func findModelFile(dir string, candidates []string) string {
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
