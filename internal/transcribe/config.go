package transcribe

import (
	"fmt"
	"time"
)

// Config holds the admission and validation limits for the core.
type Config struct {
	// Workers is the fixed worker pool size.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// MaxConcurrent is the admission gate capacity. Defaults to Workers;
	// configuring it above Workers turns the pool dispatch wait into an
	// implicit queue, so keep them equal unless you know better.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	// MaxFileSize is the upload size limit in bytes.
	MaxFileSize int64 `yaml:"max_file_size" mapstructure:"max_file_size"`
	// MaxDuration is the audio duration limit in seconds.
	MaxDuration float64 `yaml:"max_duration" mapstructure:"max_duration"`
	// AllowedFormats is the format allow-set.
	AllowedFormats []string `yaml:"allowed_formats" mapstructure:"allowed_formats"`
	// Model is the default model identifier reported in responses.
	Model string `yaml:"model" mapstructure:"model"`
	// Timeout is the per-job wall-clock limit. Zero disables it.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// DumpAudioDir, when set, persists uploads there before processing.
	DumpAudioDir string `yaml:"dump_audio_dir" mapstructure:"dump_audio_dir"`
}

// ApplyDefaults applies default values mirroring the upstream API limits.
func (c *Config) ApplyDefaults() {
	if c.Workers == 0 {
		c.Workers = 2
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = c.Workers
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = 25 * 1024 * 1024
	}
	if c.MaxDuration == 0 {
		c.MaxDuration = 1500
	}
	if len(c.AllowedFormats) == 0 {
		c.AllowedFormats = []string{"mp3", "wav", "m4a", "mp4", "mpeg", "webm", "flac", "ogg"}
	}
	if c.Model == "" {
		c.Model = "whisper-large-v3"
	}
}

// Validate validates the core configuration.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("transcription.workers must be positive (got: %d)", c.Workers)
	}
	if c.MaxConcurrent < c.Workers {
		return fmt.Errorf("transcription.max_concurrent must be >= workers (got: %d < %d)", c.MaxConcurrent, c.Workers)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("transcription.max_file_size must be positive (got: %d)", c.MaxFileSize)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("transcription.max_duration must be positive (got: %f)", c.MaxDuration)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("transcription.timeout must not be negative (got: %s)", c.Timeout)
	}
	return nil
}
