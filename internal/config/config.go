package config

import (
	"fmt"

	"github.com/skillsenselab/whisper-server/internal/logger"
	"github.com/skillsenselab/whisper-server/internal/metrics"
	"github.com/skillsenselab/whisper-server/internal/server"
	"github.com/skillsenselab/whisper-server/internal/transcribe"
	"github.com/skillsenselab/whisper-server/internal/transcribe/whisper"
)

// Config is the full service configuration.
type Config struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Debug       bool   `mapstructure:"debug"`

	Logging       logger.Config     `mapstructure:"logging"`
	Server        server.Config     `mapstructure:"server"`
	Transcription transcribe.Config `mapstructure:"transcription"`
	Whisper       whisper.Config    `mapstructure:"whisper"`
	Metrics       metrics.Config    `mapstructure:"metrics"`
}

// Load reads the configuration for serviceName, applies defaults, and
// validates the result.
func Load(serviceName string, opts ...LoaderOption) (*Config, error) {
	cfg := &Config{}
	if err := load(serviceName, cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields in every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "whisper-server"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	c.Logging.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Transcription.ApplyDefaults()
	c.Whisper.ApplyDefaults()
	c.Metrics.ApplyDefaults()
}

// Validate checks every section for consistency.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}
	if err := c.Whisper.Validate(); err != nil {
		return fmt.Errorf("whisper config: %w", err)
	}
	return nil
}
