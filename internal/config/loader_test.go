package config

import (
	"os"
	"path/filepath"
	"testing"
)

type emptyFS struct{}

func (emptyFS) Exists(string) bool   { return false }
func (emptyFS) LoadEnv(string) error { return nil }

func TestKeyVariants(t *testing.T) {
	got := keyVariants("TRANSCRIPTION_MAX_FILE_SIZE")
	want := map[string]bool{
		"transcription_max_file_size": true,
		"transcription.max.file.size": true,
		"transcription.max_file_size": true,
	}
	found := 0
	for _, v := range got {
		if want[v] {
			found++
		}
	}
	if found != len(want) {
		t.Errorf("keyVariants = %v, missing expected spellings", got)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("WHISPER_MODEL_DIR", t.TempDir())

	cfg, err := Load("server", WithFileSystem(emptyFS{}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "whisper-server" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Transcription.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Transcription.Workers)
	}
	if cfg.Transcription.MaxConcurrent != cfg.Transcription.Workers {
		t.Errorf("MaxConcurrent = %d, want %d", cfg.Transcription.MaxConcurrent, cfg.Transcription.Workers)
	}
	if cfg.Transcription.MaxFileSize != 25*1024*1024 {
		t.Errorf("MaxFileSize = %d", cfg.Transcription.MaxFileSize)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("WHISPER_MODEL_DIR", t.TempDir())
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("TRANSCRIPTION_WORKERS", "4")

	cfg, err := Load("server", WithFileSystem(emptyFS{}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Transcription.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Transcription.Workers)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := `
name: custom-name
server:
  port: 9200
whisper:
  model_dir: ` + dir + `
transcription:
  workers: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("server", WithConfigFile(path))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "custom-name" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("Port = %d, want 9200", cfg.Server.Port)
	}
	if cfg.Transcription.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Transcription.Workers)
	}
}

func TestLoad_RejectsMissingModelDir(t *testing.T) {
	if _, err := Load("server", WithFileSystem(emptyFS{})); err == nil {
		t.Fatal("config without model_dir accepted")
	}
}

func TestValidate_RejectsGateBelowPoolSize(t *testing.T) {
	cfg := &Config{}
	cfg.Whisper.ModelDir = t.TempDir()
	cfg.ApplyDefaults()
	cfg.Transcription.Workers = 4
	cfg.Transcription.MaxConcurrent = 2
	if err := cfg.Validate(); err == nil {
		t.Fatal("max_concurrent below workers accepted")
	}
}
