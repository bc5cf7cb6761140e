package transcribe

import (
	"context"
	"errors"
	"testing"

	"github.com/skillsenselab/whisper-server/internal/apierr"
)

type fakeProber struct {
	duration float64
	err      error
}

func (f *fakeProber) Probe(ctx context.Context, payload []byte, format string) (float64, error) {
	return f.duration, f.err
}

func testValidator(prober Prober) *Validator {
	cfg := Config{}
	cfg.ApplyDefaults()
	cfg.MaxFileSize = 1024
	cfg.MaxDuration = 60
	return NewValidator(cfg, prober)
}

func TestValidator_AcceptsValidUpload(t *testing.T) {
	v := testValidator(&fakeProber{duration: 12.5})
	job := NewJob("speech.wav", "audio/wav", make([]byte, 100), testParams())

	if apiErr := v.Validate(context.Background(), job); apiErr != nil {
		t.Fatalf("Validate: %v", apiErr)
	}
	if job.State() != StateValidated {
		t.Errorf("state = %s, want %s", job.State(), StateValidated)
	}
	if job.Format != "wav" {
		t.Errorf("Format = %q, want wav", job.Format)
	}
	if job.Duration != 12.5 {
		t.Errorf("Duration = %v, want 12.5", job.Duration)
	}
}

func TestValidator_RejectsOversizedFile(t *testing.T) {
	v := testValidator(&fakeProber{})
	job := NewJob("speech.wav", "audio/wav", make([]byte, 1025), testParams())

	apiErr := v.Validate(context.Background(), job)
	if apiErr == nil || apiErr.Type != apierr.TypeFileTooLarge {
		t.Fatalf("error = %v, want %s", apiErr, apierr.TypeFileTooLarge)
	}
	if apiErr.HTTPStatus != 413 {
		t.Errorf("status = %d, want 413", apiErr.HTTPStatus)
	}
	if job.State() != StateRejected {
		t.Errorf("state = %s, want %s", job.State(), StateRejected)
	}
}

func TestValidator_AcceptsFileAtExactSizeLimit(t *testing.T) {
	v := testValidator(&fakeProber{duration: 1})
	job := NewJob("speech.wav", "audio/wav", make([]byte, 1024), testParams())

	if apiErr := v.Validate(context.Background(), job); apiErr != nil {
		t.Fatalf("file at exact size limit rejected: %v", apiErr)
	}
}

func TestValidator_RejectsEmptyFile(t *testing.T) {
	v := testValidator(&fakeProber{})
	job := NewJob("speech.wav", "audio/wav", nil, testParams())

	apiErr := v.Validate(context.Background(), job)
	if apiErr == nil || apiErr.Type != apierr.TypeInvalidAudioFile {
		t.Fatalf("error = %v, want %s", apiErr, apierr.TypeInvalidAudioFile)
	}
	if apiErr.HTTPStatus != 422 {
		t.Errorf("status = %d, want 422", apiErr.HTTPStatus)
	}
}

func TestValidator_RejectsUnknownFormat(t *testing.T) {
	v := testValidator(&fakeProber{})
	job := NewJob("notes.txt", "text/plain", []byte("just some text"), testParams())

	apiErr := v.Validate(context.Background(), job)
	if apiErr == nil || apiErr.Type != apierr.TypeInvalidFileFormat {
		t.Fatalf("error = %v, want %s", apiErr, apierr.TypeInvalidFileFormat)
	}
	if apiErr.HTTPStatus != 400 {
		t.Errorf("status = %d, want 400", apiErr.HTTPStatus)
	}
}

func TestValidator_FormatFromContentTypeWhenExtensionMissing(t *testing.T) {
	v := testValidator(&fakeProber{duration: 1})
	job := NewJob("upload", "audio/mpeg", make([]byte, 16), testParams())

	if apiErr := v.Validate(context.Background(), job); apiErr != nil {
		t.Fatalf("Validate: %v", apiErr)
	}
	if job.Format != "mp3" {
		t.Errorf("Format = %q, want mp3", job.Format)
	}
}

func TestValidator_ContentTypeParametersStripped(t *testing.T) {
	v := testValidator(&fakeProber{duration: 1})
	job := NewJob("upload", "audio/webm; codecs=opus", make([]byte, 16), testParams())

	if apiErr := v.Validate(context.Background(), job); apiErr != nil {
		t.Fatalf("Validate: %v", apiErr)
	}
	if job.Format != "webm" {
		t.Errorf("Format = %q, want webm", job.Format)
	}
}

func TestValidator_FormatSniffedFromMagicNumbers(t *testing.T) {
	v := testValidator(&fakeProber{duration: 1})
	// A minimal RIFF/WAVE header; no extension, no declared type.
	payload := append([]byte("RIFF"), []byte{0x24, 0, 0, 0}...)
	payload = append(payload, []byte("WAVEfmt ")...)
	job := NewJob("upload", "", payload, testParams())

	if apiErr := v.Validate(context.Background(), job); apiErr != nil {
		t.Fatalf("Validate: %v", apiErr)
	}
	if job.Format != "wav" {
		t.Errorf("Format = %q, want wav", job.Format)
	}
}

func TestValidator_RejectsUndecodableContainer(t *testing.T) {
	v := testValidator(&fakeProber{err: errors.New("container is not decodable")})
	job := NewJob("speech.wav", "audio/wav", make([]byte, 16), testParams())

	apiErr := v.Validate(context.Background(), job)
	if apiErr == nil || apiErr.Type != apierr.TypeInvalidAudioFile {
		t.Fatalf("error = %v, want %s", apiErr, apierr.TypeInvalidAudioFile)
	}
}

func TestValidator_RejectsFileTooLong(t *testing.T) {
	v := testValidator(&fakeProber{duration: 61})
	job := NewJob("speech.wav", "audio/wav", make([]byte, 16), testParams())

	apiErr := v.Validate(context.Background(), job)
	if apiErr == nil || apiErr.Type != apierr.TypeFileTooLong {
		t.Fatalf("error = %v, want %s", apiErr, apierr.TypeFileTooLong)
	}
	if apiErr.HTTPStatus != 413 {
		t.Errorf("status = %d, want 413", apiErr.HTTPStatus)
	}
}

func TestValidator_AcceptsDurationAtExactLimit(t *testing.T) {
	v := testValidator(&fakeProber{duration: 60})
	job := NewJob("speech.wav", "audio/wav", make([]byte, 16), testParams())

	if apiErr := v.Validate(context.Background(), job); apiErr != nil {
		t.Fatalf("duration at exact limit rejected: %v", apiErr)
	}
}

func TestValidator_SizeCheckedBeforeFormat(t *testing.T) {
	// Oversized AND unrecognized: the size error must win.
	v := testValidator(&fakeProber{})
	job := NewJob("notes.txt", "text/plain", make([]byte, 2048), testParams())

	apiErr := v.Validate(context.Background(), job)
	if apiErr == nil || apiErr.Type != apierr.TypeFileTooLarge {
		t.Fatalf("error = %v, want %s first", apiErr, apierr.TypeFileTooLarge)
	}
}

func TestValidator_RejectsBadParams(t *testing.T) {
	cases := []struct {
		name   string
		params Params
	}{
		{"missing model", Params{ResponseFormat: "json"}},
		{"bad response format", Params{Model: "m", ResponseFormat: "yaml"}},
		{"temperature too high", Params{Model: "m", ResponseFormat: "json", Temperature: 2.5}},
		{"temperature negative", Params{Model: "m", ResponseFormat: "json", Temperature: -0.1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := testValidator(&fakeProber{duration: 1})
			job := NewJob("speech.wav", "audio/wav", make([]byte, 16), tc.params)

			apiErr := v.Validate(context.Background(), job)
			if apiErr == nil || apiErr.Type != apierr.TypeInvalidRequest {
				t.Fatalf("error = %v, want %s", apiErr, apierr.TypeInvalidRequest)
			}
			if apiErr.HTTPStatus != 400 {
				t.Errorf("status = %d, want 400", apiErr.HTTPStatus)
			}
		})
	}
}

func TestValidator_DeterministicClassification(t *testing.T) {
	v := testValidator(&fakeProber{duration: 61})
	var types []apierr.Type
	for i := 0; i < 3; i++ {
		job := NewJob("speech.wav", "audio/wav", make([]byte, 16), testParams())
		apiErr := v.Validate(context.Background(), job)
		if apiErr == nil {
			t.Fatal("expected rejection")
		}
		types = append(types, apiErr.Type)
	}
	for _, typ := range types {
		if typ != types[0] {
			t.Errorf("classification varied across identical inputs: %v", types)
		}
	}
}
