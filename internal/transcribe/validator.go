package transcribe

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/skillsenselab/whisper-server/internal/apierr"
)

// mimeToFormat maps declared or sniffed MIME types to format tags.
var mimeToFormat = map[string]string{
	"audio/mpeg":      "mp3",
	"audio/mp3":       "mp3",
	"audio/wav":       "wav",
	"audio/wave":      "wav",
	"audio/x-wav":     "wav",
	"audio/vnd.wave":  "wav",
	"audio/mp4":       "m4a",
	"audio/m4a":       "m4a",
	"audio/x-m4a":     "m4a",
	"video/mp4":       "mp4",
	"audio/webm":      "webm",
	"video/webm":      "webm",
	"audio/flac":      "flac",
	"audio/x-flac":    "flac",
	"audio/ogg":       "ogg",
	"application/ogg": "ogg",
}

// Validator runs the cheap, synchronous admission checks on an upload
// before it competes for a gate slot. Checks run in a fixed order, cheapest
// first; the first failure wins.
type Validator struct {
	cfg     Config
	prober  Prober
	allowed map[string]bool
}

// NewValidator creates a validator enforcing the configured limits, using
// prober as the black-box decode-and-measure capability.
func NewValidator(cfg Config, prober Prober) *Validator {
	allowed := make(map[string]bool, len(cfg.AllowedFormats))
	for _, f := range cfg.AllowedFormats {
		allowed[strings.ToLower(f)] = true
	}
	return &Validator{cfg: cfg, prober: prober, allowed: allowed}
}

// Validate classifies the job as Validated or Rejected. On success the
// job's Format and Duration are populated; on rejection the returned error
// is also recorded on the job. Running it twice on identical input yields
// the identical classification.
func (v *Validator) Validate(ctx context.Context, job *Job) *apierr.Error {
	if err := v.check(ctx, job); err != nil {
		_ = job.MarkRejected(err)
		return err
	}
	_ = job.MarkValidated()
	return nil
}

func (v *Validator) check(ctx context.Context, job *Job) *apierr.Error {
	payload := job.Payload()

	// 1. Size: reject before any decoding work.
	if job.Size > v.cfg.MaxFileSize {
		return apierr.FileTooLarge(job.Size, v.cfg.MaxFileSize)
	}
	if len(payload) == 0 {
		return apierr.InvalidAudioFile("file is empty")
	}

	// 2. Format: extension, then declared content type, then magic numbers.
	format := v.detectFormat(job.Filename, job.ContentType, payload)
	if !v.allowed[format] {
		if format == "" {
			format = "unknown"
		}
		return apierr.InvalidFileFormat(format, v.cfg.AllowedFormats)
	}
	job.Format = format

	// 3+4. Structure and duration: one probe decodes enough of the
	// container to confirm it is intact and measures its length.
	duration, err := v.prober.Probe(ctx, payload, format)
	if err != nil {
		return apierr.InvalidAudioFile(err.Error())
	}
	job.Duration = duration
	if duration > v.cfg.MaxDuration {
		return apierr.FileTooLong(duration, v.cfg.MaxDuration)
	}

	// 5. Parameters: cheap but last, matching the upstream API ordering.
	if err := validateParams(&job.Params); err != nil {
		return err
	}

	return nil
}

// detectFormat resolves the format tag, returning "" when nothing matches.
func (v *Validator) detectFormat(filename, contentType string, payload []byte) string {
	if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")); v.allowed[ext] {
		return ext
	}

	if contentType != "" {
		// Strip parameters like "; codecs=opus".
		declared := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
		if f, ok := mimeToFormat[declared]; ok && v.allowed[f] {
			return f
		}
	}

	sniffed := mimetype.Detect(payload)
	if f, ok := mimeToFormat[sniffed.String()]; ok && v.allowed[f] {
		return f
	}
	if ext := strings.TrimPrefix(sniffed.Extension(), "."); v.allowed[ext] {
		return ext
	}

	return ""
}
