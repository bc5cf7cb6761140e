package transcribe

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Response body content types.
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain; charset=utf-8"
)

// JSONResponse is the compact JSON response body.
type JSONResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration"`
	Task     string  `json:"task"`
}

// VerboseJSONResponse additionally carries the timestamped segments.
type VerboseJSONResponse struct {
	Task     string    `json:"task"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// FormatResult maps a raw transcription result to the response body for the
// requested response_format. It is pure: no side effects, no mutation of
// the result.
func FormatResult(res *Result, responseFormat string) (string, []byte, error) {
	switch responseFormat {
	case "text":
		return ContentTypeText, []byte(res.Text), nil

	case "json", "":
		body, err := json.Marshal(JSONResponse{
			Text:     res.Text,
			Language: res.Language,
			Duration: res.Duration,
			Task:     "transcribe",
		})
		return ContentTypeJSON, body, err

	case "verbose_json":
		segments := res.Segments
		if segments == nil {
			segments = []Segment{}
		}
		body, err := json.Marshal(VerboseJSONResponse{
			Task:     "transcribe",
			Language: res.Language,
			Duration: res.Duration,
			Text:     res.Text,
			Segments: segments,
		})
		return ContentTypeJSON, body, err

	case "srt":
		return ContentTypeText, []byte(formatSRT(res)), nil

	case "vtt":
		return ContentTypeText, []byte(formatVTT(res)), nil

	default:
		return "", nil, fmt.Errorf("transcribe: unsupported response format %q", responseFormat)
	}
}

// cues returns the segments to render, falling back to one cue spanning the
// whole audio when the engine produced no segmentation.
func cues(res *Result) []Segment {
	if len(res.Segments) > 0 {
		return res.Segments
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil
	}
	return []Segment{{Start: 0, End: res.Duration, Text: res.Text}}
}

func formatSRT(res *Result) string {
	var b strings.Builder
	for i, seg := range cues(res) {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(seg.Start), srtTimestamp(seg.End),
			strings.TrimSpace(seg.Text))
	}
	return b.String()
}

func formatVTT(res *Result) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range cues(res) {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
			vttTimestamp(seg.Start), vttTimestamp(seg.End),
			strings.TrimSpace(seg.Text))
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	h, m, s, ms := splitTimestamp(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func vttTimestamp(seconds float64) string {
	h, m, s, ms := splitTimestamp(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTimestamp(seconds float64) (h, m, s, ms int) {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds * 1000)
	return total / 3600000, (total / 60000) % 60, (total / 1000) % 60, total % 1000
}
