package apierr

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestStatusFor_StableMapping(t *testing.T) {
	cases := []struct {
		typ  Type
		want int
	}{
		{TypeInvalidRequest, 400},
		{TypeInvalidFileFormat, 400},
		{TypeFileTooLarge, 413},
		{TypeFileTooLong, 413},
		{TypeInvalidAudioFile, 422},
		{TypeRateLimitExceeded, 503},
		{TypeServerError, 500},
		{Type("made_up"), 500},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.typ); got != tc.want {
			t.Errorf("StatusFor(%s) = %d, want %d", tc.typ, got, tc.want)
		}
	}
}

func TestConstructors_SetTypeAndStatus(t *testing.T) {
	cases := []struct {
		err  *Error
		typ  Type
		code int
	}{
		{InvalidRequest("bad temperature"), TypeInvalidRequest, 400},
		{InvalidFileFormat("txt", []string{"mp3", "wav"}), TypeInvalidFileFormat, 400},
		{FileTooLarge(30<<20, 25<<20), TypeFileTooLarge, 413},
		{FileTooLong(1800, 1500), TypeFileTooLong, 413},
		{InvalidAudioFile("truncated header"), TypeInvalidAudioFile, 422},
		{RateLimitExceeded(2), TypeRateLimitExceeded, 503},
		{ServerError(errors.New("boom")), TypeServerError, 500},
	}
	for _, tc := range cases {
		if tc.err.Type != tc.typ {
			t.Errorf("Type = %s, want %s", tc.err.Type, tc.typ)
		}
		if tc.err.HTTPStatus != tc.code {
			t.Errorf("%s: HTTPStatus = %d, want %d", tc.typ, tc.err.HTTPStatus, tc.code)
		}
		if tc.err.Message == "" {
			t.Errorf("%s: empty message", tc.typ)
		}
	}
}

func TestServerError_HidesCauseFromClient(t *testing.T) {
	cause := errors.New("pipe: connection reset by whisper decoder")
	e := ServerError(cause)

	body, err := json.Marshal(e.ToResponse())
	if err != nil {
		t.Fatal(err)
	}
	if string(body) == "" || strings.Contains(string(body), "decoder") {
		t.Errorf("cause leaked into response body: %s", body)
	}
	if !errors.Is(e, cause) {
		t.Error("cause not reachable via errors.Is")
	}
}

func TestToResponse_Shape(t *testing.T) {
	e := RateLimitExceeded(2).WithRequestID("req-42")
	body, err := json.Marshal(e.ToResponse())
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Error.Type != "rate_limit_exceeded" {
		t.Errorf("type = %q", decoded.Error.Type)
	}
	if decoded.Error.Code != "503" {
		t.Errorf("code = %q, want \"503\"", decoded.Error.Code)
	}
	if decoded.RequestID != "req-42" {
		t.Errorf("request_id = %q", decoded.RequestID)
	}
}

func TestRetryable(t *testing.T) {
	if !RateLimitExceeded(1).Retryable() {
		t.Error("rate_limit_exceeded not retryable")
	}
	for _, e := range []*Error{
		InvalidRequest("x"),
		InvalidAudioFile("x"),
		ServerError(errors.New("x")),
	} {
		if e.Retryable() {
			t.Errorf("%s marked retryable", e.Type)
		}
	}
}

func TestFrom_PreservesClassification(t *testing.T) {
	orig := InvalidAudioFile("bad stream")
	if got := From(orig); got.Type != TypeInvalidAudioFile {
		t.Errorf("From lost classification: %s", got.Type)
	}
	if got := From(errors.New("something raw")); got.Type != TypeServerError {
		t.Errorf("unclassified error mapped to %s, want %s", got.Type, TypeServerError)
	}
}

