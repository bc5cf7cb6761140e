package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skillsenselab/whisper-server/internal/apierr"
	"github.com/skillsenselab/whisper-server/internal/logger"
)

func testService(t *testing.T, cfg Config, prober Prober, engine func(ctx context.Context, req EngineRequest) (*Result, error)) (*Service, *Gate) {
	t.Helper()
	cfg.ApplyDefaults()
	pool := startPool(t, cfg.Workers, fixedFactory(engine))
	gate := NewGate(cfg.MaxConcurrent)
	svc := NewService(cfg, NewValidator(cfg, prober), gate, pool, logger.NewDefault("test"))
	return svc, gate
}

func TestService_CompletesJobAndReleasesSlot(t *testing.T) {
	svc, gate := testService(t, Config{Workers: 1}, &fakeProber{duration: 3},
		func(ctx context.Context, req EngineRequest) (*Result, error) {
			return &Result{Text: "ok", Duration: 3}, nil
		})

	job := NewJob("a.wav", "audio/wav", make([]byte, 16), testParams())
	res, apiErr := svc.Process(context.Background(), job)
	if apiErr != nil {
		t.Fatalf("Process: %v", apiErr)
	}
	if res.Text != "ok" {
		t.Errorf("Text = %q", res.Text)
	}
	if job.State() != StateCompleted {
		t.Errorf("state = %s", job.State())
	}
	if gate.InFlight() != 0 {
		t.Errorf("InFlight = %d after completion, want 0", gate.InFlight())
	}
}

func TestService_ValidationRejectionLeavesGateUntouched(t *testing.T) {
	svc, gate := testService(t, Config{Workers: 1}, &fakeProber{},
		func(ctx context.Context, req EngineRequest) (*Result, error) {
			t.Error("engine reached for an invalid upload")
			return nil, nil
		})

	job := NewJob("a.wav", "audio/wav", nil, testParams())
	_, apiErr := svc.Process(context.Background(), job)
	if apiErr == nil || apiErr.Type != apierr.TypeInvalidAudioFile {
		t.Fatalf("error = %v, want %s", apiErr, apierr.TypeInvalidAudioFile)
	}
	if gate.InFlight() != 0 {
		t.Errorf("InFlight = %d, want 0", gate.InFlight())
	}
	if job.State() != StateRejected {
		t.Errorf("state = %s", job.State())
	}
}

func TestService_SaturatedGateRejectsWithRateLimit(t *testing.T) {
	svc, gate := testService(t, Config{Workers: 1}, &fakeProber{duration: 1},
		func(ctx context.Context, req EngineRequest) (*Result, error) {
			return &Result{}, nil
		})

	// Occupy the only slot from outside.
	if !gate.TryAdmit() {
		t.Fatal("could not occupy gate")
	}
	defer gate.Release()

	job := NewJob("a.wav", "audio/wav", make([]byte, 16), testParams())
	_, apiErr := svc.Process(context.Background(), job)
	if apiErr == nil || apiErr.Type != apierr.TypeRateLimitExceeded {
		t.Fatalf("error = %v, want %s", apiErr, apierr.TypeRateLimitExceeded)
	}
	if apiErr.HTTPStatus != 503 {
		t.Errorf("status = %d, want 503", apiErr.HTTPStatus)
	}
	if job.State() != StateRejected {
		t.Errorf("state = %s", job.State())
	}
	// Only the externally held slot remains.
	if gate.InFlight() != 1 {
		t.Errorf("InFlight = %d, want 1", gate.InFlight())
	}
}

func TestService_EngineFailureReleasesSlot(t *testing.T) {
	svc, gate := testService(t, Config{Workers: 1}, &fakeProber{duration: 1},
		func(ctx context.Context, req EngineRequest) (*Result, error) {
			return nil, errors.New("decode blew up")
		})

	job := NewJob("a.wav", "audio/wav", make([]byte, 16), testParams())
	_, apiErr := svc.Process(context.Background(), job)
	if apiErr == nil || apiErr.Type != apierr.TypeServerError {
		t.Fatalf("error = %v, want %s", apiErr, apierr.TypeServerError)
	}
	if job.State() != StateFailed {
		t.Errorf("state = %s", job.State())
	}
	if gate.InFlight() != 0 {
		t.Errorf("InFlight = %d, want 0", gate.InFlight())
	}
}

func TestService_TimeoutFailsJobAndReleasesSlot(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	svc, gate := testService(t, Config{Workers: 1, Timeout: 30 * time.Millisecond}, &fakeProber{duration: 1},
		func(ctx context.Context, req EngineRequest) (*Result, error) {
			<-block
			return &Result{}, nil
		})

	job := NewJob("a.wav", "audio/wav", make([]byte, 16), testParams())
	_, apiErr := svc.Process(context.Background(), job)
	if apiErr == nil || apiErr.Type != apierr.TypeServerError {
		t.Fatalf("error = %v, want %s", apiErr, apierr.TypeServerError)
	}
	if job.State() != StateFailed {
		t.Errorf("state = %s", job.State())
	}
	if gate.InFlight() != 0 {
		t.Errorf("InFlight = %d, want 0", gate.InFlight())
	}
}

func TestService_RequestIDAttachedToErrors(t *testing.T) {
	svc, _ := testService(t, Config{Workers: 1}, &fakeProber{},
		func(ctx context.Context, req EngineRequest) (*Result, error) {
			return &Result{}, nil
		})

	job := NewJob("a.wav", "audio/wav", nil, testParams())
	job.RequestID = "req-123"
	_, apiErr := svc.Process(context.Background(), job)
	if apiErr == nil {
		t.Fatal("expected rejection")
	}
	if apiErr.RequestID != "req-123" {
		t.Errorf("RequestID = %q, want req-123", apiErr.RequestID)
	}
}
