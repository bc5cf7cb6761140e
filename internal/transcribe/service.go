package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skillsenselab/whisper-server/internal/apierr"
	"github.com/skillsenselab/whisper-server/internal/logger"
)

// Service drives a job through the pipeline: validation, admission,
// dispatch, formatting the caller does itself. It owns the one invariant
// that silently degrades capacity when violated: a gate slot taken for a
// job is released exactly once, on every exit path.
type Service struct {
	cfg       Config
	validator *Validator
	gate      *Gate
	pool      *Pool
	log       *logger.Logger
}

// NewService wires the core components together.
func NewService(cfg Config, validator *Validator, gate *Gate, pool *Pool, log *logger.Logger) *Service {
	return &Service{
		cfg:       cfg,
		validator: validator,
		gate:      gate,
		pool:      pool,
		log:       log.WithComponent("transcribe"),
	}
}

// Gate exposes the admission gate for health reporting.
func (s *Service) Gate() *Gate { return s.gate }

// Pool exposes the worker pool for health reporting.
func (s *Service) Pool() *Pool { return s.pool }

// Process runs one job to a terminal state and returns its result or its
// classified error. The call suspends for the duration of processing; it
// never queues behind a saturated gate.
func (s *Service) Process(ctx context.Context, job *Job) (*Result, *apierr.Error) {
	s.logTransition(job, StateReceived)

	if s.cfg.DumpAudioDir != "" {
		if err := s.dumpAudio(job); err != nil {
			apiErr := apierr.ServerError(err).WithRequestID(job.RequestID)
			_ = job.MarkRejected(apiErr)
			s.logTerminal(job)
			return nil, apiErr
		}
	}

	if apiErr := s.validator.Validate(ctx, job); apiErr != nil {
		apiErr.WithRequestID(job.RequestID)
		s.logTerminal(job)
		return nil, apiErr
	}
	s.logTransition(job, StateValidated)

	if !s.gate.TryAdmit() {
		apiErr := apierr.RateLimitExceeded(s.gate.Capacity()).WithRequestID(job.RequestID)
		_ = job.MarkRejected(apiErr)
		s.logTerminal(job)
		return nil, apiErr
	}
	defer s.gate.Release()

	_ = job.MarkAdmitted()
	s.logTransition(job, StateAdmitted)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	res, apiErr := s.pool.Submit(ctx, job)
	if apiErr != nil {
		apiErr.WithRequestID(job.RequestID)
		if !job.State().IsTerminal() {
			// Abandoned or timed-out caller: the worker may still be running,
			// but this job is done as far as the pipeline is concerned.
			_ = job.MarkFailed(apiErr)
		}
		s.logTerminal(job)
		return nil, apiErr
	}

	s.logTerminal(job)
	return res, nil
}

// dumpAudio persists the upload with a timestamp prefix before processing.
func (s *Service) dumpAudio(job *Job) error {
	name := filepath.Base(job.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "audio.bin"
	}
	if err := os.MkdirAll(s.cfg.DumpAudioDir, 0o755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}
	path := filepath.Join(s.cfg.DumpAudioDir, time.Now().Format("20060102150405")+"_"+name)
	if err := os.WriteFile(path, job.Payload(), 0o644); err != nil {
		return fmt.Errorf("saving uploaded audio: %w", err)
	}
	s.log.Info("Saved uploaded audio", map[string]interface{}{
		logger.FieldJobID: job.ID,
		"dump_path":       path,
	})
	return nil
}

// logTransition emits one event for a non-terminal state transition.
func (s *Service) logTransition(job *Job, state State) {
	s.log.Info("Job "+string(state), map[string]interface{}{
		logger.FieldRequestID:     job.RequestID,
		logger.FieldCorrelationID: job.CorrelationID,
		logger.FieldJobID:         job.ID,
		logger.FieldEvent:         string(state),
	})
}

// logTerminal emits the terminal event with latency and status code.
// Audio bytes and transcript text are deliberately absent.
func (s *Service) logTerminal(job *Job) {
	state := job.State()
	status := 200
	fields := map[string]interface{}{
		logger.FieldRequestID:     job.RequestID,
		logger.FieldCorrelationID: job.CorrelationID,
		logger.FieldJobID:         job.ID,
		logger.FieldEvent:         string(state),
		logger.FieldDuration:      time.Since(job.ReceivedAt).Milliseconds(),
	}
	if err := job.Err(); err != nil {
		status = err.HTTPStatus
		fields[logger.FieldError] = err.Error()
	}
	fields[logger.FieldStatus] = status

	if state == StateFailed {
		s.log.Error("Job "+string(state), fields)
		return
	}
	if state == StateRejected {
		s.log.Warn("Job "+string(state), fields)
		return
	}
	s.log.Info("Job "+string(state), fields)
}
