// Package transcribe implements the admission-control and worker-dispatch
// core: the validator, the admission gate, the worker pool, the job state
// machine, and the result formatter.
package transcribe

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillsenselab/whisper-server/internal/apierr"
)

// State is a job's position in its lifecycle.
type State string

const (
	StateReceived   State = "received"
	StateValidated  State = "validated"
	StateAdmitted   State = "admitted"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateRejected   State = "rejected"
	StateFailed     State = "failed"
)

// IsTerminal reports whether no further transitions can occur from s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateRejected || s == StateFailed
}

// transitions lists the legal next states for each state. No transition
// skips a state.
var transitions = map[State][]State{
	StateReceived:   {StateValidated, StateRejected},
	StateValidated:  {StateAdmitted, StateRejected},
	StateAdmitted:   {StateProcessing, StateFailed},
	StateProcessing: {StateCompleted, StateFailed},
}

// Params are the caller-supplied transcription parameters.
type Params struct {
	Model          string  `json:"model" validate:"required"`
	Language       string  `json:"language" validate:"omitempty,max=16"`
	ResponseFormat string  `json:"response_format" validate:"oneof=json text verbose_json srt vtt"`
	Temperature    float64 `json:"temperature" validate:"gte=0,lte=2"`
}

// Job is one request's unit of work as it moves through validation,
// admission, and execution.
type Job struct {
	// ID uniquely identifies the job.
	ID string
	// RequestID ties the job to the HTTP request that created it.
	RequestID string
	// CorrelationID propagates through logs only; it has no behavioral effect.
	CorrelationID string

	// Declared metadata.
	Filename    string
	ContentType string
	// Format is the detected format tag, populated by the validator.
	Format string

	// Derived metadata.
	Size     int64
	Duration float64

	Params Params

	ReceivedAt  time.Time
	AdmittedAt  time.Time
	CompletedAt time.Time

	mu      sync.Mutex
	state   State
	payload []byte
	err     *apierr.Error
}

// NewJob creates a job in the Received state, owning the payload bytes
// until it reaches a terminal state.
func NewJob(filename, contentType string, payload []byte, params Params) *Job {
	return &Job{
		ID:            uuid.New().String(),
		CorrelationID: uuid.New().String(),
		Filename:      filename,
		ContentType:   contentType,
		Size:          int64(len(payload)),
		Params:        params,
		ReceivedAt:    time.Now(),
		state:         StateReceived,
		payload:       payload,
	}
}

// State returns the job's current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the classified error for a Rejected or Failed job, nil otherwise.
func (j *Job) Err() *apierr.Error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Payload returns the audio bytes. Nil once the job is terminal.
func (j *Job) Payload() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.payload
}

// advance moves the job to state next, enforcing the legal transition set.
func (j *Job) advance(next State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, allowed := range transitions[j.state] {
		if next == allowed {
			j.state = next
			switch next {
			case StateAdmitted:
				j.AdmittedAt = time.Now()
			case StateCompleted, StateRejected, StateFailed:
				j.CompletedAt = time.Now()
				j.payload = nil
			}
			return nil
		}
	}
	return fmt.Errorf("transcribe: illegal job transition %s -> %s (job %s)", j.state, next, j.ID)
}

// MarkValidated moves Received -> Validated.
func (j *Job) MarkValidated() error { return j.advance(StateValidated) }

// MarkAdmitted moves Validated -> Admitted and records the admission time.
func (j *Job) MarkAdmitted() error { return j.advance(StateAdmitted) }

// MarkProcessing moves Admitted -> Processing.
func (j *Job) MarkProcessing() error { return j.advance(StateProcessing) }

// MarkCompleted moves Processing -> Completed and releases the payload.
func (j *Job) MarkCompleted() error { return j.advance(StateCompleted) }

// MarkRejected moves a pre-execution job to Rejected with a classified error
// and releases the payload.
func (j *Job) MarkRejected(err *apierr.Error) error {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	return j.advance(StateRejected)
}

// MarkFailed moves an in-execution job to Failed with a classified error
// and releases the payload.
func (j *Job) MarkFailed(err *apierr.Error) error {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	return j.advance(StateFailed)
}
