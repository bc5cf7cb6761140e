package transcribe

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/skillsenselab/whisper-server/internal/apierr"
	"github.com/skillsenselab/whisper-server/internal/logger"
)

// Pool is a fixed set of long-lived workers, each exclusively owning one
// loaded Engine. Workers outlive all jobs: a job failure never retires its
// worker, only a failed engine load at startup is fatal.
type Pool struct {
	workers []*worker
	jobs    chan *submission
	log     *logger.Logger

	// mu orders Submit's dispatch against Stop's close of the jobs channel.
	mu      sync.RWMutex
	stopped bool

	wg       sync.WaitGroup
	stopOnce sync.Once
	loaded   atomic.Bool
}

type submission struct {
	ctx context.Context
	job *Job
	out chan outcome // buffered so a worker never blocks on an abandoned caller
}

type outcome struct {
	result *Result
	err    *apierr.Error
}

type worker struct {
	id     int
	engine Engine
	busy   atomic.Bool
	log    *logger.Logger
}

// NewPool creates size workers and loads one engine per worker. Loading may
// block for a while; any load failure closes the engines already loaded (in
// reverse order) and returns an error, which the caller must treat as fatal.
func NewPool(ctx context.Context, size int, factory EngineFactory, log *logger.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("transcribe: pool size must be positive (got %d)", size)
	}

	p := &Pool{
		jobs: make(chan *submission),
		log:  log.WithComponent("pool"),
	}

	for i := 0; i < size; i++ {
		engine, err := factory(ctx, i)
		if err != nil {
			p.closeEngines()
			return nil, fmt.Errorf("transcribe: loading engine for worker %d: %w", i, err)
		}
		p.workers = append(p.workers, &worker{
			id:     i,
			engine: engine,
			log:    p.log.WithFields(map[string]interface{}{logger.FieldWorkerID: i}),
		})
		p.log.Info("Engine loaded", map[string]interface{}{logger.FieldWorkerID: i})
	}

	p.loaded.Store(true)
	return p, nil
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *worker) {
			defer p.wg.Done()
			for sub := range p.jobs {
				w.busy.Store(true)
				sub.out <- w.process(sub)
				w.busy.Store(false)
			}
		}(w)
	}
	p.log.Info("Worker pool started", map[string]interface{}{"workers": len(p.workers)})
}

// Submit dispatches the job to whichever worker becomes idle and waits for
// it to finish. The wait for an idle worker is transient in practice because
// the admission gate caps in-flight jobs at or near the pool size.
func (p *Pool) Submit(ctx context.Context, job *Job) (*Result, *apierr.Error) {
	sub := &submission{ctx: ctx, job: job, out: make(chan outcome, 1)}

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return nil, apierr.ServerError(fmt.Errorf("transcribe: pool is stopped"))
	}
	select {
	case p.jobs <- sub:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, apierr.ServerError(ctx.Err())
	}

	select {
	case o := <-sub.out:
		return o.result, o.err
	case <-ctx.Done():
		// The worker finishes the job on its own; the buffered out channel
		// lets it move on without a receiver.
		return nil, apierr.ServerError(ctx.Err())
	}
}

// process executes one job at the worker boundary. Engine failures and
// panics are classified and returned; the worker itself always survives to
// take the next job.
func (w *worker) process(sub *submission) (o outcome) {
	job := sub.job

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Panic recovered in worker", map[string]interface{}{
				logger.FieldJobID: job.ID,
				logger.FieldError: fmt.Sprintf("%v", r),
				"stack":           string(debug.Stack()),
			})
			apiErr := apierr.ServerError(fmt.Errorf("worker %d panic: %v", w.id, r))
			_ = job.MarkFailed(apiErr)
			o = outcome{err: apiErr}
		}
	}()

	payload := job.Payload()
	if err := job.MarkProcessing(); err != nil {
		// Already driven to a terminal state by an abandoned caller.
		return outcome{err: apierr.ServerError(err)}
	}
	w.log.Info("Job processing", map[string]interface{}{
		logger.FieldJobID:         job.ID,
		logger.FieldCorrelationID: job.CorrelationID,
		logger.FieldEvent:         string(StateProcessing),
	})

	res, err := w.engine.Transcribe(sub.ctx, EngineRequest{
		Payload:     payload,
		Format:      job.Format,
		Language:    job.Params.Language,
		Temperature: job.Params.Temperature,
	})
	if err != nil {
		// A validation-class failure discovered during full decode keeps its
		// classification; everything else is a server_error.
		apiErr := apierr.From(err)
		_ = job.MarkFailed(apiErr)
		return outcome{err: apiErr}
	}

	if res.Duration == 0 {
		res.Duration = job.Duration
	}
	_ = job.MarkCompleted()
	return outcome{result: res}
}

// Stop drains the pool: no new submissions are accepted, in-flight jobs run
// to completion (bounded by ctx), then engines are closed in reverse order
// of acquisition.
func (p *Pool) Stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.jobs)
		p.mu.Unlock()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("transcribe: pool drain interrupted: %w", ctx.Err())
		}

		p.loaded.Store(false)
		p.closeEngines()
		p.log.Info("Worker pool stopped")
	})
	return err
}

func (p *Pool) closeEngines() {
	for i := len(p.workers) - 1; i >= 0; i-- {
		if cerr := p.workers[i].engine.Close(); cerr != nil {
			p.log.Warn("Engine close failed", map[string]interface{}{
				logger.FieldWorkerID: p.workers[i].id,
				logger.FieldError:    cerr.Error(),
			})
		}
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Busy returns how many workers are mid-job.
func (p *Pool) Busy() int {
	n := 0
	for _, w := range p.workers {
		if w.busy.Load() {
			n++
		}
	}
	return n
}

// Idle returns how many workers are waiting for work.
func (p *Pool) Idle() int { return p.Size() - p.Busy() }

// Loaded reports whether all engines finished loading and the pool has not
// been stopped.
func (p *Pool) Loaded() bool { return p.loaded.Load() }
