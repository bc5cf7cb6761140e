package transcribe

// Gate bounds the number of in-flight jobs (Admitted or Processing). It is
// deliberately non-blocking: callers either get a slot immediately or are
// rejected, so no server-side queue can build up behind a saturated pool.
type Gate struct {
	capacity int
	sem      chan struct{}

	onAdmit   func()
	onReject  func()
	onRelease func()
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithAdmitHook registers a callback invoked after each successful admission.
func WithAdmitHook(fn func()) GateOption {
	return func(g *Gate) { g.onAdmit = fn }
}

// WithRejectHook registers a callback invoked on each rejected admission.
func WithRejectHook(fn func()) GateOption {
	return func(g *Gate) { g.onReject = fn }
}

// WithReleaseHook registers a callback invoked on each released slot.
func WithReleaseHook(fn func()) GateOption {
	return func(g *Gate) { g.onRelease = fn }
}

// NewGate creates a gate admitting at most capacity concurrent jobs.
func NewGate(capacity int, opts ...GateOption) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	g := &Gate{
		capacity: capacity,
		sem:      make(chan struct{}, capacity),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TryAdmit atomically takes a slot if one is free. It never blocks; a false
// return means the caller must reject with rate_limit_exceeded.
func (g *Gate) TryAdmit() bool {
	select {
	case g.sem <- struct{}{}:
		if g.onAdmit != nil {
			g.onAdmit()
		}
		return true
	default:
		if g.onReject != nil {
			g.onReject()
		}
		return false
	}
}

// Release returns a slot. It must be called exactly once per successful
// TryAdmit, on every exit path. A release without a matching admission is a
// programming error and panics, like a negative WaitGroup counter.
func (g *Gate) Release() {
	select {
	case <-g.sem:
		if g.onRelease != nil {
			g.onRelease()
		}
	default:
		panic("transcribe: gate release without matching admit")
	}
}

// InFlight returns the number of slots currently held.
func (g *Gate) InFlight() int {
	return len(g.sem)
}

// Available returns the number of free slots.
func (g *Gate) Available() int {
	return g.capacity - len(g.sem)
}

// Capacity returns the maximum number of concurrent jobs.
func (g *Gate) Capacity() int {
	return g.capacity
}
