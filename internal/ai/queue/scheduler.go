// Package queue is the admission controller for outbound AI work: it
// bounds concurrent and per-minute request volume per provider, holds
// excess requests in priority order, and dispatches into the fallback
// controller as capacity frees up.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/folioworks/vitae/internal/ai"
	"github.com/folioworks/vitae/internal/telemetry"
)

// Runner executes an admitted request's full attempt sequence.
// *fallback.Controller is the production implementation.
type Runner interface {
	Run(ctx context.Context, req *ai.Request) (*ai.Response, *ai.ClassifiedError)
}

// Limits are the admission bounds for one provider.
type Limits struct {
	RequestsPerMinute  int
	ConcurrentRequests int
}

type entry struct {
	req        *ai.Request
	enqueuedAt time.Time
	pending    *Pending
	timer      *time.Timer
	removed    bool
}

// providerState is the per-provider shared mutable state: the fixed
// rate window, the concurrency counter and the priority buckets. All
// mutation happens under the scheduler mutex.
type providerState struct {
	name   string
	limits Limits

	windowStart time.Time
	windowCount int
	active      int

	// buckets indexed by ai.Priority; dispatch scans high to low,
	// FIFO within a bucket.
	buckets [3][]*entry
	depth   int

	pumpTimer *time.Timer
}

// Scheduler owns admission for all providers. Submit never blocks the
// caller; it returns a pending handle that resolves when the request's
// attempt sequence terminates.
type Scheduler struct {
	mu        sync.Mutex
	providers map[string]*providerState
	primary   string

	runner      Runner
	maxDepth    int
	waitTimeout time.Duration
	window      time.Duration

	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	closed bool
	wg     sync.WaitGroup
}

// NewScheduler builds a scheduler admitting against the named primary
// provider's window. limits must contain an entry for every provider
// that can be a first attempt.
func NewScheduler(primary string, limits map[string]Limits, runner Runner, maxDepth int, waitTimeout time.Duration, logger *slog.Logger, metrics *telemetry.Metrics) *Scheduler {
	s := &Scheduler{
		providers:   make(map[string]*providerState, len(limits)),
		primary:     primary,
		runner:      runner,
		maxDepth:    maxDepth,
		waitTimeout: waitTimeout,
		window:      time.Minute,
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}
	for name, l := range limits {
		s.providers[name] = &providerState{name: name, limits: l}
	}
	return s
}

// Submit admits or enqueues a request against the primary provider.
// The error return is non-nil only for fail-fast rejection (QUEUE_FULL)
// or submission to an unknown provider; every other outcome arrives
// through the pending handle.
func (s *Scheduler) Submit(ctx context.Context, req *ai.Request) (*Pending, *ai.ClassifiedError) {
	s.mu.Lock()

	ps, ok := s.providers[s.primary]
	if !ok || s.closed {
		s.mu.Unlock()
		return nil, &ai.ClassifiedError{
			Code:      ai.CodeProviderUnavailable,
			Retryable: true,
			Provider:  s.primary,
			RequestID: req.ID,
			Message:   "scheduler not accepting requests",
		}
	}

	pending := newPending(req.ID)

	if s.hasCapacity(ps) {
		s.reserve(ps)
		s.mu.Unlock()
		s.dispatch(ps, req, pending, time.Duration(0))
		return pending, nil
	}

	if ps.depth >= s.maxDepth {
		depth := ps.depth
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordRateLimitHit("queue_depth")
		}
		return nil, ai.QueueFullError(ps.name, req.ID, depth)
	}

	e := &entry{
		req:        req,
		enqueuedAt: s.now(),
		pending:    pending,
	}
	pending.cancel = func() { s.withdraw(ps, e) }
	e.timer = time.AfterFunc(s.waitTimeout, func() { s.expire(ps, e) })

	ps.buckets[req.Priority] = append(ps.buckets[req.Priority], e)
	ps.depth++
	if s.metrics != nil {
		s.metrics.SetQueueDepth(ps.name, ps.depth)
	}
	// When only the rate window blocks dispatch there may be no
	// in-flight request whose release would pump the queue, so schedule
	// the window-reset pump here.
	if ps.active < ps.limits.ConcurrentRequests {
		s.pump(ps)
	}
	depth := ps.depth
	s.mu.Unlock()

	// A caller-supplied cancellation signal removes a still-queued
	// entry immediately.
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				pending.Cancel()
			case <-pending.Done():
			}
		}()
	}

	s.logger.Debug("request queued",
		"request_id", req.ID,
		"provider", ps.name,
		"priority", req.Priority.String(),
		"depth", depth,
	)
	return pending, nil
}

// hasCapacity reports whether ps can admit right now, resetting the
// fixed window first if it has elapsed. Caller holds s.mu.
func (s *Scheduler) hasCapacity(ps *providerState) bool {
	now := s.now()
	if now.Sub(ps.windowStart) >= s.window {
		ps.windowStart = now
		ps.windowCount = 0
	}
	return ps.active < ps.limits.ConcurrentRequests &&
		ps.windowCount < ps.limits.RequestsPerMinute
}

// reserve takes a slot before dispatch. Caller holds s.mu.
func (s *Scheduler) reserve(ps *providerState) {
	ps.active++
	ps.windowCount++
}

// dispatch runs the attempt sequence and releases the slot when it
// terminates, success or failure. The slot belongs to the admitting
// provider even when the runner falls back to a different provider.
func (s *Scheduler) dispatch(ps *providerState, req *ai.Request, pending *Pending, waited time.Duration) {
	if s.metrics != nil && waited > 0 {
		s.metrics.RecordQueueWait(ps.name, req.Priority.String(), float64(waited.Milliseconds()))
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(ps)

		resp, cerr := s.runner.Run(context.Background(), req)
		pending.resolve(resp, cerr)
	}()
}

// release frees the concurrency slot and pumps the queue.
func (s *Scheduler) release(ps *providerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps.active--
	s.pump(ps)
}

// pump dispatches queued entries while capacity allows. When blocked
// only by the rate window, it arms a timer for the window reset so
// dispatch resumes without new traffic. Caller holds s.mu.
func (s *Scheduler) pump(ps *providerState) {
	if s.closed {
		return
	}
	for ps.depth > 0 {
		if ps.active >= ps.limits.ConcurrentRequests {
			return
		}
		if !s.hasCapacity(ps) {
			// Concurrency is free, so the window is the blocker.
			resetIn := s.window - s.now().Sub(ps.windowStart)
			if ps.pumpTimer != nil {
				ps.pumpTimer.Stop()
			}
			ps.pumpTimer = time.AfterFunc(resetIn, func() {
				s.mu.Lock()
				defer s.mu.Unlock()
				s.pump(ps)
			})
			return
		}

		e := s.pop(ps)
		if e == nil {
			return
		}
		s.reserve(ps)
		s.dispatch(ps, e.req, e.pending, s.now().Sub(e.enqueuedAt))
	}
}

// pop removes the next dispatchable entry: highest priority first,
// FIFO within a priority. Caller holds s.mu.
func (s *Scheduler) pop(ps *providerState) *entry {
	for p := ai.PriorityHigh; p >= ai.PriorityLow; p-- {
		bucket := ps.buckets[p]
		for len(bucket) > 0 {
			e := bucket[0]
			bucket = bucket[1:]
			ps.buckets[p] = bucket
			if e.removed {
				continue
			}
			e.removed = true
			e.timer.Stop()
			ps.depth--
			if s.metrics != nil {
				s.metrics.SetQueueDepth(ps.name, ps.depth)
			}
			return e
		}
	}
	return nil
}

// withdraw handles caller cancellation of a still-queued entry. The
// entry leaves the queue with no side effects on the counters.
func (s *Scheduler) withdraw(ps *providerState, e *entry) {
	s.mu.Lock()
	if e.removed {
		s.mu.Unlock()
		return
	}
	e.removed = true
	e.timer.Stop()
	ps.depth--
	if s.metrics != nil {
		s.metrics.SetQueueDepth(ps.name, ps.depth)
	}
	s.mu.Unlock()

	e.pending.resolve(nil, ai.CancelledError(e.req.ID))
}

// expire resolves an entry that outwaited the queue timeout.
func (s *Scheduler) expire(ps *providerState, e *entry) {
	s.mu.Lock()
	if e.removed {
		s.mu.Unlock()
		return
	}
	e.removed = true
	ps.depth--
	waited := s.now().Sub(e.enqueuedAt)
	if s.metrics != nil {
		s.metrics.SetQueueDepth(ps.name, ps.depth)
	}
	s.mu.Unlock()

	s.logger.Warn("request timed out in queue",
		"request_id", e.req.ID,
		"provider", ps.name,
		"waited", waited,
	)
	e.pending.resolve(nil, ai.QueueTimeoutError(ps.name, e.req.ID, waited))
}

// Depth returns the current queued count for a provider.
func (s *Scheduler) Depth(provider string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ps, ok := s.providers[provider]; ok {
		return ps.depth
	}
	return 0
}

// Active returns the in-flight count for a provider.
func (s *Scheduler) Active(provider string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ps, ok := s.providers[provider]; ok {
		return ps.active
	}
	return 0
}

// Stop rejects new submissions, resolves everything still queued, and
// waits for in-flight work to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	var orphaned []*entry
	for _, ps := range s.providers {
		if ps.pumpTimer != nil {
			ps.pumpTimer.Stop()
		}
		for p := range ps.buckets {
			for _, e := range ps.buckets[p] {
				if !e.removed {
					e.removed = true
					e.timer.Stop()
					orphaned = append(orphaned, e)
				}
			}
			ps.buckets[p] = nil
		}
		ps.depth = 0
	}
	s.mu.Unlock()

	for _, e := range orphaned {
		e.pending.resolve(nil, ai.CancelledError(e.req.ID))
	}
	s.wg.Wait()
}
