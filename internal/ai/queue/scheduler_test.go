package queue

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/folioworks/vitae/internal/ai"
)

// fakeRunner stands in for the fallback controller. When gate is set,
// each Run blocks until the test sends on it, so tests can hold slots
// occupied deterministically.
type fakeRunner struct {
	mu    sync.Mutex
	order []string

	started chan string
	gate    chan struct{}
}

func (r *fakeRunner) Run(_ context.Context, req *ai.Request) (*ai.Response, *ai.ClassifiedError) {
	r.mu.Lock()
	r.order = append(r.order, req.ID)
	r.mu.Unlock()
	if r.started != nil {
		r.started <- req.ID
	}
	if r.gate != nil {
		<-r.gate
	}
	return &ai.Response{RequestID: req.ID, Provider: "openai", Content: "ok"}, nil
}

func (r *fakeRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(r Runner, limits Limits, maxDepth int, waitTimeout time.Duration) *Scheduler {
	return NewScheduler("openai", map[string]Limits{"openai": limits}, r, maxDepth, waitTimeout, testLogger(), nil)
}

func mustSubmit(t *testing.T, s *Scheduler, req *ai.Request) *Pending {
	t.Helper()
	p, cerr := s.Submit(context.Background(), req)
	if cerr != nil {
		t.Fatalf("submit %s: %v", req.ID, cerr)
	}
	return p
}

func req(priority ai.Priority) *ai.Request {
	return ai.NewRequest(ai.KindAnalysis, "prompt", nil, "user-1", priority)
}

func TestSubmit_ImmediateDispatch(t *testing.T) {
	r := &fakeRunner{}
	s := newTestScheduler(r, Limits{RequestsPerMinute: 100, ConcurrentRequests: 2}, 10, time.Second)
	defer s.Stop()

	p := mustSubmit(t, s, req(ai.PriorityNormal))
	resp, cerr := p.Wait(context.Background())
	if cerr != nil {
		t.Fatalf("unexpected error: %v", cerr)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q, want ok", resp.Content)
	}
}

func TestSubmit_ConcurrencyBackpressure(t *testing.T) {
	r := &fakeRunner{started: make(chan string, 3), gate: make(chan struct{})}
	s := newTestScheduler(r, Limits{RequestsPerMinute: 100, ConcurrentRequests: 2}, 10, time.Minute)
	defer s.Stop()

	p1 := mustSubmit(t, s, req(ai.PriorityNormal))
	p2 := mustSubmit(t, s, req(ai.PriorityNormal))
	<-r.started
	<-r.started

	p3 := mustSubmit(t, s, req(ai.PriorityNormal))

	if got := s.Active("openai"); got != 2 {
		t.Errorf("active = %d, want 2", got)
	}
	if got := s.Depth("openai"); got != 1 {
		t.Errorf("depth = %d, want 1", got)
	}

	// Freeing one slot pulls the queued request in.
	r.gate <- struct{}{}
	<-r.started
	r.gate <- struct{}{}
	r.gate <- struct{}{}

	for _, p := range []*Pending{p1, p2, p3} {
		if _, cerr := p.Wait(context.Background()); cerr != nil {
			t.Fatalf("unexpected error: %v", cerr)
		}
	}
	if got := s.Depth("openai"); got != 0 {
		t.Errorf("depth after drain = %d, want 0", got)
	}
}

func TestSubmit_PriorityOrdering(t *testing.T) {
	r := &fakeRunner{started: make(chan string, 4), gate: make(chan struct{})}
	s := newTestScheduler(r, Limits{RequestsPerMinute: 100, ConcurrentRequests: 1}, 10, time.Minute)
	defer s.Stop()

	blocker := req(ai.PriorityNormal)
	mustSubmit(t, s, blocker)
	<-r.started

	low := req(ai.PriorityLow)
	normal := req(ai.PriorityNormal)
	high := req(ai.PriorityHigh)
	mustSubmit(t, s, low)
	mustSubmit(t, s, normal)
	mustSubmit(t, s, high)

	for i := 0; i < 4; i++ {
		r.gate <- struct{}{}
		if i < 3 {
			<-r.started
		}
	}

	want := []string{blocker.ID, high.ID, normal.ID, low.ID}
	got := r.ran()
	if len(got) != len(want) {
		t.Fatalf("ran %d requests, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", got, want)
		}
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	r := &fakeRunner{started: make(chan string, 1), gate: make(chan struct{})}
	s := newTestScheduler(r, Limits{RequestsPerMinute: 100, ConcurrentRequests: 1}, 1, time.Minute)

	mustSubmit(t, s, req(ai.PriorityNormal))
	<-r.started
	mustSubmit(t, s, req(ai.PriorityNormal)) // fills the queue

	_, cerr := s.Submit(context.Background(), req(ai.PriorityNormal))
	if cerr == nil {
		t.Fatal("expected rejection")
	}
	if cerr.Code != ai.CodeQueueFull {
		t.Errorf("code = %s, want QUEUE_FULL", cerr.Code)
	}
	if !cerr.Retryable {
		t.Error("queue rejection should be retryable")
	}

	close(r.gate)
	s.Stop()
}

func TestSubmit_QueueTimeout(t *testing.T) {
	r := &fakeRunner{started: make(chan string, 1), gate: make(chan struct{})}
	s := newTestScheduler(r, Limits{RequestsPerMinute: 100, ConcurrentRequests: 1}, 10, 25*time.Millisecond)

	mustSubmit(t, s, req(ai.PriorityNormal))
	<-r.started
	p := mustSubmit(t, s, req(ai.PriorityNormal))

	_, cerr := p.Wait(context.Background())
	if cerr == nil {
		t.Fatal("expected timeout error")
	}
	if cerr.Code != ai.CodeQueueTimeout {
		t.Errorf("code = %s, want QUEUE_TIMEOUT", cerr.Code)
	}
	if got := s.Depth("openai"); got != 0 {
		t.Errorf("depth = %d, want 0 after expiry", got)
	}

	close(r.gate)
	s.Stop()
}

func TestSubmit_CancelQueued(t *testing.T) {
	r := &fakeRunner{started: make(chan string, 1), gate: make(chan struct{})}
	s := newTestScheduler(r, Limits{RequestsPerMinute: 100, ConcurrentRequests: 1}, 10, time.Minute)

	mustSubmit(t, s, req(ai.PriorityNormal))
	<-r.started

	ctx, cancel := context.WithCancel(context.Background())
	p, cerr := s.Submit(ctx, req(ai.PriorityNormal))
	if cerr != nil {
		t.Fatalf("submit: %v", cerr)
	}
	cancel()

	_, cerr = p.Wait(context.Background())
	if cerr == nil || cerr.Code != ai.CodeRequestCancelled {
		t.Fatalf("got %v, want REQUEST_CANCELLED", cerr)
	}
	if got := s.Depth("openai"); got != 0 {
		t.Errorf("depth = %d, want 0 after withdrawal", got)
	}

	// The occupied slot was never the cancelled entry's; freeing it
	// must not dispatch the withdrawn request.
	close(r.gate)
	s.Stop()
	for _, id := range r.ran() {
		if id == p.requestID {
			t.Error("withdrawn request was dispatched")
		}
	}
}

func TestSubmit_WindowLimitAndReset(t *testing.T) {
	r := &fakeRunner{}
	s := newTestScheduler(r, Limits{RequestsPerMinute: 1, ConcurrentRequests: 10}, 10, time.Minute)
	s.window = 50 * time.Millisecond
	defer s.Stop()

	p1 := mustSubmit(t, s, req(ai.PriorityNormal))
	if _, cerr := p1.Wait(context.Background()); cerr != nil {
		t.Fatalf("first request: %v", cerr)
	}

	// Second submission lands in the same window: over the per-window
	// budget, so it queues until the window resets.
	start := time.Now()
	p2 := mustSubmit(t, s, req(ai.PriorityNormal))
	if got := s.Depth("openai"); got != 1 {
		t.Fatalf("depth = %d, want 1 while window is exhausted", got)
	}

	ctx, cancelWait := context.WithTimeout(context.Background(), time.Second)
	defer cancelWait()
	if _, cerr := p2.Wait(ctx); cerr != nil {
		t.Fatalf("second request: %v", cerr)
	}
	if waited := time.Since(start); waited < 20*time.Millisecond {
		t.Errorf("second request dispatched after %s, want a window-reset wait", waited)
	}
}

func TestSubmit_WindowCountBound(t *testing.T) {
	r := &fakeRunner{}
	s := newTestScheduler(r, Limits{RequestsPerMinute: 3, ConcurrentRequests: 10}, 10, time.Minute)
	defer s.Stop()

	pendings := make([]*Pending, 0, 5)
	for i := 0; i < 5; i++ {
		pendings = append(pendings, mustSubmit(t, s, req(ai.PriorityNormal)))
	}

	// Result does not withdraw, unlike an expired Wait, so the two
	// held-over entries stay queued for the depth check below.
	time.Sleep(50 * time.Millisecond)
	done := 0
	for _, p := range pendings {
		if resp, _ := p.Result(); resp != nil {
			done++
		}
	}
	if done != 3 {
		t.Errorf("%d requests completed within the window, want 3", done)
	}
	if got := s.Depth("openai"); got != 2 {
		t.Errorf("depth = %d, want 2 held for the next window", got)
	}
}

func TestSubmit_AfterStop(t *testing.T) {
	s := newTestScheduler(&fakeRunner{}, Limits{RequestsPerMinute: 10, ConcurrentRequests: 1}, 10, time.Second)
	s.Stop()

	_, cerr := s.Submit(context.Background(), req(ai.PriorityNormal))
	if cerr == nil || cerr.Code != ai.CodeProviderUnavailable {
		t.Fatalf("got %v, want PROVIDER_UNAVAILABLE after Stop", cerr)
	}
}

func TestSubmit_UnknownPrimary(t *testing.T) {
	s := NewScheduler("ghost", map[string]Limits{"openai": {RequestsPerMinute: 10, ConcurrentRequests: 1}},
		&fakeRunner{}, 10, time.Second, testLogger(), nil)
	_, cerr := s.Submit(context.Background(), req(ai.PriorityNormal))
	if cerr == nil || cerr.Code != ai.CodeProviderUnavailable {
		t.Fatalf("got %v, want PROVIDER_UNAVAILABLE for unknown provider", cerr)
	}
}

func TestStop_ResolvesQueued(t *testing.T) {
	r := &fakeRunner{started: make(chan string, 1), gate: make(chan struct{})}
	s := newTestScheduler(r, Limits{RequestsPerMinute: 100, ConcurrentRequests: 1}, 10, time.Minute)

	mustSubmit(t, s, req(ai.PriorityNormal))
	<-r.started
	queued := mustSubmit(t, s, req(ai.PriorityNormal))

	close(r.gate)
	s.Stop()

	_, cerr := queued.Wait(context.Background())
	if cerr == nil || cerr.Code != ai.CodeRequestCancelled {
		t.Fatalf("got %v, want REQUEST_CANCELLED for queued entry at shutdown", cerr)
	}
}
