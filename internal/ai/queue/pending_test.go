package queue

import (
	"context"
	"testing"
	"time"

	"github.com/folioworks/vitae/internal/ai"
)

func TestPending_ResolveOnce(t *testing.T) {
	p := newPending("req-1")
	p.resolve(&ai.Response{Content: "first"}, nil)
	p.resolve(&ai.Response{Content: "second"}, nil)

	resp, cerr := p.Result()
	if cerr != nil {
		t.Fatalf("unexpected error: %v", cerr)
	}
	if resp.Content != "first" {
		t.Errorf("content = %q, later resolve must not overwrite", resp.Content)
	}
}

func TestPending_ResultBeforeResolve(t *testing.T) {
	p := newPending("req-1")
	resp, cerr := p.Result()
	if resp != nil || cerr != nil {
		t.Error("Result before resolve should be nil, nil")
	}
}

func TestPending_WaitReturnsResult(t *testing.T) {
	p := newPending("req-1")
	go func() {
		time.Sleep(10 * time.Millisecond)
		p.resolve(&ai.Response{Content: "ok"}, nil)
	}()
	resp, cerr := p.Wait(context.Background())
	if cerr != nil {
		t.Fatalf("unexpected error: %v", cerr)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q, want ok", resp.Content)
	}
}

func TestPending_WaitContextExpiry(t *testing.T) {
	p := newPending("req-1")
	cancelled := false
	p.cancel = func() { cancelled = true }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, cerr := p.Wait(ctx)
	if cerr == nil || cerr.Code != ai.CodeRequestCancelled {
		t.Fatalf("got %v, want REQUEST_CANCELLED", cerr)
	}
	if !cancelled {
		t.Error("Wait expiry should attempt withdrawal")
	}
}

func TestPending_WaitExpiryAfterDispatchKeepsResult(t *testing.T) {
	p := newPending("req-1")
	// A dispatched entry has no queue slot to withdraw; cancel resolves
	// nothing and the real result may land concurrently.
	p.cancel = func() { p.resolve(&ai.Response{Content: "raced in"}, nil) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, cerr := p.Wait(ctx)
	if cerr != nil {
		t.Fatalf("unexpected error: %v", cerr)
	}
	if resp.Content != "raced in" {
		t.Errorf("content = %q, resolved result should win over the cancellation error", resp.Content)
	}
}

func TestResolved(t *testing.T) {
	p := Resolved(&ai.Response{Content: "cached", Cached: true})
	select {
	case <-p.Done():
	default:
		t.Fatal("Resolved handle should be immediately done")
	}
	resp, cerr := p.Result()
	if cerr != nil || !resp.Cached {
		t.Errorf("got (%v, %v), want cached response", resp, cerr)
	}
}
