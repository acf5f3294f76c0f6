package queue

import (
	"context"
	"sync"

	"github.com/folioworks/vitae/internal/ai"
)

// Pending is the completion handle returned by Submit. It resolves
// exactly once, with either a response or a classified error.
type Pending struct {
	requestID string
	done      chan struct{}
	once      sync.Once

	resp *ai.Response
	err  *ai.ClassifiedError

	// cancel is installed by the scheduler; it removes the entry if it
	// is still queued. Cancellation of a dispatched request is advisory
	// only: the in-flight provider call completes independently.
	cancel func()
}

func newPending(requestID string) *Pending {
	return &Pending{requestID: requestID, done: make(chan struct{})}
}

// resolve sets the outcome. Later calls are no-ops, so a queue timeout
// racing a dispatch cannot overwrite a real result.
func (p *Pending) resolve(resp *ai.Response, err *ai.ClassifiedError) {
	p.once.Do(func() {
		p.resp = resp
		p.err = err
		close(p.done)
	})
}

// Done is closed when the outcome is available.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result returns the outcome. It must only be called after Done is
// closed; before that both values are nil.
func (p *Pending) Result() (*ai.Response, *ai.ClassifiedError) {
	select {
	case <-p.done:
		return p.resp, p.err
	default:
		return nil, nil
	}
}

// Wait blocks until the outcome is available or ctx expires. A ctx
// expiry withdraws the submission if it is still queued; a dispatched
// request keeps running (and can still populate the cache), but Wait
// returns immediately with a cancellation error.
func (p *Pending) Wait(ctx context.Context) (*ai.Response, *ai.ClassifiedError) {
	select {
	case <-p.done:
		return p.resp, p.err
	case <-ctx.Done():
		p.Cancel()
		select {
		case <-p.done:
			return p.resp, p.err
		default:
			return nil, ai.CancelledError(p.requestID)
		}
	}
}

// Cancel withdraws a still-queued submission. Dispatched submissions
// are unaffected.
func (p *Pending) Cancel() {
	if p.cancel != nil {
		p.cancel()
	}
}
