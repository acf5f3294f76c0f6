package queue

import "github.com/folioworks/vitae/internal/ai"

// Resolved returns an already-completed handle. The orchestrator uses
// it for cache hits so callers see one result shape either way.
func Resolved(resp *ai.Response) *Pending {
	p := newPending(resp.RequestID)
	p.resolve(resp, nil)
	return p
}
