// Package fallback turns one logical AI request into a bounded sequence
// of provider attempts: transient errors retry the same provider with
// capped exponential backoff, provider-level unavailability advances to
// the next provider in the configured order.
package fallback

import (
	"context"
	"log/slog"
	"time"

	"github.com/folioworks/vitae/internal/ai"
	"github.com/folioworks/vitae/internal/ai/classify"
	"github.com/folioworks/vitae/internal/ai/provider"
	"github.com/folioworks/vitae/internal/telemetry"
)

// Controller drives the attempt sequence. Total attempts never exceed
// len(providers) * (retryAttempts + 1).
type Controller struct {
	providers     []provider.Client
	retryAttempts int
	baseDelay     time.Duration
	maxDelay      time.Duration
	logger        *slog.Logger
	metrics       *telemetry.Metrics

	// sleep is replaceable in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewController(providers []provider.Client, retryAttempts int, baseDelay, maxDelay time.Duration, logger *slog.Logger, metrics *telemetry.Metrics) *Controller {
	return &Controller{
		providers:     providers,
		retryAttempts: retryAttempts,
		baseDelay:     baseDelay,
		maxDelay:      maxDelay,
		logger:        logger,
		metrics:       metrics,
		sleep:         sleepCtx,
	}
}

// Run attempts the request against each provider in order until one
// succeeds or the sequence is exhausted. The returned error is always
// the last classified failure, never a wrapper.
func (c *Controller) Run(ctx context.Context, req *ai.Request) (*ai.Response, *ai.ClassifiedError) {
	if len(c.providers) == 0 {
		return nil, &ai.ClassifiedError{
			Code:      ai.CodeProviderUnavailable,
			Retryable: true,
			RequestID: req.ID,
			Message:   "no providers configured",
		}
	}

	var lastErr *ai.ClassifiedError

	for pi, p := range c.providers {
		// Retry budget resets per provider.
		for attempt := 0; attempt <= c.retryAttempts; attempt++ {
			resp, err := p.Complete(ctx, req)
			if err == nil {
				return resp, nil
			}

			lastErr = classify.Classify(err, p.Name(), req.ID)
			c.logger.Warn("provider attempt failed",
				"request_id", req.ID,
				"provider", p.Name(),
				"attempt", attempt+1,
				"code", string(lastErr.Code),
				"retryable", lastErr.Retryable,
			)

			if !lastErr.Retryable {
				// Quota exhaustion is provider-specific: another
				// provider may still serve the request. Every other
				// non-retryable error terminates the whole sequence,
				// even with providers remaining.
				if lastErr.Code == ai.CodeQuotaExceeded {
					break
				}
				return nil, lastErr
			}

			if attempt < c.retryAttempts {
				if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
					return nil, lastErr
				}
			}
		}

		if pi < len(c.providers)-1 {
			next := c.providers[pi+1]
			c.logger.Info("falling back to next provider",
				"request_id", req.ID,
				"from", p.Name(),
				"to", next.Name(),
				"code", string(lastErr.Code),
			)
			if c.metrics != nil {
				c.metrics.RecordFallback(p.Name(), next.Name())
			}
		}
	}

	return nil, lastErr
}

// backoff computes baseDelay * 2^attempt, capped at maxDelay.
func (c *Controller) backoff(attempt int) time.Duration {
	d := c.baseDelay << uint(attempt)
	if d > c.maxDelay || d <= 0 {
		return c.maxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
