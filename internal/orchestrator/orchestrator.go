// Package orchestrator wires the AI core together: response caches in
// front, admission control in the middle, fallback-driven provider
// attempts behind. One Orchestrator instance is owned by the process
// that assembles the service; nothing here is a package-level singleton.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/folioworks/vitae/internal/ai"
	"github.com/folioworks/vitae/internal/ai/cache"
	"github.com/folioworks/vitae/internal/ai/fallback"
	"github.com/folioworks/vitae/internal/ai/provider"
	"github.com/folioworks/vitae/internal/ai/queue"
	"github.com/folioworks/vitae/internal/config"
	"github.com/folioworks/vitae/internal/telemetry"
)

const (
	cacheResponses   = "ai_responses"
	cacheUserContext = "user_context"
)

type Orchestrator struct {
	registry  *provider.Registry
	scheduler *queue.Scheduler
	caches    map[string]*cache.Cache

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// New builds the full pipeline from config. The config must already be
// validated; New only wires.
func New(cfg config.AIConfig, logger *slog.Logger, metrics *telemetry.Metrics) (*Orchestrator, error) {
	registry := provider.BuildFromConfig(cfg)

	order := cfg.Fallback.Order
	if len(order) == 0 {
		for name := range cfg.Providers {
			order = append(order, name)
		}
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	controller := fallback.NewController(
		registry.Ordered(order),
		cfg.Fallback.RetryAttempts,
		cfg.Fallback.BaseDelay,
		cfg.Fallback.MaxDelay,
		logger,
		metrics,
	)

	limits := make(map[string]queue.Limits, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		limits[name] = queue.Limits{
			RequestsPerMinute:  pc.RequestsPerMinute,
			ConcurrentRequests: pc.ConcurrentRequests,
		}
	}
	scheduler := queue.NewScheduler(order[0], limits, controller, cfg.Queue.MaxDepth, cfg.Queue.WaitTimeout, logger, metrics)

	caches := make(map[string]*cache.Cache, len(cfg.Caches))
	for name, cc := range cfg.Caches {
		caches[name] = cache.New(name, cc.MaxSize, cc.DefaultTTL, cc.CleanupInterval, metrics)
	}

	return &Orchestrator{
		registry:  registry,
		scheduler: scheduler,
		caches:    caches,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Submit is the single entry point for AI work. Cache hits resolve
// immediately; everything else goes through admission control. The
// returned handle resolves with the response or the last classified
// error of the attempt sequence.
func (o *Orchestrator) Submit(ctx context.Context, req *ai.Request) (*queue.Pending, *ai.ClassifiedError) {
	fp := req.Fingerprint()

	if rc := o.caches[cacheResponses]; rc != nil && req.Kind.Cacheable() {
		if data, ok := rc.Get(fp); ok {
			if resp, ok := data.(*ai.Response); ok {
				o.logger.Debug("cache hit", "request_id", req.ID, "fingerprint", fp)
				hit := *resp
				hit.RequestID = req.ID
				hit.Cached = true
				if o.metrics != nil {
					o.metrics.RecordRequest(string(req.Kind), resp.Provider, "cached")
				}
				return queue.Resolved(&hit), nil
			}
		}
	}

	pending, cerr := o.scheduler.Submit(ctx, req)
	if cerr != nil {
		if o.metrics != nil {
			o.metrics.RecordRequest(string(req.Kind), cerr.Provider, string(cerr.Code))
		}
		return nil, cerr
	}

	go o.observe(req, fp, pending)
	return pending, nil
}

// observe waits for completion to record metrics and populate caches.
func (o *Orchestrator) observe(req *ai.Request, fp string, pending *queue.Pending) {
	<-pending.Done()
	resp, cerr := pending.Result()

	if cerr != nil {
		if o.metrics != nil {
			o.metrics.RecordRequest(string(req.Kind), cerr.Provider, string(cerr.Code))
		}
		return
	}

	if o.metrics != nil {
		o.metrics.RecordRequest(string(req.Kind), resp.Provider, "ok")
		o.metrics.RecordProviderLatency(resp.Provider, float64(resp.Duration.Milliseconds()))
	}

	switch {
	case req.Kind == ai.KindContextUpdate:
		// Context refreshes are cached per owner, not per prompt.
		if uc := o.caches[cacheUserContext]; uc != nil {
			uc.Set(req.OwnerID, resp, 0)
		}
	case req.Kind.Cacheable():
		if rc := o.caches[cacheResponses]; rc != nil {
			rc.Set(fp, resp, 0)
		}
	}
}

// UserContext returns the cached context snapshot for an owner.
func (o *Orchestrator) UserContext(ownerID string) (*ai.Response, bool) {
	uc := o.caches[cacheUserContext]
	if uc == nil {
		return nil, false
	}
	data, ok := uc.Get(ownerID)
	if !ok {
		return nil, false
	}
	resp, ok := data.(*ai.Response)
	return resp, ok
}

// InvalidateOwner drops cached context for an owner, e.g. after a
// resume edit that makes the snapshot stale.
func (o *Orchestrator) InvalidateOwner(ownerID string) {
	if uc := o.caches[cacheUserContext]; uc != nil {
		uc.Delete(ownerID)
	}
}

// CacheStats exposes per-instance cache stats for the usage endpoint.
func (o *Orchestrator) CacheStats() map[string]cache.Stats {
	out := make(map[string]cache.Stats, len(o.caches))
	for name, c := range o.caches {
		out[name] = c.Stats()
	}
	return out
}

// Stop shuts the pipeline down: no new admissions, queued work
// resolved, sweeps halted.
func (o *Orchestrator) Stop() {
	o.scheduler.Stop()
	for _, c := range o.caches {
		c.Stop()
	}
}
