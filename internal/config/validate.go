package config

import "fmt"

// Validate checks every constraint and returns all violations at once,
// one error per violated field, so operators see the full list instead
// of fixing fields one reload at a time.
func (c *Config) Validate() []error {
	var errs []error

	for name, p := range c.AI.Providers {
		if p.RequestsPerMinute <= 0 {
			errs = append(errs, fmt.Errorf("ai.providers.%s.requests_per_minute: must be > 0, got %d", name, p.RequestsPerMinute))
		}
		if p.ConcurrentRequests <= 0 {
			errs = append(errs, fmt.Errorf("ai.providers.%s.concurrent_requests: must be > 0, got %d", name, p.ConcurrentRequests))
		}
		if p.BaseURL == "" {
			errs = append(errs, fmt.Errorf("ai.providers.%s.base_url: must not be empty", name))
		}
		if p.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("ai.providers.%s.timeout: must be > 0, got %s", name, p.Timeout))
		}
	}

	if c.AI.Fallback.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("ai.fallback.retry_attempts: must be >= 0, got %d", c.AI.Fallback.RetryAttempts))
	}
	if c.AI.Fallback.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("ai.fallback.base_delay: must be >= 0, got %s", c.AI.Fallback.BaseDelay))
	}
	for _, name := range c.AI.Fallback.Order {
		if _, ok := c.AI.Providers[name]; !ok {
			errs = append(errs, fmt.Errorf("ai.fallback.order: references unconfigured provider %q", name))
		}
	}

	if c.AI.Queue.MaxDepth <= 0 {
		errs = append(errs, fmt.Errorf("ai.queue.max_depth: must be > 0, got %d", c.AI.Queue.MaxDepth))
	}
	if c.AI.Queue.WaitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ai.queue.wait_timeout: must be > 0, got %s", c.AI.Queue.WaitTimeout))
	}

	for name, cc := range c.AI.Caches {
		if cc.MaxSize <= 0 {
			errs = append(errs, fmt.Errorf("ai.caches.%s.max_size: must be > 0, got %d", name, cc.MaxSize))
		}
		if cc.DefaultTTL <= 0 {
			errs = append(errs, fmt.Errorf("ai.caches.%s.default_ttl: must be > 0, got %s", name, cc.DefaultTTL))
		}
		if cc.CleanupInterval <= 0 {
			errs = append(errs, fmt.Errorf("ai.caches.%s.cleanup_interval: must be > 0, got %s", name, cc.CleanupInterval))
		}
	}

	return errs
}
