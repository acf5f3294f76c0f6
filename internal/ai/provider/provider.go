package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/folioworks/vitae/internal/ai"
	"github.com/folioworks/vitae/internal/config"
)

// Client is a thin transport to one LLM provider. It performs no retry
// and no error classification; failures surface as *HTTPError or a raw
// transport error so the layers above can decide what to do.
type Client interface {
	Name() string
	Complete(ctx context.Context, req *ai.Request) (*ai.Response, error)
}

// HTTPError is a non-2xx response from a provider, kept raw.
type HTTPError struct {
	Provider   string
	Status     int
	Message    string
	RetryAfter string // Retry-After header, verbatim, if present
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Status, e.Message)
}

// Registry holds the configured provider clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

func (r *Registry) Register(name string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = c
}

func (r *Registry) Get(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// Ordered resolves the fallback order into concrete clients, skipping
// names with no registered client.
func (r *Registry) Ordered(order []string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(order))
	for _, name := range order {
		if c, ok := r.clients[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

// BuildFromConfig builds provider clients from the AI config. Each
// provider gets its own http.Client so the per-call timeout and
// connection pool are isolated per provider.
func BuildFromConfig(cfg config.AIConfig) *Registry {
	registry := NewRegistry()
	for name, pc := range cfg.Providers {
		client := &http.Client{
			Timeout: pc.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        pc.ConcurrentRequests,
				MaxIdleConnsPerHost: pc.ConcurrentRequests,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		switch pc.Type {
		case "anthropic":
			registry.Register(name, NewAnthropicClient(name, pc, client))
		default:
			// OpenAI-compatible is the wire default
			registry.Register(name, NewOpenAIClient(name, pc, client))
		}
	}
	return registry
}
