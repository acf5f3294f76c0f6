// Package policy gates AI usage with OPA: operators express rules over
// user plan, request kind and time of day as rego, evaluated before a
// request ever reaches admission control.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/folioworks/vitae/internal/config"
	"github.com/open-policy-agent/opa/rego"
)

// Input is the data sent to OPA for evaluation.
type Input struct {
	User    InputUser    `json:"user"`
	Request InputRequest `json:"request"`
	Time    InputTime    `json:"time"`
}

type InputUser struct {
	ID   string `json:"id"`
	Plan string `json:"plan"`
}

type InputRequest struct {
	Kind     string `json:"kind"`
	Priority string `json:"priority"`
}

type InputTime struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Decision is the policy verdict for one request.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluator compiles and evaluates the usage policy bundle.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyConfig
}

// NewEvaluator creates a policy evaluator. Call Load() to compile policies.
func NewEvaluator(cfg func() config.PolicyConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load compiles rego modules from the bundle path.
func (e *Evaluator) Load() error {
	cfg := e.cfg()
	modules, err := LoadRegoFiles(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	return e.LoadFromModules(modules)
}

// LoadFromModules compiles policies from provided module sources
// (useful for testing).
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	r := rego.New(
		rego.Query("[data.vitae.policy.allow, data.vitae.policy.reason]"),
		func() func(*rego.Rego) {
			mods := make([]func(*rego.Rego), 0, len(modules))
			for name, src := range modules {
				mods = append(mods, rego.Module(name, src))
			}
			return func(r *rego.Rego) {
				for _, m := range mods {
					m(r)
				}
			}
		}(),
	)

	prepared, err := r.PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()

	slog.Info("usage policies loaded", "modules", len(modules))
	return nil
}

// Evaluate runs the policy against the given input. Fails closed: no
// loaded policy or an evaluation error denies the request.
func (e *Evaluator) Evaluate(ctx context.Context, input Input) Decision {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		return Decision{Allowed: false, Reason: "no policies loaded"}
	}

	cfg := e.cfg()
	timeout := cfg.EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		slog.Error("policy evaluation failed", "error", err)
		return Decision{Allowed: false, Reason: fmt.Sprintf("policy evaluation error: %v", err)}
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Allowed: false, Reason: "no policy result"}
	}

	// Result is [allow, reason]
	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return Decision{Allowed: false, Reason: "unexpected policy result format"}
	}

	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)

	return Decision{Allowed: allowed, Reason: reason}
}
