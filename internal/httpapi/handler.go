// Package httpapi exposes the AI orchestration core to the web
// frontend. Handlers are thin: parse, gate, submit, render.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/folioworks/vitae/internal/ai"
	"github.com/folioworks/vitae/internal/auth"
	"github.com/folioworks/vitae/internal/config"
	"github.com/folioworks/vitae/internal/httputil"
	"github.com/folioworks/vitae/internal/orchestrator"
	"github.com/folioworks/vitae/internal/policy"
	"github.com/folioworks/vitae/internal/ratelimit"
	"github.com/folioworks/vitae/internal/storage"
)

const maxPromptBytes = 32 * 1024
const historyLimit = 50

// Handler holds dependencies for the AI route handlers.
type Handler struct {
	orch        *orchestrator.Orchestrator
	suggestions *storage.SuggestionRepo
	policyEval  *policy.Evaluator
	quota       *ratelimit.QuotaTracker
	quotaCfg    func() config.QuotaConfig
}

func NewHandler(orch *orchestrator.Orchestrator, suggestions *storage.SuggestionRepo, policyEval *policy.Evaluator, quota *ratelimit.QuotaTracker, quotaCfg func() config.QuotaConfig) *Handler {
	return &Handler{
		orch:        orch,
		suggestions: suggestions,
		policyEval:  policyEval,
		quota:       quota,
		quotaCfg:    quotaCfg,
	}
}

type aiRequestBody struct {
	Prompt   string         `json:"prompt"`
	Context  map[string]any `json:"context,omitempty"`
	Priority string         `json:"priority,omitempty"`
}

type aiResponseBody struct {
	RequestID string   `json:"request_id"`
	Kind      string   `json:"kind"`
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	Content   string   `json:"content"`
	Usage     ai.Usage `json:"usage"`
	Cached    bool     `json:"cached"`
}

// GenerateSuggestion handles POST /v1/ai/suggestions
func (h *Handler) GenerateSuggestion(w http.ResponseWriter, r *http.Request) {
	h.serveAI(w, r, ai.KindContentGeneration)
}

// AnalyzeResume handles POST /v1/ai/analysis
func (h *Handler) AnalyzeResume(w http.ResponseWriter, r *http.Request) {
	h.serveAI(w, r, ai.KindAnalysis)
}

// CompareResumes handles POST /v1/ai/comparisons
func (h *Handler) CompareResumes(w http.ResponseWriter, r *http.Request) {
	h.serveAI(w, r, ai.KindComparison)
}

// UpdateContext handles PUT /v1/ai/context
func (h *Handler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	h.serveAI(w, r, ai.KindContextUpdate)
}

func (h *Handler) serveAI(w http.ResponseWriter, r *http.Request, kind ai.Kind) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	userInfo, ok := auth.UserFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var body aiRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPromptBytes)).Decode(&body); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if body.Prompt == "" {
		httputil.WriteBadRequestError(w, reqID, "prompt is required")
		return
	}

	priority := ai.ParsePriority(body.Priority)
	if userInfo.Plan != auth.PlanPro && priority == ai.PriorityHigh {
		// High priority is a paid lane.
		priority = ai.PriorityNormal
	}

	if h.policyEval != nil && h.policyEval.Enabled() {
		now := time.Now().UTC()
		decision := h.policyEval.Evaluate(r.Context(), policy.Input{
			User:    policy.InputUser{ID: userInfo.UserID, Plan: string(userInfo.Plan)},
			Request: policy.InputRequest{Kind: string(kind), Priority: priority.String()},
			Time:    policy.InputTime{Hour: now.Hour(), Day: now.Weekday().String()},
		})
		if !decision.Allowed {
			slog.Warn("request denied by policy",
				"request_id", reqID,
				"user_id", userInfo.UserID,
				"kind", string(kind),
				"reason", decision.Reason,
			)
			httputil.WritePolicyError(w, reqID, "Request denied by policy: "+decision.Reason)
			return
		}
	}

	req := ai.NewRequest(kind, body.Prompt, body.Context, userInfo.UserID, priority)

	pending, cerr := h.orch.Submit(r.Context(), req)
	if cerr != nil {
		httputil.WriteClassifiedError(w, cerr)
		return
	}

	resp, cerr := pending.Wait(r.Context())
	if cerr != nil {
		httputil.WriteClassifiedError(w, cerr)
		return
	}

	if h.quota != nil && !resp.Cached {
		if err := h.quota.Record(r.Context(), userInfo.UserID); err != nil {
			slog.Error("failed to record quota usage", "error", err, "user_id", userInfo.UserID)
		}
	}

	if h.suggestions != nil && kind != ai.KindContextUpdate {
		// Persistence is the route layer's job, off the hot path.
		go h.persist(userInfo.UserID, req, resp)
	}

	slog.Info("ai request completed",
		"request_id", req.ID,
		"kind", string(kind),
		"provider", resp.Provider,
		"cached", resp.Cached,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration_ms", time.Since(receivedAt).Milliseconds(),
		"user_id", userInfo.UserID,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(aiResponseBody{
		RequestID: req.ID,
		Kind:      string(kind),
		Provider:  resp.Provider,
		Model:     resp.Model,
		Content:   resp.Content,
		Usage:     resp.Usage,
		Cached:    resp.Cached,
	})
}

func (h *Handler) persist(ownerID string, req *ai.Request, resp *ai.Response) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := h.suggestions.Insert(ctx, &storage.Suggestion{
		OwnerID:   ownerID,
		RequestID: req.ID,
		Kind:      string(req.Kind),
		Provider:  resp.Provider,
		Prompt:    req.Prompt,
		Content:   resp.Content,
		Cached:    resp.Cached,
	})
	if err != nil {
		slog.Error("failed to persist suggestion", "error", err, "request_id", req.ID)
	}
}

// ListSuggestions handles GET /v1/ai/suggestions
func (h *Handler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	userInfo, ok := auth.UserFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}
	if h.suggestions == nil {
		httputil.WriteInternalError(w, reqID, "History unavailable")
		return
	}

	items, err := h.suggestions.ListByOwner(r.Context(), userInfo.UserID, historyLimit)
	if err != nil {
		slog.Error("failed to list suggestions", "error", err, "user_id", userInfo.UserID)
		httputil.WriteInternalError(w, reqID, "Failed to load history")
		return
	}

	type suggestionObject struct {
		ID        string    `json:"id"`
		RequestID string    `json:"request_id"`
		Kind      string    `json:"kind"`
		Provider  string    `json:"provider"`
		Prompt    string    `json:"prompt"`
		Content   string    `json:"content"`
		Cached    bool      `json:"cached"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]suggestionObject, 0, len(items))
	for _, s := range items {
		out = append(out, suggestionObject{
			ID:        s.ID,
			RequestID: s.RequestID,
			Kind:      s.Kind,
			Provider:  s.Provider,
			Prompt:    s.Prompt,
			Content:   s.Content,
			Cached:    s.Cached,
			CreatedAt: s.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": out})
}

// Usage handles GET /v1/ai/usage
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	userInfo, ok := auth.UserFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var used int64
	if h.quota != nil {
		u, err := h.quota.Usage(r.Context(), userInfo.UserID)
		if err != nil {
			slog.Error("failed to read quota usage", "error", err, "user_id", userInfo.UserID)
		} else {
			used = u
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"plan":        string(userInfo.Plan),
		"daily_used":  used,
		"daily_limit": ratelimit.DailyLimitFor(userInfo.Plan, h.quotaCfg()),
		"caches":      h.orch.CacheStats(),
	})
}
