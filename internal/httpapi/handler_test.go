package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/folioworks/vitae/internal/ai"
	"github.com/folioworks/vitae/internal/auth"
	"github.com/folioworks/vitae/internal/config"
	"github.com/folioworks/vitae/internal/orchestrator"
	"github.com/folioworks/vitae/internal/policy"
)

func newProviderServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 5, "total_tokens": 10},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHandler(t *testing.T, baseURL string, eval *policy.Evaluator) *Handler {
	t.Helper()
	cfg := config.AIConfig{
		Providers: map[string]config.ProviderConfig{
			"openai": {
				Type:               "openai",
				BaseURL:            baseURL,
				APIKey:             "test-key",
				Model:              "test-model",
				RequestsPerMinute:  100,
				ConcurrentRequests: 4,
				Timeout:            5 * time.Second,
			},
		},
		Fallback: config.FallbackConfig{RetryAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Order: []string{"openai"}},
		Queue:    config.QueueConfig{MaxDepth: 10, WaitTimeout: time.Second},
		Caches: map[string]config.CacheConfig{
			"ai_responses": {MaxSize: 10, DefaultTTL: time.Minute, CleanupInterval: time.Minute},
			"user_context": {MaxSize: 10, DefaultTTL: time.Minute, CleanupInterval: time.Minute},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := orchestrator.New(cfg, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(orch.Stop)
	return NewHandler(orch, nil, eval, nil, func() config.QuotaConfig {
		return config.QuotaConfig{RequestsPerMinute: 30, FreeDailyLimit: 50, ProDailyLimit: 1000}
	})
}

func authedRequest(method, path, body string, plan auth.Plan) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	return req.WithContext(auth.ContextWithUser(req.Context(), &auth.UserInfo{
		SessionID: "sess-1", UserID: "user-1", Email: "a@example.com", Plan: plan,
	}))
}

func TestGenerateSuggestion(t *testing.T) {
	srv := newProviderServer(t, "use action verbs")
	h := newTestHandler(t, srv.URL, nil)

	rec := httptest.NewRecorder()
	h.GenerateSuggestion(rec, authedRequest(http.MethodPost, "/v1/ai/suggestions",
		`{"prompt":"improve my experience section","context":{"role":"engineer"}}`, auth.PlanFree))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body aiResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Content != "use action verbs" {
		t.Errorf("content = %q", body.Content)
	}
	if body.Kind != string(ai.KindContentGeneration) {
		t.Errorf("kind = %q", body.Kind)
	}
	if body.Provider != "openai" {
		t.Errorf("provider = %q", body.Provider)
	}
}

func TestServeAI_Unauthenticated(t *testing.T) {
	srv := newProviderServer(t, "x")
	h := newTestHandler(t, srv.URL, nil)

	rec := httptest.NewRecorder()
	h.AnalyzeResume(rec, httptest.NewRequest(http.MethodPost, "/v1/ai/analysis", strings.NewReader(`{"prompt":"p"}`)))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestServeAI_BadBody(t *testing.T) {
	srv := newProviderServer(t, "x")
	h := newTestHandler(t, srv.URL, nil)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing prompt", `{"context":{}}`},
		{"empty prompt", `{"prompt":""}`},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.AnalyzeResume(rec, authedRequest(http.MethodPost, "/v1/ai/analysis", tt.body, auth.PlanFree))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestServeAI_PolicyDenial(t *testing.T) {
	srv := newProviderServer(t, "x")
	eval := policy.NewEvaluator(func() config.PolicyConfig {
		return config.PolicyConfig{Enabled: true, EvaluationTimeout: 100 * time.Millisecond}
	})
	err := eval.LoadFromModules(map[string]string{"usage.rego": `
package vitae.policy

import rego.v1

default allow := false
default reason := "comparisons require a pro plan"

allow if input.user.plan == "pro"
allow if input.request.kind != "comparison"
`})
	if err != nil {
		t.Fatal(err)
	}
	h := newTestHandler(t, srv.URL, eval)

	rec := httptest.NewRecorder()
	h.CompareResumes(rec, authedRequest(http.MethodPost, "/v1/ai/comparisons", `{"prompt":"a vs b"}`, auth.PlanFree))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("free comparison: status = %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.CompareResumes(rec, authedRequest(http.MethodPost, "/v1/ai/comparisons", `{"prompt":"a vs b"}`, auth.PlanPro))
	if rec.Code != http.StatusOK {
		t.Errorf("pro comparison: status = %d, want 200", rec.Code)
	}
}

func TestUsage(t *testing.T) {
	srv := newProviderServer(t, "x")
	h := newTestHandler(t, srv.URL, nil)

	rec := httptest.NewRecorder()
	h.Usage(rec, authedRequest(http.MethodGet, "/v1/ai/usage", "", auth.PlanPro))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["plan"] != "pro" {
		t.Errorf("plan = %v", body["plan"])
	}
	if body["daily_limit"] != float64(1000) {
		t.Errorf("daily_limit = %v, want 1000", body["daily_limit"])
	}
	if _, ok := body["caches"]; !ok {
		t.Error("usage payload missing cache stats")
	}
}
