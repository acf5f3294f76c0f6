package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/folioworks/vitae/internal/ai"
)

func TestWriteClassifiedError_StatusMapping(t *testing.T) {
	tests := []struct {
		code       ai.Code
		wantStatus int
		wantType   string
	}{
		{ai.CodeRateLimitExceeded, http.StatusTooManyRequests, "rate_limit_error"},
		{ai.CodeInvalidRequest, http.StatusUnprocessableEntity, "invalid_request_error"},
		{ai.CodeQueueFull, http.StatusServiceUnavailable, "capacity_error"},
		{ai.CodeQueueTimeout, http.StatusServiceUnavailable, "capacity_error"},
		{ai.CodeRequestCancelled, StatusClientClosedRequest, "cancelled_error"},
		{ai.CodeAuthenticationError, http.StatusBadGateway, "provider_error"},
		{ai.CodeQuotaExceeded, http.StatusBadGateway, "provider_error"},
		{ai.CodeProviderUnavailable, http.StatusBadGateway, "provider_error"},
		{ai.CodeUnknownError, http.StatusBadGateway, "provider_error"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteClassifiedError(rec, &ai.ClassifiedError{
			Code:      tt.code,
			Retryable: true,
			Provider:  "openai",
			RequestID: "req-1",
			Message:   "boom",
		})

		if rec.Code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.code, rec.Code, tt.wantStatus)
		}
		var env APIError
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s: bad JSON: %v", tt.code, err)
		}
		if env.Error.Code != string(tt.code) {
			t.Errorf("%s: body code = %q", tt.code, env.Error.Code)
		}
		if env.Error.Type != tt.wantType {
			t.Errorf("%s: type = %q, want %q", tt.code, env.Error.Type, tt.wantType)
		}
		if env.Error.RequestID != "req-1" || env.Error.Provider != "openai" {
			t.Errorf("%s: identity fields not preserved: %+v", tt.code, env.Error)
		}
	}
}

func TestWriteClassifiedError_RetryAfter(t *testing.T) {
	resetAt := time.Now().Add(30 * time.Second)
	rec := httptest.NewRecorder()
	WriteClassifiedError(rec, &ai.ClassifiedError{
		Code:      ai.CodeRateLimitExceeded,
		Retryable: true,
		RequestID: "req-1",
		Message:   "slow down",
		ResetAt:   &resetAt,
	})

	if got := rec.Header().Get("Retry-After"); got == "" {
		t.Error("expected Retry-After header")
	}
	var env APIError
	json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Error.ResetAt == "" {
		t.Error("expected reset_at in body")
	}
}

func TestWriteError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteQuotaError(rec, "req-9", "daily limit reached")

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req-9" {
		t.Errorf("X-Request-ID = %q", got)
	}
	var env APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Error.Type != "quota_error" || env.Error.Code != "daily_quota_exceeded" {
		t.Errorf("envelope = %+v", env.Error)
	}
}
