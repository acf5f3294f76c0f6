package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/folioworks/vitae/internal/ai"
)

// StatusClientClosedRequest mirrors nginx's non-standard 499 for
// caller-cancelled work.
const StatusClientClosedRequest = 499

// APIError is the JSON error envelope returned to the frontend.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Provider  string `json:"provider,omitempty"`
	ResetAt   string `json:"reset_at,omitempty"`
	Retryable bool   `json:"retryable"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:   message,
			Type:      errType,
			Code:      code,
			RequestID: requestID,
		},
	})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "invalid_session", message)
}

func WriteRateLimitError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded", message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}

func WriteQuotaError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusPaymentRequired, "quota_error", "daily_quota_exceeded", message)
}

func WritePolicyError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, "policy_error", "request_denied", message)
}

// WriteClassifiedError maps a core ClassifiedError onto an HTTP
// response, preserving provider/requestID/resetAt so the frontend can
// render actionable failures.
func WriteClassifiedError(w http.ResponseWriter, cerr *ai.ClassifiedError) {
	status := statusFor(cerr.Code)

	body := APIErrorBody{
		Message:   cerr.Message,
		Type:      typeFor(cerr.Code),
		Code:      string(cerr.Code),
		RequestID: cerr.RequestID,
		Provider:  cerr.Provider,
		Retryable: cerr.Retryable,
	}
	if cerr.ResetAt != nil {
		body.ResetAt = cerr.ResetAt.Format(time.RFC3339)
		retryAfter := int(time.Until(*cerr.ResetAt).Seconds())
		if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", cerr.RequestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{Error: body})
}

func statusFor(code ai.Code) int {
	switch code {
	case ai.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ai.CodeInvalidRequest:
		return http.StatusUnprocessableEntity
	case ai.CodeQueueFull, ai.CodeQueueTimeout:
		return http.StatusServiceUnavailable
	case ai.CodeRequestCancelled:
		return StatusClientClosedRequest
	case ai.CodeAuthenticationError, ai.CodeQuotaExceeded,
		ai.CodeProviderUnavailable, ai.CodeUnknownError:
		// Provider-side failures, credential misconfiguration
		// included, are a bad upstream from the user's viewpoint.
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func typeFor(code ai.Code) string {
	switch code {
	case ai.CodeRateLimitExceeded:
		return "rate_limit_error"
	case ai.CodeInvalidRequest:
		return "invalid_request_error"
	case ai.CodeQueueFull, ai.CodeQueueTimeout:
		return "capacity_error"
	case ai.CodeRequestCancelled:
		return "cancelled_error"
	default:
		return "provider_error"
	}
}
