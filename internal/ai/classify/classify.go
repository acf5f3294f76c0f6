// Package classify maps raw provider failures onto the closed error
// taxonomy. Classification only labels errors; recovery decisions live
// in the fallback controller.
package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/folioworks/vitae/internal/ai"
	"github.com/folioworks/vitae/internal/ai/provider"
)

// statusTable maps HTTP status codes to taxonomy entries. Statuses not
// listed fall through to the 5xx check and then to UNKNOWN_ERROR.
var statusTable = map[int]struct {
	code      ai.Code
	retryable bool
}{
	http.StatusTooManyRequests: {ai.CodeRateLimitExceeded, true},
	http.StatusUnauthorized:    {ai.CodeAuthenticationError, false},
	http.StatusForbidden:       {ai.CodeQuotaExceeded, false},
	http.StatusBadRequest:      {ai.CodeInvalidRequest, false},
}

// Classify labels a raw failure. It is deterministic and has no state:
// identical input always yields the identical {code, retryable} pair.
func Classify(err error, providerName, requestID string) *ai.ClassifiedError {
	ce := &ai.ClassifiedError{
		Provider:  providerName,
		RequestID: requestID,
		Message:   err.Error(),
	}

	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) {
		if entry, ok := statusTable[httpErr.Status]; ok {
			ce.Code = entry.code
			ce.Retryable = entry.retryable
			if ce.Code == ai.CodeRateLimitExceeded {
				ce.ResetAt = parseRetryAfter(httpErr.RetryAfter)
			}
			return ce
		}
		if httpErr.Status >= 500 {
			ce.Code = ai.CodeProviderUnavailable
			ce.Retryable = true
			return ce
		}
		// Unrecognized status: conservative default so transient
		// unknowns are not permanently fatal.
		ce.Code = ai.CodeUnknownError
		ce.Retryable = true
		return ce
	}

	// Transport-level failures (connection refused, DNS, per-call
	// timeout) mean the provider is unreachable right now.
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		ce.Code = ai.CodeProviderUnavailable
		ce.Retryable = true
		return ce
	}

	ce.Code = ai.CodeUnknownError
	ce.Retryable = true
	return ce
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) *time.Time {
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		t := time.Now().Add(time.Duration(secs) * time.Second)
		return &t
	}
	if t, err := http.ParseTime(v); err == nil {
		return &t
	}
	return nil
}
