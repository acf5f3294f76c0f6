package ai

import (
	"fmt"
	"time"
)

// Code tags a classified failure. The set is closed: every failure the
// orchestration layer surfaces carries exactly one of these.
type Code string

const (
	CodeRateLimitExceeded   Code = "RATE_LIMIT_EXCEEDED"
	CodeAuthenticationError Code = "AUTHENTICATION_ERROR"
	CodeQuotaExceeded       Code = "QUOTA_EXCEEDED"
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeUnknownError        Code = "UNKNOWN_ERROR"
	CodeQueueFull           Code = "QUEUE_FULL"
	CodeQueueTimeout        Code = "QUEUE_TIMEOUT"
	CodeRequestCancelled    Code = "REQUEST_CANCELLED"
)

// ClassifiedError is the single error shape callers see. It is produced
// fresh for every failure and never mutated; checks compare the Code
// field rather than concrete types.
type ClassifiedError struct {
	Code      Code
	Retryable bool
	Provider  string
	RequestID string
	Message   string

	// ResetAt is only meaningful for RATE_LIMIT_EXCEEDED.
	ResetAt *time.Time
}

func (e *ClassifiedError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s (provider %s): %s", e.Code, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// QueueFullError builds the backpressure error returned when a provider
// queue is at its depth bound.
func QueueFullError(provider, requestID string, depth int) *ClassifiedError {
	return &ClassifiedError{
		Code:      CodeQueueFull,
		Retryable: true,
		Provider:  provider,
		RequestID: requestID,
		Message:   fmt.Sprintf("queue depth limit reached (%d pending)", depth),
	}
}

// QueueTimeoutError builds the error for an entry that waited in queue
// longer than the configured maximum.
func QueueTimeoutError(provider, requestID string, waited time.Duration) *ClassifiedError {
	return &ClassifiedError{
		Code:      CodeQueueTimeout,
		Retryable: true,
		Provider:  provider,
		RequestID: requestID,
		Message:   fmt.Sprintf("timed out after %s in queue", waited.Round(time.Millisecond)),
	}
}

// CancelledError builds the terminal error for a caller cancellation.
func CancelledError(requestID string) *ClassifiedError {
	return &ClassifiedError{
		Code:      CodeRequestCancelled,
		Retryable: false,
		RequestID: requestID,
		Message:   "request cancelled by caller",
	}
}
