package ai

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Kind describes what the model is being asked to do.
type Kind string

const (
	KindContentGeneration Kind = "content-generation"
	KindAnalysis          Kind = "analysis"
	KindContextUpdate     Kind = "context-update"
	KindComparison        Kind = "comparison"
)

// Valid reports whether k is one of the known request kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindContentGeneration, KindAnalysis, KindContextUpdate, KindComparison:
		return true
	}
	return false
}

// Cacheable reports whether responses for this kind may be served from
// the response cache. Context updates are per-owner state, not
// fingerprint-addressed results.
func (k Kind) Cacheable() bool {
	return k != KindContextUpdate
}

// Priority orders pending requests. Higher priorities are always
// dispatched before lower ones, regardless of arrival order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// ParsePriority maps the wire form to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch s {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Request is a single unit of AI work. It is immutable after creation;
// the queue entry that wraps it owns it exclusively until dispatch.
type Request struct {
	ID          string
	Kind        Kind
	Prompt      string
	Context     map[string]any
	OwnerID     string
	Priority    Priority
	SubmittedAt time.Time
}

// NewRequest builds a Request with a fresh ID and submission timestamp.
func NewRequest(kind Kind, prompt string, context map[string]any, ownerID string, priority Priority) *Request {
	return &Request{
		ID:          newRequestID(),
		Kind:        kind,
		Prompt:      prompt,
		Context:     context,
		OwnerID:     ownerID,
		Priority:    priority,
		SubmittedAt: time.Now(),
	}
}

func newRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("ai_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}

// Response is a completed provider result.
type Response struct {
	RequestID string
	Provider  string
	Model     string
	Content   string
	Usage     Usage
	Cached    bool
	Duration  time.Duration
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
