package domain

import (
	"net/http"
	"strings"
	"time"
)

type RecordKind string

const (
	RecordRequest  RecordKind = "request"
	RecordResponse RecordKind = "response"
)

// AuditRecord is one line of the audit log. Token fields stay nil until counted.
type AuditRecord struct {
	Timestamp        time.Time         `json:"timestamp"`
	Body             any               `json:"body,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	PromptTokens     *int              `json:"promptTokens,omitempty"`
	CompletionTokens *int              `json:"completionTokens,omitempty"`
	TotalTokens      *int              `json:"totalTokens,omitempty"`
	Type             RecordKind        `json:"type"`
	RequestID        string            `json:"requestId"`
	Model            string            `json:"model,omitempty"`
	Provider         string            `json:"provider,omitempty"`
	UpstreamModel    string            `json:"upstreamModel,omitempty"`
	Method           string            `json:"method,omitempty"`
	Path             string            `json:"path,omitempty"`
	URL              string            `json:"url,omitempty"`
	Error            string            `json:"error,omitempty"`
	Status           int               `json:"status,omitempty"`
	DurationMs       int64             `json:"durationMs,omitempty"`
}

// TokenUpdate is a partial update; nil fields are left alone
type TokenUpdate struct {
	Prompt     *int
	Completion *int
}

func IntPtr(v int) *int {
	return &v
}

// FlattenHeaders joins multi-value headers for the log, masking any name redact reports as sensitive
func FlattenHeaders(h http.Header, redact func(name string) bool) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for name, values := range h {
		key := http.CanonicalHeaderKey(name)
		if redact != nil && redact(key) {
			out[key] = "[REDACTED]"
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}
