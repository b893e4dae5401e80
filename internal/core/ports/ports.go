package ports

import (
	"context"
	"net/http"
	"time"

	"github.com/thushan/llamatap/internal/core/domain"
)

// ProxyService handles one inbound chat completion end to end
type ProxyService interface {
	ProxyRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) (RequestStats, error)
}

type RequestStats struct {
	StartTime   time.Time
	EndTime     time.Time
	RequestID   string
	Model       string
	Provider    string
	TargetURL   string
	State       string
	StatusCode  int
	TotalBytes  int64
	Latency     int64 // ms
	HeadersSent bool
}

type ModelResolver interface {
	Resolve(identifier string) (*domain.Provider, domain.ModelSpec, error)
}

// TransportProvider hands out the round tripper carrying the TLS decision for a host
type TransportProvider interface {
	TransportFor(hostname string) http.RoundTripper
}

type TokenCounter interface {
	Count(text, model string) int
	CountAsync(text, model string, done func(int))
}

type AuditLogger interface {
	LogRequest(rec *domain.AuditRecord) error
	LogResponse(rec *domain.AuditRecord)
	UpdateTokens(requestID string, update domain.TokenUpdate) bool
}

type ExtractionStore interface {
	Set(requestID string, e domain.Extraction)
	Get(requestID string) (domain.Extraction, bool)
	Delete(requestID string)
}
