package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/thushan/llamatap/internal/core/domain"
)

var (
	ErrInvalidBody        = errors.New("invalid request body")
	ErrBodyTooLarge       = errors.New("request body too large")
	ErrUnknownModel       = domain.ErrUnknownModel
	ErrUpstreamTimeout    = errors.New("upstream timeout")
	ErrUpstreamConnection = errors.New("upstream connection error")
	ErrInternal           = errors.New("internal proxy error")

	// ErrClientIdle is the cancellation cause when nothing reached the client in time
	ErrClientIdle = errors.New("client connection idle")
)

// UpstreamStatusError carries a non-2xx upstream status that was relayed to the client
type UpstreamStatusError struct {
	Body       []byte
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// StatusFor maps a pipeline error onto the status the client sees
func StatusFor(err error) int {
	var statusErr *UpstreamStatusError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &statusErr):
		return statusErr.StatusCode
	case errors.Is(err, ErrUpstreamTimeout), errors.Is(err, ErrClientIdle):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamConnection):
		return http.StatusBadGateway
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		// invalid body, unknown model and everything internal
		return http.StatusInternalServerError
	}
}

// FailureKind is the short label used for metrics and logs
func FailureKind(err error) string {
	var statusErr *UpstreamStatusError
	switch {
	case errors.As(err, &statusErr):
		return "upstream_status"
	case errors.Is(err, ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.Is(err, ErrUpstreamConnection):
		return "upstream_connection"
	case errors.Is(err, ErrClientIdle):
		return "client_idle"
	case errors.Is(err, ErrUnknownModel):
		return "unknown_model"
	case errors.Is(err, ErrBodyTooLarge):
		return "body_too_large"
	case errors.Is(err, ErrInvalidBody):
		return "invalid_body"
	case errors.Is(err, context.Canceled):
		return "client_cancelled"
	default:
		return "internal"
	}
}

// ClassifyUpstreamError sorts a failed round trip into timeout or connection failure.
// The returned error wraps both the category and a readable description.
func ClassifyUpstreamError(err error, duration, timeout time.Duration) error {
	friendly := MakeUserFriendlyError(err, duration, "upstream", timeout)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, friendly)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, friendly)
	}
	return fmt.Errorf("%w: %w", ErrUpstreamConnection, friendly)
}

// MakeUserFriendlyError converts transport errors into messages that say what probably happened
//
//nolint:gocognit // a flat list of cases reads better than a dispatch table
func MakeUserFriendlyError(err error, duration time.Duration, errorContext string, responseTimeout time.Duration) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled):
		if duration < 2*time.Second {
			return fmt.Errorf("request cancelled after %.1fs - client disconnected immediately", duration.Seconds())
		}
		return fmt.Errorf("request cancelled after %.1fs - client disconnected during processing", duration.Seconds())

	case errors.Is(err, context.DeadlineExceeded):
		if responseTimeout > 0 {
			return fmt.Errorf("request timeout after %.1fs - upstream timeout of %.1fs exceeded",
				duration.Seconds(), responseTimeout.Seconds())
		}
		return fmt.Errorf("request timeout after %.1fs - upstream took too long", duration.Seconds())

	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if errorContext == "streaming" {
			return fmt.Errorf("provider closed connection after %.1fs - response stream ended unexpectedly", duration.Seconds())
		}
		return fmt.Errorf("connection closed after %.1fs - provider ended communication unexpectedly", duration.Seconds())
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial":
			return fmt.Errorf("connection failed after %.1fs - cannot reach provider at %s", duration.Seconds(), opErr.Addr)
		case "read":
			return fmt.Errorf("connection lost after %.1fs while reading response - provider disconnected", duration.Seconds())
		case "write":
			return fmt.Errorf("connection lost after %.1fs while sending request - provider unavailable", duration.Seconds())
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connection refused after %.1fs - provider is not accepting connections", duration.Seconds())
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("connection reset after %.1fs - provider closed the connection", duration.Seconds())
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "no such host"):
		return fmt.Errorf("DNS lookup failed after %.1fs - cannot resolve provider hostname", duration.Seconds())
	case strings.Contains(errStr, "TLS handshake timeout"):
		return fmt.Errorf("TLS handshake timeout after %.1fs", duration.Seconds())
	case strings.Contains(errStr, "certificate"):
		return fmt.Errorf("TLS certificate error after %.1fs - %w", duration.Seconds(), err)
	}

	return fmt.Errorf("request failed after %.1fs: %w", duration.Seconds(), err)
}
