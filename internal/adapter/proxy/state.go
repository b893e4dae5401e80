package proxy

import (
	"time"

	"github.com/thushan/llamatap/internal/core/ports"
	"github.com/thushan/llamatap/internal/logger"
)

type State string

const (
	StateReceivingBody     State = "receiving_body"
	StateResolved          State = "resolved"
	StateForwarding        State = "forwarding"
	StateStreamingResponse State = "streaming_response"
	StateCompleted         State = "completed"
	StateFailed            State = "failed"
)

// requestState follows one request through the pipeline for logs and metrics
type requestState struct {
	start         time.Time
	upstreamStart time.Time
	logger        *logger.StyledLogger
	state         State
	requestID     string
	model         string
	upstreamModel string
	provider      string
	targetURL     string
	contentType   string
	statusCode    int
	bytes         int64
	headersSent   bool
}

func (s *requestState) transition(next State) {
	s.logger.Debug("Request state", "from", s.state, "to", next, "elapsed", time.Since(s.start))
	s.state = next
}

func (s *requestState) stats() ports.RequestStats {
	end := time.Now()
	return ports.RequestStats{
		StartTime:   s.start,
		EndTime:     end,
		RequestID:   s.requestID,
		Model:       s.model,
		Provider:    s.provider,
		TargetURL:   s.targetURL,
		State:       string(s.state),
		StatusCode:  s.statusCode,
		TotalBytes:  s.bytes,
		Latency:     end.Sub(s.start).Milliseconds(),
		HeadersSent: s.headersSent,
	}
}
