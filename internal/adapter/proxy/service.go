// Package proxy forwards chat completions to the resolved provider and taps the response
// stream for the audit log and token accounting without holding up the client.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/thushan/llamatap/internal/adapter/auditlog"
	"github.com/thushan/llamatap/internal/adapter/extract"
	"github.com/thushan/llamatap/internal/adapter/headers"
	"github.com/thushan/llamatap/internal/adapter/proxy/common"
	"github.com/thushan/llamatap/internal/adapter/proxy/core"
	"github.com/thushan/llamatap/internal/core/constants"
	"github.com/thushan/llamatap/internal/core/domain"
	"github.com/thushan/llamatap/internal/core/ports"
	"github.com/thushan/llamatap/internal/logger"
	"github.com/thushan/llamatap/internal/util"
	"github.com/thushan/llamatap/internal/version"
	"github.com/thushan/llamatap/pkg/pool"
)

const (
	DefaultUpstreamTimeout  = 5 * time.Minute
	DefaultStreamBufferSize = 8 * 1024
)

type Configuration struct {
	UpstreamTimeout  time.Duration
	MaxBodySize      int64
	CaptureLimit     int
	StreamBufferSize int
}

func (c *Configuration) GetUpstreamTimeout() time.Duration {
	if c.UpstreamTimeout <= 0 {
		return DefaultUpstreamTimeout
	}
	return c.UpstreamTimeout
}

func (c *Configuration) GetStreamBufferSize() int {
	if c.StreamBufferSize <= 0 {
		return DefaultStreamBufferSize
	}
	return c.StreamBufferSize
}

func (c *Configuration) GetCaptureLimit() int {
	if c.CaptureLimit <= 0 {
		return constants.DefaultCaptureLimit
	}
	return c.CaptureLimit
}

// Dependencies are the swappable collaborators the pipeline reads from
type Dependencies struct {
	Resolver    ports.ModelResolver
	Transports  ports.TransportProvider
	Tokens      ports.TokenCounter
	Audit       ports.AuditLogger
	Extractions ports.ExtractionStore
	Stats       ports.StatsCollector
}

type Service struct {
	deps          Dependencies
	configuration *Configuration
	bufferPool    *pool.Pool[*[]byte]
	logger        *logger.StyledLogger
}

var _ ports.ProxyService = (*Service)(nil)

func NewService(deps Dependencies, configuration *Configuration, log *logger.StyledLogger) (*Service, error) {
	if deps.Resolver == nil || deps.Transports == nil || deps.Tokens == nil || deps.Audit == nil || deps.Extractions == nil {
		return nil, fmt.Errorf("proxy service is missing a dependency")
	}
	if deps.Stats == nil {
		deps.Stats = ports.NoopStatsCollector{}
	}
	if configuration == nil {
		configuration = &Configuration{}
	}

	bufferSize := configuration.GetStreamBufferSize()
	bufferPool, err := pool.NewLitePool(func() *[]byte {
		buf := make([]byte, bufferSize)
		return &buf
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer pool: %w", err)
	}

	return &Service{
		deps:          deps,
		configuration: configuration,
		bufferPool:    bufferPool,
		logger:        log,
	}, nil
}

// ProxyRequest runs one request through ReceivingBody, Resolved, Forwarding and
// StreamingResponse. Errors before the response headers are written to the client as JSON;
// after that they are only logged and returned.
func (s *Service) ProxyRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) (ports.RequestStats, error) {
	st := &requestState{
		start:  time.Now(),
		state:  StateReceivingBody,
		logger: s.logger,
	}

	s.deps.Stats.RecordInFlight(1)
	defer s.deps.Stats.RecordInFlight(-1)

	body, err := s.readBody(w, r)
	if err == nil {
		st.model, err = extract.ModelField(body)
		switch {
		case errors.Is(err, extract.ErrMissingModel), errors.Is(err, extract.ErrModelNotString):
			// no usable model is the same rejection as a model that does not resolve
			err = &domain.ModelError{Err: fmt.Errorf("%w: %w", domain.ErrUnknownModel, err)}
		case err != nil:
			err = fmt.Errorf("%w: %w", common.ErrInvalidBody, err)
		}
	}
	if err != nil {
		return s.fail(w, st, err)
	}

	provider, spec, err := s.deps.Resolver.Resolve(st.model)
	if err != nil {
		return s.fail(w, st, err)
	}

	st.requestID = uuid.NewString()
	st.provider = provider.Name
	st.upstreamModel = spec.ModelName
	st.logger = s.logger.WithRequestID(st.requestID).With("model", st.model, "provider", provider.Name)
	st.transition(StateResolved)

	st.targetURL, err = util.JoinUpstreamURL(provider.BaseURL, provider.CompletionsPath)
	if err != nil {
		return s.fail(w, st, fmt.Errorf("%w: bad upstream url for %s: %w", common.ErrInternal, provider.Name, err))
	}

	s.recordRequest(r, st, body)
	s.schedulePromptCount(st, body)

	outbound, err := core.RewriteBody(body, spec)
	if err != nil {
		return s.failAfterRequest(w, st, fmt.Errorf("%w: %w", common.ErrInternal, err))
	}

	return s.forward(ctx, w, r, st, provider, outbound)
}

func (s *Service) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidBody, extract.ErrEmptyBody)
	}
	reader := r.Body
	if s.configuration.MaxBodySize > 0 {
		reader = http.MaxBytesReader(w, r.Body, s.configuration.MaxBodySize)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit is %d bytes", common.ErrBodyTooLarge, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidBody, err)
	}
	return body, nil
}

// recordRequest writes the request line before anything goes upstream so it always precedes the response line
func (s *Service) recordRequest(r *http.Request, st *requestState, body []byte) {
	capture := core.NewLimitedCapture(s.configuration.GetCaptureLimit())
	_, _ = capture.Write(body)

	rec := &domain.AuditRecord{
		Timestamp:     st.start.UTC(),
		RequestID:     st.requestID,
		Model:         st.model,
		Provider:      st.provider,
		UpstreamModel: st.upstreamModel,
		Method:        r.Method,
		Path:          r.URL.Path,
		URL:           st.targetURL,
		Headers:       domain.FlattenHeaders(r.Header, auditlog.Redact),
		Body:          core.LoggableBody(capture.Bytes(), constants.ContentTypeJSON),
	}
	if err := s.deps.Audit.LogRequest(rec); err != nil {
		st.logger.Warn("Failed to write audit request", "error", err)
	}
}

func (s *Service) schedulePromptCount(st *requestState, body []byte) {
	prompt := extract.PromptText(body)
	s.deps.Extractions.Set(st.requestID, domain.Extraction{Model: st.upstreamModel, Prompt: prompt})
	s.countCached(st, ports.TokenKindPrompt, prompt)
}

// countCached counts the text cached for the request, so logging and accounting share one
// extraction. fallback is only used when the entry was evicted before it could be read.
func (s *Service) countCached(st *requestState, kind ports.TokenKind, fallback string) {
	text, encoderModel := fallback, st.upstreamModel
	if cached, ok := s.deps.Extractions.Get(st.requestID); ok {
		encoderModel = cached.Model
		if kind == ports.TokenKindPrompt {
			text = cached.Prompt
		} else if cached.HasCompletion {
			text = cached.Completion
		}
	} else {
		st.logger.Debug("Extraction evicted before counting", "kind", kind)
	}

	requestID, model := st.requestID, st.model
	s.deps.Tokens.CountAsync(text, encoderModel, func(n int) {
		s.deps.Stats.RecordTokens(kind, model, n)
		var update domain.TokenUpdate
		if kind == ports.TokenKindPrompt {
			update.Prompt = domain.IntPtr(n)
		} else {
			update.Completion = domain.IntPtr(n)
		}
		s.mergeTokens(requestID, update)
	})
}

func (s *Service) mergeTokens(requestID string, update domain.TokenUpdate) {
	if s.deps.Audit.UpdateTokens(requestID, update) {
		s.deps.Extractions.Delete(requestID)
	}
}

func (s *Service) forward(ctx context.Context, w http.ResponseWriter, r *http.Request, st *requestState, provider *domain.Provider, outbound []byte) (ports.RequestStats, error) {
	st.transition(StateForwarding)

	timeout := s.configuration.GetUpstreamTimeout()
	upstreamCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(upstreamCtx, http.MethodPost, st.targetURL, bytes.NewReader(outbound))
	if err != nil {
		return s.failAfterRequest(w, st, fmt.Errorf("%w: %w", common.ErrInternal, err))
	}

	core.CopyHeaders(req.Header, r.Header)
	if req.Header.Get(constants.ContentTypeHeader) == "" {
		req.Header.Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	}
	if req.Header.Get(constants.HeaderUserAgent) == "" {
		req.Header.Set(constants.HeaderUserAgent, version.UserAgent())
	}
	if !provider.HeaderRules.IsEmpty() {
		headers.Apply(req.Header, provider)
	}
	core.SetRequestID(req.Header, st.requestID)

	client := &http.Client{
		Transport: s.deps.Transports.TransportFor(provider.Hostname()),
		// redirects are relayed, not followed
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	st.upstreamStart = time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, common.ErrClientIdle) {
			return s.failAfterRequest(w, st, cause)
		}
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return s.failAfterRequest(w, st, fmt.Errorf("client went away: %w", ctx.Err()))
		}
		return s.failAfterRequest(w, st, common.ClassifyUpstreamError(err, time.Since(st.upstreamStart), timeout))
	}
	defer resp.Body.Close()

	s.deps.Stats.RecordUpstreamLatency(provider.Name, time.Since(st.upstreamStart))
	st.statusCode = resp.StatusCode
	st.contentType = resp.Header.Get(constants.ContentTypeHeader)

	encoding := resp.Header.Get(constants.ContentEncodingHeader)
	if !util.IsSuccessStatus(resp.StatusCode) {
		return s.relayUpstreamError(w, st, resp, encoding)
	}

	dec, err := core.NewDecoder(encoding, resp.Body)
	if err != nil {
		return s.failAfterRequest(w, st, fmt.Errorf("%w: %w", common.ErrUpstreamConnection, err))
	}
	defer dec.Close()

	return s.stream(upstreamCtx, w, st, resp, dec)
}

// relayUpstreamError passes a non-2xx response through with its own status. The body is
// decompressed when it can be; otherwise it goes back exactly as the upstream sent it.
func (s *Service) relayUpstreamError(w http.ResponseWriter, st *requestState, resp *http.Response, encoding string) (ports.RequestStats, error) {
	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		st.logger.Warn("Upstream error body was cut short", "error", readErr)
	}
	buffered, decoded := decodeErrorBody(encoding, raw)
	if !decoded {
		st.logger.Debug("Upstream error body could not be decoded, relaying as sent", "encoding", encoding)
	}

	statusErr := &common.UpstreamStatusError{StatusCode: resp.StatusCode, Body: buffered}
	st.logger.WarnWithProvider("Upstream returned an error status", st.provider, "status", resp.StatusCode)

	core.CopyResponseHeaders(w.Header(), resp.Header)
	if !decoded {
		w.Header().Set(constants.ContentEncodingHeader, encoding)
	}
	core.SetRequestID(w.Header(), st.requestID)
	w.WriteHeader(resp.StatusCode)
	st.headersSent = true
	written, _ := w.Write(buffered)
	st.bytes = int64(written)

	capture := core.NewLimitedCapture(s.configuration.GetCaptureLimit())
	_, _ = capture.Write(buffered)
	s.deps.Audit.LogResponse(&domain.AuditRecord{
		Timestamp:        time.Now().UTC(),
		RequestID:        st.requestID,
		Model:            st.model,
		Provider:         st.provider,
		UpstreamModel:    st.upstreamModel,
		Status:           resp.StatusCode,
		Error:            statusErr.Error(),
		DurationMs:       time.Since(st.start).Milliseconds(),
		Headers:          domain.FlattenHeaders(resp.Header, auditlog.Redact),
		Body:             core.LoggableBody(capture.Bytes(), st.contentType),
		CompletionTokens: domain.IntPtr(0),
	})
	s.deps.Extractions.Delete(st.requestID)

	return s.finish(st, StateFailed, statusErr)
}

func (s *Service) stream(ctx context.Context, w http.ResponseWriter, st *requestState, resp *http.Response, body io.Reader) (ports.RequestStats, error) {
	st.transition(StateStreamingResponse)

	core.CopyResponseHeaders(w.Header(), resp.Header)
	core.SetRequestID(w.Header(), st.requestID)
	w.WriteHeader(resp.StatusCode)
	st.headersSent = true

	buffer := s.bufferPool.Get()
	defer s.bufferPool.Put(buffer)

	capture := core.NewLimitedCapture(s.configuration.GetCaptureLimit())
	var completion bytes.Buffer

	result := core.Tee(ctx, w, body, *buffer, capture, &completion)
	st.bytes = result.Bytes
	s.deps.Stats.RecordBytes(st.provider, result.Bytes)

	streamErr := result.Err()
	if cause := context.Cause(ctx); streamErr != nil && errors.Is(cause, common.ErrClientIdle) {
		streamErr = cause
	} else if streamErr != nil {
		streamErr = common.MakeUserFriendlyError(streamErr, time.Since(st.upstreamStart), "streaming", s.configuration.GetUpstreamTimeout())
		st.logger.Warn("Response stream ended early", "error", streamErr, "bytes", result.Bytes, "reads", result.ReadCount)
	}

	if capture.Truncated() {
		st.logger.Debug("Response capture truncated for audit", "limit", s.configuration.GetCaptureLimit())
	}

	rec := &domain.AuditRecord{
		Timestamp:     time.Now().UTC(),
		RequestID:     st.requestID,
		Model:         st.model,
		Provider:      st.provider,
		UpstreamModel: st.upstreamModel,
		Status:        resp.StatusCode,
		DurationMs:    time.Since(st.start).Milliseconds(),
		Headers:       domain.FlattenHeaders(resp.Header, auditlog.Redact),
		Body:          core.LoggableBody(capture.Bytes(), st.contentType),
	}
	if streamErr != nil {
		rec.Error = streamErr.Error()
	}
	s.deps.Audit.LogResponse(rec)

	text := extract.CompletionText(completion.Bytes(), st.contentType)
	cached, ok := s.deps.Extractions.Get(st.requestID)
	if !ok {
		cached = domain.Extraction{Model: st.upstreamModel}
	}
	cached.Completion = text
	cached.HasCompletion = true
	s.deps.Extractions.Set(st.requestID, cached)
	s.countCached(st, ports.TokenKindCompletion, text)

	if streamErr != nil {
		return s.finish(st, StateFailed, streamErr)
	}
	return s.finish(st, StateCompleted, nil)
}

// fail handles errors before a request id exists, so nothing has been audited yet
func (s *Service) fail(w http.ResponseWriter, st *requestState, err error) (ports.RequestStats, error) {
	st.statusCode = common.WriteError(w, err, st.model, st.requestID)
	st.headersSent = true
	return s.finish(st, StateFailed, err)
}

// failAfterRequest also closes out the audit request line with an error response line
func (s *Service) failAfterRequest(w http.ResponseWriter, st *requestState, err error) (ports.RequestStats, error) {
	status := common.StatusFor(err)
	s.deps.Audit.LogResponse(&domain.AuditRecord{
		Timestamp:        time.Now().UTC(),
		RequestID:        st.requestID,
		Model:            st.model,
		Provider:         st.provider,
		UpstreamModel:    st.upstreamModel,
		Status:           status,
		Error:            err.Error(),
		DurationMs:       time.Since(st.start).Milliseconds(),
		CompletionTokens: domain.IntPtr(0),
	})
	s.deps.Extractions.Delete(st.requestID)

	if errors.Is(err, context.Canceled) {
		st.statusCode = status
		return s.finish(st, StateFailed, err)
	}
	return s.fail(w, st, err)
}

// decodeErrorBody reports false when the bytes do not match their declared encoding
func decodeErrorBody(encoding string, raw []byte) ([]byte, bool) {
	if len(raw) == 0 {
		return raw, true
	}
	dec, err := core.NewDecoder(encoding, bytes.NewReader(raw))
	if err != nil {
		return raw, false
	}
	defer dec.Close()

	decoded, err := io.ReadAll(dec)
	if err != nil {
		return raw, false
	}
	return decoded, true
}

func (s *Service) finish(st *requestState, final State, err error) (ports.RequestStats, error) {
	st.transition(final)
	stats := st.stats()

	if st.provider != "" {
		s.deps.Stats.RecordRequest(st.provider, st.model, st.statusCode, time.Duration(stats.Latency)*time.Millisecond)
	}
	if err != nil {
		s.deps.Stats.RecordFailure(common.FailureKind(err))
		st.logger.Error("Proxy request failed", "error", err, "status", st.statusCode, "state", final)
		return stats, err
	}

	st.logger.Info("Proxy request completed",
		"status", st.statusCode,
		"bytes", stats.TotalBytes,
		"latency_ms", stats.Latency)
	return stats, nil
}
