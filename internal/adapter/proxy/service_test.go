package proxy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/thushan/llamatap/internal/adapter/auditlog"
	"github.com/thushan/llamatap/internal/adapter/extractcache"
	"github.com/thushan/llamatap/internal/adapter/proxy/common"
	"github.com/thushan/llamatap/internal/adapter/registry"
	"github.com/thushan/llamatap/internal/adapter/tlspolicy"
	"github.com/thushan/llamatap/internal/adapter/tokens"
	"github.com/thushan/llamatap/internal/core/domain"
	"github.com/thushan/llamatap/internal/core/ports"
	"github.com/thushan/llamatap/internal/logger"
	"github.com/thushan/llamatap/theme"
)

func createTestLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Default())
}

// wordEncoder counts whitespace separated words so expected counts are easy to read
type wordEncoder struct{}

func (wordEncoder) Count(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

type auditBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (a *auditBuffer) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.Write(p)
}

func (a *auditBuffer) Close() error { return nil }

func (a *auditBuffer) lines(t *testing.T) []map[string]any {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(a.buf.Bytes()))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, jsoniter.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

type harness struct {
	service     *Service
	counter     *tokens.Counter
	audit       *auditlog.Logger
	auditOut    *auditBuffer
	extractions *extractcache.Cache[string, domain.Extraction]
}

func newHarness(t *testing.T, upstreamURL string, cfg *Configuration) *harness {
	t.Helper()
	return newHarnessWithStore(t, upstreamURL, cfg, nil)
}

// newHarnessWithStore lets a test wrap the extraction cache the service reads and writes
func newHarnessWithStore(t *testing.T, upstreamURL string, cfg *Configuration, wrap func(*extractcache.Cache[string, domain.Extraction]) ports.ExtractionStore) *harness {
	t.Helper()
	log := createTestLogger()

	reg := registry.New(log)
	require.NoError(t, reg.Load(domain.ProvidersConfig{
		"ollama": {
			"baseUrl": upstreamURL,
			"models": map[string]any{
				"gpt-oss": map[string]any{"modelName": "gpt-oss:20b", "temperature": 0.7},
				"llama":   "llama3.1:8b",
			},
		},
	}))

	counter := tokens.NewCounter(tokens.Config{
		Factory: func(string) (tokens.Encoder, error) { return wordEncoder{}, nil },
	}, log)

	out := &auditBuffer{}
	audit := auditlog.NewWithWriter(out, time.Minute, log)
	extractions := extractcache.New[string, domain.Extraction](extractcache.Config[string]{Capacity: 100})
	t.Cleanup(extractions.Close)

	var store ports.ExtractionStore = extractions
	if wrap != nil {
		store = wrap(extractions)
	}

	svc, err := NewService(Dependencies{
		Resolver:    reg,
		Transports:  tlspolicy.NewPolicy(nil, tlspolicy.TransportOptions{}, log),
		Tokens:      counter,
		Audit:       audit,
		Extractions: store,
	}, cfg, log)
	require.NoError(t, err)

	return &harness{service: svc, counter: counter, audit: audit, auditOut: out, extractions: extractions}
}

// settle waits for deferred token work, then flushes whatever the audit log still holds
func (h *harness) settle(t *testing.T) []map[string]any {
	t.Helper()
	h.counter.Wait()
	require.NoError(t, h.audit.Close())
	return h.auditOut.lines(t)
}

func post(t *testing.T, h *harness, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer client-secret")
	rec := httptest.NewRecorder()
	_, err := h.service.ProxyRequest(req.Context(), rec, req)
	return rec, err
}

func TestProxy_RewritesModelAndTemperature(t *testing.T) {
	var (
		mu              sync.Mutex
		upstreamBody    []byte
		upstreamHeaders http.Header
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		upstreamBody, _ = io.ReadAll(r.Body)
		upstreamHeaders = r.Header.Clone()
		mu.Unlock()
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"two words"}}]}`)
	}))
	defer upstream.Close()

	h := newHarness(t, upstream.URL, nil)
	rec, err := post(t, h, `{"model":"ollama/gpt-oss","temperature":-1,"messages":[{"role":"user","content":"say hello please"}]}`)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "gpt-oss:20b", gjson.GetBytes(upstreamBody, "model").String())
	assert.InDelta(t, 0.7, gjson.GetBytes(upstreamBody, "temperature").Float(), 1e-9)
	assert.Equal(t, "say hello please", gjson.GetBytes(upstreamBody, "messages.0.content").String())

	requestID := rec.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Equal(t, requestID, upstreamHeaders.Get("X-Request-Id"))
	assert.Equal(t, "Bearer client-secret", upstreamHeaders.Get("Authorization"))

	lines := h.settle(t)
	require.Len(t, lines, 2)
	assert.Equal(t, "request", lines[0]["type"])
	assert.Equal(t, requestID, lines[0]["requestId"])
	assert.Equal(t, "[REDACTED]", lines[0]["headers"].(map[string]any)["Authorization"])

	assert.Equal(t, "response", lines[1]["type"])
	assert.EqualValues(t, 200, lines[1]["status"])
	assert.EqualValues(t, 3, lines[1]["promptTokens"])
	assert.EqualValues(t, 2, lines[1]["completionTokens"])
	assert.EqualValues(t, 5, lines[1]["totalTokens"])

	_, cached := h.extractions.Get(requestID)
	assert.False(t, cached, "extraction is cleared once both counts are known")
}

func TestProxy_UnknownModel(t *testing.T) {
	var called atomic.Bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer upstream.Close()

	h := newHarness(t, upstream.URL, nil)
	rec, err := post(t, h, `{"model":"nope/missing","messages":[]}`)

	require.Error(t, err)
	assert.False(t, called.Load())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body common.ErrorBody
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "Unsupported or Unknown Model")
	assert.Equal(t, "nope/missing", body.Model)
	assert.Equal(t, 500, body.Status)

	assert.Empty(t, h.settle(t), "nothing is audited before a model resolves")
}

func TestProxy_InvalidBody(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1", nil)

	for _, body := range []string{`{"model":`, ``, `not json`} {
		rec, err := post(t, h, body)
		assert.ErrorIs(t, err, common.ErrInvalidBody, body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, body)
	}
}

func TestProxy_MissingModelIsUnknownModel(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1", nil)

	for _, body := range []string{`{"messages":[]}`, `{"model":7,"messages":[]}`} {
		rec, err := post(t, h, body)
		assert.ErrorIs(t, err, domain.ErrUnknownModel, body)
		assert.NotErrorIs(t, err, common.ErrInvalidBody, body)
		assert.Equal(t, "unknown_model", common.FailureKind(err), body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, body)

		var resp common.ErrorBody
		require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, "Unsupported or Unknown Model", body)
	}
}

func TestProxy_BodyTooLarge(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1", &Configuration{MaxBodySize: 16})
	rec, err := post(t, h, `{"model":"ollama/llama","messages":[{"role":"user","content":"long enough"}]}`)
	assert.ErrorIs(t, err, common.ErrBodyTooLarge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestProxy_UpstreamErrorRelayed(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":"overloaded"}`)
	}))
	defer upstream.Close()

	h := newHarness(t, upstream.URL, nil)
	rec, err := post(t, h, `{"model":"ollama/llama","messages":[{"role":"user","content":"hi"}]}`)

	var statusErr *common.UpstreamStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, `{"error":"overloaded"}`, rec.Body.String())
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))

	lines := h.settle(t)
	require.Len(t, lines, 2)
	assert.EqualValues(t, 503, lines[1]["status"])
	assert.EqualValues(t, 0, lines[1]["completionTokens"])
	assert.EqualValues(t, 1, lines[1]["promptTokens"])
	assert.Equal(t, map[string]any{"error": "overloaded"}, lines[1]["body"])
}

func TestProxy_UpstreamErrorWithUndecodableBodyKeepsStatus(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantEncoding string
	}{
		{name: "empty gzip body", body: "", wantEncoding: ""},
		{name: "not actually gzip", body: "upstream gave up", wantEncoding: "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", "gzip")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer upstream.Close()

			h := newHarness(t, upstream.URL, nil)
			rec, err := post(t, h, `{"model":"ollama/llama","messages":[{"role":"user","content":"hi"}]}`)

			var statusErr *common.UpstreamStatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
			assert.Equal(t, tt.wantEncoding, rec.Header().Get("Content-Encoding"))

			lines := h.settle(t)
			require.Len(t, lines, 2)
			assert.EqualValues(t, 503, lines[1]["status"])
		})
	}
}

// promptOverrideStore hands back a different prompt than the one stored, so a count can be
// traced to the cache rather than to the request body
type promptOverrideStore struct {
	*extractcache.Cache[string, domain.Extraction]
	prompt string
	gets   atomic.Int32
}

func (s *promptOverrideStore) Get(requestID string) (domain.Extraction, bool) {
	s.gets.Add(1)
	e, ok := s.Cache.Get(requestID)
	if ok {
		e.Prompt = s.prompt
	}
	return e, ok
}

func TestProxy_CountsFromCachedExtraction(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"two words"}}]}`)
	}))
	defer upstream.Close()

	var store *promptOverrideStore
	h := newHarnessWithStore(t, upstream.URL, nil, func(c *extractcache.Cache[string, domain.Extraction]) ports.ExtractionStore {
		store = &promptOverrideStore{Cache: c, prompt: "alpha beta gamma delta"}
		return store
	})

	_, err := post(t, h, `{"model":"ollama/llama","messages":[{"role":"user","content":"hi"}]}`)
	require.NoError(t, err)

	lines := h.settle(t)
	require.Len(t, lines, 2)
	assert.EqualValues(t, 4, lines[1]["promptTokens"], "prompt count comes from the cached text")
	assert.EqualValues(t, 2, lines[1]["completionTokens"])
	assert.EqualValues(t, 6, lines[1]["totalTokens"])
	assert.GreaterOrEqual(t, store.gets.Load(), int32(2))
	assert.Zero(t, h.extractions.Len(), "entry is cleared once both counts are known")
}

func TestProxy_StreamsSSEAndCountsDeltas(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, word := range []string{"one ", "two ", "three"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", word)
			flusher.Flush()
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	h := newHarness(t, upstream.URL, &Configuration{StreamBufferSize: 16})
	rec, err := post(t, h, `{"model":"ollama/llama","stream":true,"messages":[{"role":"user","content":"count"}]}`)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "data: [DONE]")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	lines := h.settle(t)
	require.Len(t, lines, 2)
	assert.EqualValues(t, 3, lines[1]["completionTokens"])
	assert.IsType(t, "", lines[1]["body"], "SSE capture is kept as text")
}

func TestProxy_DecompressesGzip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = io.WriteString(gz, `{"choices":[{"message":{"content":"zipped reply"}}]}`)
		_ = gz.Close()
	}))
	defer upstream.Close()

	h := newHarness(t, upstream.URL, nil)
	rec, err := post(t, h, `{"model":"ollama/llama","messages":[{"role":"user","content":"hi"}]}`)
	require.NoError(t, err)

	assert.Equal(t, `{"choices":[{"message":{"content":"zipped reply"}}]}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
}

func TestProxy_BinaryAndMalformedCaptureTags(t *testing.T) {
	tests := []struct {
		contentType string
		payload     string
		want        string
	}{
		{"application/octet-stream", "\x00\x01\x02", "<binary-data>"},
		{"application/json", `{"choices":[`, "<malformed-json-data>"},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = io.WriteString(w, tt.payload)
			}))
			defer upstream.Close()

			h := newHarness(t, upstream.URL, nil)
			rec, err := post(t, h, `{"model":"ollama/llama","messages":[]}`)
			require.NoError(t, err)
			assert.Equal(t, tt.payload, rec.Body.String(), "client always gets the raw bytes")

			lines := h.settle(t)
			require.Len(t, lines, 2)
			assert.Equal(t, tt.want, lines[1]["body"])
		})
	}
}

func TestProxy_UpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	h := newHarness(t, upstream.URL, &Configuration{UpstreamTimeout: 50 * time.Millisecond})
	rec, err := post(t, h, `{"model":"ollama/llama","messages":[]}`)

	assert.ErrorIs(t, err, common.ErrUpstreamTimeout)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	lines := h.settle(t)
	require.Len(t, lines, 2)
	assert.EqualValues(t, 504, lines[1]["status"])
}

func TestProxy_UpstreamConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	h := newHarness(t, "http://"+addr, nil)
	rec, err := post(t, h, `{"model":"ollama/llama","messages":[]}`)

	assert.ErrorIs(t, err, common.ErrUpstreamConnection)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProxy_ClientCancelled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer upstream.Close()

	h := newHarness(t, upstream.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"ollama/llama","messages":[]}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	stats, err := h.service.ProxyRequest(ctx, rec, req)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, stats.HeadersSent)
	assert.Equal(t, 0, rec.Body.Len())
}
