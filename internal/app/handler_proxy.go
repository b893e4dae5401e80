package app

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/thushan/llamatap/internal/adapter/proxy/common"
)

// idleWriter pushes the idle deadline out on every write to the client
type idleWriter struct {
	http.ResponseWriter
	timer       *time.Timer
	timeout     time.Duration
	headersSent atomic.Bool
}

func (w *idleWriter) WriteHeader(status int) {
	w.headersSent.Store(true)
	w.ResponseWriter.WriteHeader(status)
	w.timer.Reset(w.timeout)
}

func (w *idleWriter) Write(b []byte) (int, error) {
	w.headersSent.Store(true)
	n, err := w.ResponseWriter.Write(b)
	w.timer.Reset(w.timeout)
	return n, err
}

func (w *idleWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// proxyHandler runs the pipeline under the inbound idle limit. Going idle before
// headers gives the client a 504; going idle mid-stream drops the connection.
func (a *Application) proxyHandler(w http.ResponseWriter, r *http.Request) {
	timeout := a.config.Server.RequestTimeout
	if timeout <= 0 {
		_, _ = a.proxy.ProxyRequest(r.Context(), w, r)
		return
	}

	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)

	var abort atomic.Bool
	iw := &idleWriter{ResponseWriter: w, timeout: timeout}
	iw.timer = time.AfterFunc(timeout, func() {
		abort.Store(iw.headersSent.Load())
		cancel(common.ErrClientIdle)
	})
	defer iw.timer.Stop()

	_, err := a.proxy.ProxyRequest(ctx, iw, r)
	if err != nil && abort.Load() {
		panic(http.ErrAbortHandler)
	}
}
