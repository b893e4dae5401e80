package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/thushan/llamatap/internal/adapter/proxy/common"
	"github.com/thushan/llamatap/internal/logger"
)

// Recovery turns a handler panic into a JSON 500 when nothing has been written yet.
// http.ErrAbortHandler is re-raised so the server drops the connection.
func Recovery(log *logger.StyledLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := newResponseWriter(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				log.Error("Recovered from handler panic",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()))

				if wrapped.wroteHeader {
					panic(http.ErrAbortHandler)
				}
				common.WriteError(wrapped, fmt.Errorf("%w: %v", common.ErrInternal, rec), "", "")
			}()
			next.ServeHTTP(wrapped, r)
		})
	}
}
