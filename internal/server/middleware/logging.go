package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Logging records one structured line per request. Server-side failures are
// logged at error level so they stand out of the poll chatter.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &loggedResponse{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(lw, r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", lw.status),
				slog.Int64("bytes", lw.written),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
			}
			if q := r.URL.RawQuery; q != "" {
				attrs = append(attrs, slog.String("query", q))
			}
			if lw.status >= http.StatusInternalServerError {
				logger.ErrorContext(r.Context(), "http request", attrs...)
				return
			}
			logger.InfoContext(r.Context(), "http request", attrs...)
		})
	}
}

// loggedResponse captures the status and body size on their way out.
type loggedResponse struct {
	http.ResponseWriter
	status  int
	written int64
	sent    bool
}

func (lw *loggedResponse) WriteHeader(code int) {
	if !lw.sent {
		lw.status = code
		lw.sent = true
	}
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *loggedResponse) Write(b []byte) (int, error) {
	lw.sent = true
	n, err := lw.ResponseWriter.Write(b)
	lw.written += int64(n)
	return n, err
}

// Hijack lets the WebSocket upgrade reach the raw connection through the
// wrapper.
func (lw *loggedResponse) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer is not hijackable")
	}
	return h.Hijack()
}
