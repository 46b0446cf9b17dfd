package middleware

import (
	"log/slog"
	"net/http"
	"time"

	ctxutil "adva/ms_conciliacion_core/internal/infrastructure/context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// statusWriter captures the status code and byte count of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += int64(n)
	return n, err
}

// RequestLogger logs one line per request and threads the request id into the
// context as the correlation id, so pipeline and matcher logs triggered by a
// scan can be tied back to the request. Level follows the status code: 4xx
// logs warn, 5xx logs error.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chimw.GetReqID(r.Context())
			if requestID == "" {
				requestID = ctxutil.NewCorrelationID()
			}
			ctx := ctxutil.WithCorrelationID(r.Context(), requestID)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"status", sw.status,
				"duration_ms", float64(time.Since(start).Nanoseconds()) / 1e6,
				"bytes", sw.bytes,
				"correlation_id", requestID,
			}
			if ua := r.Header.Get("User-Agent"); ua != "" {
				attrs = append(attrs, "user_agent", ua)
			}

			switch {
			case sw.status >= 500:
				log.Error("HTTP request", attrs...)
			case sw.status >= 400:
				log.Warn("HTTP request", attrs...)
			default:
				log.Info("HTTP request", attrs...)
			}
		})
	}
}
