// Package httpapi serves the query API: request correlation, the query
// endpoints, health, and the server lifecycle around them.
package httpapi

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/metrics"
)

// correlationHeaders lists the inbound headers accepted as correlation
// IDs, in precedence order.
var correlationHeaders = []string{
	"X-Correlation-ID",
	"X-Request-ID",
	"Correlation-ID",
	"Request-ID",
	"X-Trace-ID",
	"Trace-ID",
}

// Correlation adopts the caller's correlation ID or mints a fresh one,
// stores it on the request context, and echoes it back so clients can
// cite it when reporting problems.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		for _, header := range correlationHeaders {
			if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
				id = v
				break
			}
		}
		if id == "" {
			id = logging.NewCorrelationID()
		}
		w.Header().Set("X-Correlation-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}

// statusRecorder captures the status a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger writes one line per request and feeds the HTTP
// metrics.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			duration := time.Since(start)

			logging.WithCorrelation(r.Context(), logger).Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", duration),
				zap.String("remote_addr", r.RemoteAddr),
			)
			metrics.RecordHTTPRequest(routeLabel(r.URL.Path), strconv.Itoa(rec.status), duration)
		})
	}
}

// routeLabel collapses paths to a bounded label set so the metric's
// cardinality stays fixed no matter what callers request.
func routeLabel(path string) string {
	switch {
	case path == "/api/query":
		return "/api/query"
	case strings.HasPrefix(path, "/api/query/landmark/"):
		return "/api/query/landmark/{lpNumber}"
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health"
	case path == "/metrics":
		return "/metrics"
	default:
		return "other"
	}
}

// Recover turns a handler panic into a logged 500 instead of a dropped
// connection.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logging.WithCorrelation(r.Context(), logger).Error("handler panic",
						zap.Any("panic", v),
						zap.ByteString("stack", debug.Stack()),
					)
					writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Chain wraps h with the middlewares, first argument outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
