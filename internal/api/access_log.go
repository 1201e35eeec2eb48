package api

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"time"

	"grimm.is/speedctl/internal/clock"
)

// accessLogWriter wraps http.ResponseWriter to capture the status code
type accessLogWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *accessLogWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *accessLogWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

func (rw *accessLogWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *accessLogWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// accessLogger logs every request and records it in the API metrics. The
// metrics path label is the matched route pattern, never the raw URL.
func (s *Server) accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clock.Now()

		rw := &accessLogWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		route := s.routeLabel(r)

		if s.metrics != nil {
			s.metrics.RecordAPIRequest(r.Method, route, rw.status, duration.Seconds())
		}

		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			return
		}

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"remote", getClientIP(r),
			"status", rw.status,
			"bytes", rw.size,
			"duration", duration.Round(time.Millisecond),
			"request_id", rw.Header().Get(RequestIDHeader),
		}
		switch {
		case rw.status >= 500:
			s.logger.Error("request", attrs...)
		case rw.status >= 400:
			s.logger.Warn("request", attrs...)
		default:
			s.logger.Info("request", attrs...)
		}
	})
}

func (s *Server) routeLabel(r *http.Request) string {
	_, pattern := s.mux.Handler(r)
	if pattern == "" {
		return "unmatched"
	}
	// Patterns carry the method ("GET /health"); the method is its own label.
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}
