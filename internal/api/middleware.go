package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"grimm.is/speedctl/internal/i18n"
	"grimm.is/speedctl/internal/operation"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the correlation ID assigned by the request ID middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDMiddleware keeps a caller-supplied UUID or assigns a new one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if parsed, err := uuid.Parse(id); err == nil {
			id = parsed.String()
		} else {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// maxBodyMiddleware limits the size of request bodies to prevent memory exhaustion.
func maxBodyMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes <= 0 || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			// Fast path on the declared length
			if r.ContentLength > maxBytes {
				WriteErrorCtx(w, r, http.StatusRequestEntityTooLarge, i18n.MsgInvalidRequest, "body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimited reports whether op is throttled per client. Measurements and
// package installs are expensive; everything else is a cheap read.
func RateLimited(op operation.Operation) bool {
	return op.Sync == operation.SyncParameterized || strings.HasPrefix(op.Name, "install-")
}

// rateLimit wraps an operation handler with the per-client limiter.
func (s *Server) rateLimit(op operation.Operation, next http.Handler) http.Handler {
	if s.limiter == nil || !RateLimited(op) {
		return next
	}
	retryAfter := strconv.Itoa(int(s.rateWindow.Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		if !s.limiter.Allow(ip) {
			if s.metrics != nil {
				s.metrics.RecordRateLimited(op.Name)
			}
			s.logger.Warn("Rate limit exceeded", "operation", op.Name, "client", ip)
			w.Header().Set("Retry-After", retryAfter)
			WriteErrorCtx(w, r, http.StatusTooManyRequests, i18n.MsgRateLimited, s.rateWindow.String())
			return
		}
		next.ServeHTTP(w, r)
	})
}
