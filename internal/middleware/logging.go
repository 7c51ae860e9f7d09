// Package middleware contains HTTP middleware for the report API.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/fieldreport/internal/auth"
)

// RequestLoggingMiddleware logs HTTP requests with timing and status information.
type RequestLoggingMiddleware struct {
	logger *slog.Logger
}

// NewRequestLoggingMiddleware creates a new request logging middleware.
func NewRequestLoggingMiddleware(logger *slog.Logger) *RequestLoggingMiddleware {
	return &RequestLoggingMiddleware{
		logger: logger,
	}
}

// Handler returns middleware that logs all HTTP requests. It must run inside
// auth.Middleware for the actor to be known.
func (m *RequestLoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"method", r.Method,
			"path", sanitizePath(r.URL.Path, r.URL.RawQuery),
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", getClientIP(r),
		}
		if id, ok := auth.GetIdentityFromRequest(r); ok {
			attrs = append(attrs, "actor", id.ID)
		}

		if wrapped.statusCode >= 500 {
			m.logger.Warn("request", attrs...)
		} else {
			m.logger.Info("request", attrs...)
		}
	})
}

// shouldSkip returns true for noisy paths: probes, scrapes, and thumbnails
// polled while attachments upload.
func shouldSkip(path string) bool {
	for _, skip := range []string{"/health", "/metrics", "/api/previews/"} {
		if strings.HasPrefix(path, skip) {
			return true
		}
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

var sensitiveParams = map[string]bool{
	"token":        true,
	"key":          true,
	"secret":       true,
	"password":     true,
	"api_key":      true,
	"apikey":       true,
	"access_token": true,
	"signature":    true,
}

// sanitizePath redacts sensitive query parameters, including presigned URL
// signatures, before they reach the log.
func sanitizePath(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}

	var safe []string
	for _, part := range strings.Split(rawQuery, "&") {
		k, _, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		lower := strings.ToLower(k)
		if sensitiveParams[lower] || strings.HasPrefix(lower, "x-amz-") {
			safe = append(safe, k+"=[REDACTED]")
			continue
		}
		safe = append(safe, part)
	}

	if len(safe) == 0 {
		return path
	}
	return path + "?" + strings.Join(safe, "&")
}

// getClientIP extracts the client IP from the request, considering proxy headers.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
