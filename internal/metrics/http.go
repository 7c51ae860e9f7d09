package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"
)

var (
	// uuidPattern matches local document, issue and attachment ids.
	uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

	// sequencePattern matches report numbers such as 2026-17 as a whole path segment.
	sequencePattern = regexp.MustCompile(`/\d{4}-\d+(/|$)`)
)

// statusRecorder remembers the first status code written.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) code() string {
	if s.status == 0 {
		return "200"
	}
	return strconv.Itoa(s.status)
}

// routeLabel prefers the ServeMux pattern that matched. Unmatched requests
// fall back to the path with ids collapsed so the label stays low-cardinality.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return normalizePath(r.URL.Path)
}

func normalizePath(path string) string {
	path = uuidPattern.ReplaceAllString(path, "{id}")
	return sequencePattern.ReplaceAllString(path, "/{seq}$1")
}

// Middleware records request counts and latency per route. It must wrap the
// mux directly or through handlers that pass the request on unchanged, so
// the matched pattern is visible after the call.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := routeLabel(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, route, rec.code()).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
