package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/reports", "/api/reports"},
		{"/api/reports/0b6f7c1e-1a2b-4c3d-8e9f-001122334455", "/api/reports/{id}"},
		{"/api/reports/0b6f7c1e-1a2b-4c3d-8e9f-001122334455/issues/1f6f7c1e-1a2b-4c3d-8e9f-001122334455", "/api/reports/{id}/issues/{id}"},
		{"/api/completed/2026-17/export", "/api/completed/{seq}/export"},
		{"/api/completed/2026-17", "/api/completed/{seq}"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestMiddleware_RecordsRequests(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/ping", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/ping", "418"))

	assert.Equal(t, before+1, after)
}

func TestMiddleware_UsesMatchedPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/reports/{id}/audit", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"events":[]}`))
	})
	h := Middleware(mux)

	counter := HTTPRequestsTotal.WithLabelValues("GET", "GET /api/reports/{id}/audit", "200")
	before := testutil.ToFloat64(counter)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/reports/r-1/audit", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "failure", Status(assert.AnError))
}
