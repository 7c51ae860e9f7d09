package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

// =============================================================================
// Error Response Tests - Security Focus
// =============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ETOOLARGE, http.StatusRequestEntityTooLarge},
		{domain.EUNAVAILABLE, http.StatusServiceUnavailable},
		{domain.ESEQUENCE, http.StatusBadGateway},
		{domain.EUPLOAD, http.StatusBadGateway},
		{domain.EEXPORT, http.StatusInternalServerError},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{domain.ETRANSCRIBE, http.StatusUnprocessableEntity},
		{domain.EENRICH, http.StatusUnprocessableEntity},
		{"something_else", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := ErrorCodeToHTTPStatus(tt.code); got != tt.want {
				t.Errorf("ErrorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestErrorResponse_DoesNotExposeOperationName(t *testing.T) {
	err := domain.Conflict("editor.apply_field_edit", "Completed reports cannot be edited.")

	rec := httptest.NewRecorder()
	ErrorResponse(rec, httptest.NewRequest("PATCH", "/api/reports/x/fields", nil), discardLogger(), err)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "editor.apply_field_edit") {
		t.Errorf("response exposes internal operation name: %s", body)
	}

	var resp JSONError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.Error.Code != domain.ECONFLICT || resp.Error.Message != "Completed reports cannot be edited." {
		t.Errorf("unexpected body: %+v", resp)
	}
}

func TestErrorResponse_InternalErrorHidesDetails(t *testing.T) {
	err := domain.Internal(errors.New("sqlite: database is locked at /var/data/reports.db"), "store.put", "write failed")

	rec := httptest.NewRecorder()
	InternalErrorResponse(rec, httptest.NewRequest("POST", "/api/reports/x/save", nil), discardLogger(), err)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	for _, leak := range []string{"sqlite", "/var/data", "store.put"} {
		if strings.Contains(body, leak) {
			t.Errorf("response leaks %q: %s", leak, body)
		}
	}
	if !strings.Contains(body, "internal error") {
		t.Errorf("response should contain a generic message, got: %s", body)
	}
}

func TestErrorResponse_UnwrappedErrorReturnsGeneric(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorResponse(rec, httptest.NewRequest("GET", "/api/reports", nil), discardLogger(), &mockDatabaseError{})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("response leaks raw error: %s", rec.Body.String())
	}
}

func TestErrorResponse_EnrichmentNoticeIsUnprocessable(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorResponse(rec, httptest.NewRequest("POST", "/api/reports/x/dictate", nil), discardLogger(),
		domain.TranscriptionFailed(errors.New("upstream 500"), "editor.dictate"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "could not be transcribed") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

type mockDatabaseError struct{}

func (e *mockDatabaseError) Error() string {
	return "dial tcp 127.0.0.1:5432: connection refused"
}
