package errors_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	uierrors "github.com/dalemusser/impacthub/internal/app/features/errors"
)

func TestRender_APIGetsPlainMessage(t *testing.T) {
	req := httptest.NewRequest("GET", "/forbidden", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	uierrors.Render(rec, req, http.StatusBadGateway, "Sign out failed", "Signing out failed. Please try again.", "")

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if !strings.Contains(rec.Body.String(), "Signing out failed") {
		t.Errorf("body: got %q, want the message", rec.Body.String())
	}
}

func TestForbidden_HTMXGets403(t *testing.T) {
	h := uierrors.NewHandler()
	req := httptest.NewRequest("GET", "/forbidden", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()

	h.Forbidden(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusForbidden)
	}
}
