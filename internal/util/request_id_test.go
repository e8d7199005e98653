package util

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestIDPropagatesIncomingHeader(t *testing.T) {
	const incoming = "req-incoming-123"
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromRequest(r); got != incoming {
			t.Fatalf("unexpected request id in context: got %q want %q", got, incoming)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-Id", incoming)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != incoming {
		t.Fatalf("unexpected response request id: got %q want %q", got, incoming)
	}
}

func TestWithRequestIDGeneratesWhenMissing(t *testing.T) {
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromRequest(r); got == "" {
			t.Fatal("expected generated request id in context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got == "" {
		t.Fatal("expected generated request id header")
	}
}

func TestWithRequestIDReplacesOversizedHeader(t *testing.T) {
	handler := WithRequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-Id", strings.Repeat("x", 500))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); len(got) == 0 || len(got) > 128 {
		t.Fatalf("expected regenerated request id, got %d bytes", len(got))
	}
}
