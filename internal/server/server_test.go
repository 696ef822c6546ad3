package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/replysmith/replysmith/internal/config"
	"github.com/replysmith/replysmith/internal/core/store"
	apperrors "github.com/replysmith/replysmith/internal/errors"
)

func newTestServer(opts Options) *Server {
	return New(config.ServerConfig{Host: "127.0.0.1", Port: 0}, opts)
}

func TestServerNotFound(t *testing.T) {
	srv := newTestServer(Options{})

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body apperrors.APIError
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if body.Error != "The requested resource was not found" {
		t.Fatalf("unexpected error message: %s", body.Error)
	}
}

func TestServerMethodNotAllowedOnGenerate(t *testing.T) {
	generate := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := newTestServer(Options{Generate: generate})

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/api/generate", nil)
		rec := httptest.NewRecorder()

		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected status 405, got %d", method, rec.Code)
		}

		var body apperrors.APIError
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode error response: %v", err)
		}
		if body.Error != "Use POST" {
			t.Fatalf("unexpected error message: %s", body.Error)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST: expected status 200, got %d", rec.Code)
	}
}

func TestServerVersionEndpoint(t *testing.T) {
	srv := newTestServer(Options{})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestServerAdminEndpointDisabledWithoutToken(t *testing.T) {
	srv := newTestServer(Options{Usage: store.NewMemoryStore()})

	req := httptest.NewRequest(http.MethodGet, "/admin/usage", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestServerAdminEndpointAuth(t *testing.T) {
	srv := newTestServer(Options{Usage: store.NewMemoryStore(), AdminToken: "sekrit"})

	req := httptest.NewRequest(http.MethodGet, "/admin/usage", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/usage", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 with wrong token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/usage", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 with valid token, got %d", rec.Code)
	}
}

func TestServerHealthEndpointsToggle(t *testing.T) {
	srv := newTestServer(Options{HealthEnabled: false})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 with health disabled, got %d", rec.Code)
	}
}
