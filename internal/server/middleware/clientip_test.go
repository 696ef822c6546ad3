package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveClientIPPrefersTrustedHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	r.Header.Set(DefaultTrustedIPHeader, "203.0.113.7")
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")

	require.Equal(t, "203.0.113.7", ResolveClientIP(r, ""))
}

func TestResolveClientIPFallsBackToForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	r.Header.Set("X-Forwarded-For", " 198.51.100.1 , 10.0.0.1")

	require.Equal(t, "198.51.100.1", ResolveClientIP(r, ""))
}

func TestResolveClientIPUnknownBucket(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	require.Equal(t, "unknown", ResolveClientIP(r, ""))
}

func TestResolveClientIPCustomTrustedHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	r.Header.Set("CF-Connecting-IP", "203.0.113.9")
	r.Header.Set(DefaultTrustedIPHeader, "198.51.100.1")

	require.Equal(t, "203.0.113.9", ResolveClientIP(r, "CF-Connecting-IP"))
}

func TestClientIPMiddlewareStoresInContext(t *testing.T) {
	var got string
	handler := ClientIP("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClientIP(r.Context())
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	r.Header.Set(DefaultTrustedIPHeader, "203.0.113.7")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	require.Equal(t, "203.0.113.7", got)
}

func TestGetClientIPDefaultsToUnknown(t *testing.T) {
	require.Equal(t, "unknown", GetClientIP(context.Background()))
}
