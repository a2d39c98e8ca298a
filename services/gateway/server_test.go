package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(orderURL string) *Server {
	return NewServer(Config{
		OrderURL:        orderURL,
		CheckoutTimeout: 2 * time.Second,
		LookupTimeout:   2 * time.Second,
	}, zerolog.Nop())
}

func TestCheckoutIsForwarded(t *testing.T) {
	var gotPath, gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1,"status":"pending"}`))
	}))
	defer upstream.Close()

	s := newTestGateway(upstream.URL)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout",
		strings.NewReader(`{"user_id":42}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/checkout", gotPath)
	assert.Equal(t, `{"user_id":42}`, gotBody)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)
}

func TestUpstreamStatusIsPropagated(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"items must not be empty"}`))
	}))
	defer upstream.Close()

	s := newTestGateway(upstream.URL)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout",
		strings.NewReader(`{"items":[]}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "items must not be empty")
}

func TestUnreachableOrderServiceIs503(t *testing.T) {
	// A closed server: connection refused.
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	upstream.Close()

	s := newTestGateway(upstream.URL)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout",
		strings.NewReader(`{}`)))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "order service unavailable", resp["error"])
}

func TestOrderLookupIsForwarded(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer upstream.Close()

	s := newTestGateway(upstream.URL)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/orders/7", gotPath)

	s.Routes().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orders/user/42", nil))
	assert.Equal(t, "/orders/user/42", gotPath)
}

func TestHealth(t *testing.T) {
	s := newTestGateway("http://localhost:0")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
