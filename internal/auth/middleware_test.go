package auth

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Agentica/internal/config"
)

func newProtected(t *testing.T, cfg config.AuthConfig) (http.Handler, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	svc := NewService(cfg, WithAuditLogger(slog.New(slog.NewJSONHandler(buf, nil))))
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if keyID, ok := KeyIDFromContext(r.Context()); ok {
			w.Header().Set("X-Key-ID", keyID)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	return handler, buf
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	handler, _ := newProtected(t, config.AuthConfig{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareAcceptsBearerAndHeader(t *testing.T) {
	handler, _ := newProtected(t, config.AuthConfig{Enabled: true, APIKeys: []string{"secret-1", " secret-2 "}})

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	req.Header.Set("Authorization", "Bearer secret-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, KeyID("secret-1"), rec.Header().Get("X-Key-ID"))

	req = httptest.NewRequest(http.MethodGet, "/rooms", nil)
	req.Header.Set("X-API-Key", "secret-2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareRejectsAndAudits(t *testing.T) {
	handler, audit := newProtected(t, config.AuthConfig{Enabled: true, APIKeys: []string{"secret-1"}})

	req := httptest.NewRequest(http.MethodPost, "/wallets", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "invalid API key", body["detail"])
	assert.Equal(t, string(CodeUnauthorized), body["error_code"])
	assert.Contains(t, audit.String(), "access denied")
	assert.NotContains(t, audit.String(), "wrong")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareExemptsHealthAndMetrics(t *testing.T) {
	handler, _ := newProtected(t, config.AuthConfig{Enabled: true, APIKeys: []string{"secret-1"}})
	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code, path)
	}
}
