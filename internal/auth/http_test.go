// ABOUTME: Tests for the bearer token HTTP middleware
// ABOUTME: Uses a real Binder over the in-memory registry and httptest recorders

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tower-gateway/internal/session"
	"github.com/2389/tower-gateway/internal/store"
)

func newMiddlewareFixture(t *testing.T) (*store.MockStore, *JWTVerifier, http.Handler) {
	t.Helper()
	ctx := context.Background()

	registry := store.NewMockStore()
	client := &store.Client{ID: "c1", Name: "Acme", Email: "c@example.com", TenantID: "client_c1", CreatedAt: time.Now(), IsActive: true}
	owner := &store.Account{ID: "a1", Username: "alice", Email: "a@example.com", PasswordHash: "x", CreatedAt: time.Now(), IsActive: true, ClientID: "c1"}
	require.NoError(t, registry.CreateClient(ctx, client, owner, nil))

	verifier := NewJWTVerifier(testSecret)
	binder := session.NewBinder(registry, nil, nil)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := FromContext(r.Context())
		w.Header().Set("X-Client", authCtx.ClientID())
		w.WriteHeader(http.StatusNoContent)
	})
	return registry, verifier, HTTPAuthMiddleware(binder, verifier, nil)(next)
}

func serve(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/client/data", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHTTPAuthMiddleware_Valid(t *testing.T) {
	_, verifier, h := newMiddlewareFixture(t)

	token, err := verifier.Generate("a1", time.Hour)
	require.NoError(t, err)

	rec := serve(h, "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "c1", rec.Header().Get("X-Client"))
}

func TestHTTPAuthMiddleware_Rejects(t *testing.T) {
	_, verifier, h := newMiddlewareFixture(t)

	unknown, err := verifier.Generate("nobody", time.Hour)
	require.NoError(t, err)
	expired, err := verifier.Generate("a1", -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", "missing authorization header"},
		{"wrong scheme", "Basic abc", "invalid authorization header format"},
		{"empty token", "Bearer ", "empty token"},
		{"garbage", "Bearer garbage", "invalid token"},
		{"expired", "Bearer " + expired, "token expired"},
		{"unknown principal", "Bearer " + unknown, "principal not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.want, errorBody(t, rec))
		})
	}
}

func TestHTTPAuthMiddleware_InactiveClient(t *testing.T) {
	registry, verifier, h := newMiddlewareFixture(t)

	token, err := verifier.Generate("a1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, registry.SetClientActive(context.Background(), "c1", false))

	rec := serve(h, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "client is inactive", errorBody(t, rec))
}
