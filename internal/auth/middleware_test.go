package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	policy := NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	handler := NewMiddleware(testSecret, policy).Wrap(okHandler())

	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	resp := serve(t, http.MethodGet, "/api/v1/stats/daily", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthMiddleware_Exempt(t *testing.T) {
	resp := serve(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAuthMiddleware_Roles(t *testing.T) {
	viewer := mustToken(t, testSecret, "viewer", nil)
	operator := mustToken(t, testSecret, "operator", nil)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"viewer reads stats", http.MethodGet, "/api/v1/stats/daily", viewer, http.StatusOK},
		{"viewer posts price", http.MethodPost, "/api/v1/prices", viewer, http.StatusForbidden},
		{"viewer ingests", http.MethodPost, "/ingest/samples", viewer, http.StatusForbidden},
		{"operator posts price", http.MethodPost, "/api/v1/prices", operator, http.StatusOK},
		{"operator ingests", http.MethodPost, "/ingest/samples", operator, http.StatusOK},
		{"operator cleanup", http.MethodPost, "/api/v1/stats/cleanup", operator, http.StatusForbidden},
		{"garbage token", http.MethodGet, "/api/v1/stats/daily", "not-a-jwt", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, serve(t, tc.method, tc.path, tc.token).Code)
		})
	}
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	token := mustToken(t, []byte("other"), "admin", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(t, http.MethodGet, "/api/v1/stats/daily", token).Code)
}

func TestAuthMiddleware_EmptySecretDisablesAuth(t *testing.T) {
	handler := NewMiddleware(nil, NewDefaultPolicy(nil, nil)).Wrap(okHandler())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/ingest/samples", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAuthMiddleware_WebsocketQueryToken(t *testing.T) {
	token := mustToken(t, testSecret, "viewer", nil)
	handler := NewMiddleware(testSecret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flushes/stream?access_token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestDeviceScope(t *testing.T) {
	token := mustToken(t, testSecret, "viewer", []string{"bat-1"})
	var scoped context.Context
	handler := NewMiddleware(testSecret, NewDefaultPolicy(nil, nil)).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped = r.Context()
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats/daily", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, scoped)
	assert.Equal(t, RoleViewer, RoleFromContext(scoped))
	assert.Equal(t, "user-1", SubjectFromContext(scoped))
	assert.NoError(t, EnsureDeviceAccess(scoped, "bat-1"))
	assert.ErrorIs(t, EnsureDeviceAccess(scoped, "bat-2"), ErrDeviceForbidden)
	assert.NoError(t, EnsureDeviceAccess(context.Background(), "bat-2"))
}

func TestParseJWT_Expired(t *testing.T) {
	claims := Claims{
		Role: "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	_, err = ParseJWT(signed, testSecret)
	assert.Error(t, err)
}

func mustToken(t *testing.T, secret []byte, role string, devices []string) string {
	t.Helper()
	claims := Claims{
		Role:    role,
		Devices: devices,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}
