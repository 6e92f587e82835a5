package bbshttp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, key string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func TestJWTMiddlewareRejectsMissingAuthorization(t *testing.T) {
	m := NewJWTMiddleware("secret", nil, nil)
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/terminal/session", nil)
	rec := httptest.NewRecorder()
	m.Wrap(next).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestJWTMiddlewareSkipsExemptPaths(t *testing.T) {
	m := NewJWTMiddleware("secret", nil, []string{"/auth/login"})
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	rec := httptest.NewRecorder()
	m.Wrap(next).ServeHTTP(rec, req)

	assert.True(t, called)
}

func TestJWTMiddlewareAcceptsValidToken(t *testing.T) {
	m := NewJWTMiddleware("secret", nil, nil)
	token := signToken(t, "secret", Claims{
		UserID:   "u1",
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/terminal/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Wrap(next).ServeHTTP(rec, req)

	assert.Equal(t, "u1", gotUserID)
}

func TestJWTMiddlewareRejectsWrongSigningKey(t *testing.T) {
	m := NewJWTMiddleware("secret", nil, nil)
	token := signToken(t, "wrong-key", Claims{UserID: "u1"})

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/terminal/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Wrap(next).ServeHTTP(rec, req)

	assert.False(t, called)
}

func TestJWTMiddlewareRejectsMalformedHeader(t *testing.T) {
	m := NewJWTMiddleware("secret", nil, nil)
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/terminal/session", nil)
	req.Header.Set("Authorization", "NotBearer abc")
	rec := httptest.NewRecorder()
	m.Wrap(next).ServeHTTP(rec, req)

	assert.False(t, called)
}
