package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenHandler(t *testing.T) http.Handler {
	t.Helper()
	mw, err := TokenAuthMiddleware(TokenAuthConfig{Token: "secret-token"}, nil)
	require.NoError(t, err)
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestTokenAuthMiddleware_MissingHeaderReturnsUnauthorized(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/shows/", nil)
	rec := httptest.NewRecorder()
	tokenHandler(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"unauthorized"}`, rec.Body.String())
}

func TestTokenAuthMiddleware_InvalidHeaderReturnsUnauthorized(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/shows/", nil)
	req.Header.Set(DefaultWriteTokenHeader, "wrong-token")
	rec := httptest.NewRecorder()
	tokenHandler(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenAuthMiddleware_AcceptsHeaderOrBearer(t *testing.T) {
	for name, set := range map[string]func(*http.Request){
		"header": func(r *http.Request) { r.Header.Set(DefaultWriteTokenHeader, "secret-token") },
		"bearer": func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret-token") },
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/shows/", nil)
			set(req)
			rec := httptest.NewRecorder()
			tokenHandler(t).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusNoContent, rec.Code)
		})
	}
}

func TestTokenAuthMiddleware_SetsAuthContextOnSuccess(t *testing.T) {
	mw, err := TokenAuthMiddleware(TokenAuthConfig{Token: "secret-token", HeaderName: "X-Custom"}, nil)
	require.NoError(t, err)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := AuthFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "write_token", authCtx.Subject)
		assert.Equal(t, "write_token", authCtx.Claims["auth_method"])
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/shows/", nil)
	req.Header.Set("X-Custom", "secret-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTokenAuthMiddleware_RequiresTokenConfig(t *testing.T) {
	_, err := TokenAuthMiddleware(TokenAuthConfig{Token: "  "}, nil)
	assert.Error(t, err)
}

func TestRequireForWrites(t *testing.T) {
	mw, err := TokenAuthMiddleware(TokenAuthConfig{Token: "secret-token"}, nil)
	require.NoError(t, err)
	handler := RequireForWrites(mw)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for method, want := range map[string]int{
		http.MethodGet:     http.StatusOK,
		http.MethodHead:    http.StatusOK,
		http.MethodOptions: http.StatusOK,
		http.MethodPost:    http.StatusUnauthorized,
		http.MethodPut:     http.StatusUnauthorized,
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(method, "/shows/", nil))
		assert.Equal(t, want, rec.Code, method)
	}
}
