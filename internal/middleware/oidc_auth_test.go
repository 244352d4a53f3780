package middleware

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOIDCHTTPClient_TrustsProvidedCA(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	caPath := filepath.Join(t.TempDir(), "root_ca.crt")
	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: tlsServer.Certificate().Raw,
	})
	if err := os.WriteFile(caPath, certPEM, 0o600); err != nil {
		t.Fatalf("failed to write CA file: %v", err)
	}

	client, err := newOIDCHTTPClient(OIDCAuthConfig{CAFile: caPath})
	if err != nil {
		t.Fatalf("unexpected client build error: %v", err)
	}

	resp, err := client.Get(tlsServer.URL)
	if err != nil {
		t.Fatalf("expected request to succeed with custom CA, got error: %v", err)
	}
	_ = resp.Body.Close()
}

func TestNewOIDCHTTPClient_FailsWithoutCAForSelfSignedServer(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	client, err := newOIDCHTTPClient(OIDCAuthConfig{})
	if err != nil {
		t.Fatalf("unexpected client build error: %v", err)
	}

	if _, err := client.Get(tlsServer.URL); err == nil {
		t.Fatal("expected TLS verification error without CA file")
	}
}

func TestNewOIDCHTTPClient_RejectsInvalidCAFile(t *testing.T) {
	caPath := filepath.Join(t.TempDir(), "invalid_ca.crt")
	if err := os.WriteFile(caPath, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("failed to write CA file: %v", err)
	}

	if _, err := newOIDCHTTPClient(OIDCAuthConfig{CAFile: caPath}); err == nil {
		t.Fatal("expected error for invalid CA file")
	}
}

const testIssuer = "https://issuer.example.test"

func newTestVerifier(t *testing.T) (*rsa.PrivateKey, *oidc.IDTokenVerifier) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}}
	verifier := oidc.NewVerifier(testIssuer, keySet, &oidc.Config{
		ClientID:        "showcatalog",
		SkipExpiryCheck: true,
	})
	return key, verifier
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestBearerAuth(t *testing.T) {
	key, verifier := newTestVerifier(t)
	now := time.Now()

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{
			name: "valid",
			header: "Bearer " + signToken(t, key, jwt.MapClaims{
				"iss": testIssuer, "aud": "showcatalog", "sub": "editor",
				"exp": now.Add(time.Hour).Unix(),
			}),
			want: http.StatusNoContent,
		},
		{
			name: "wrong audience",
			header: "Bearer " + signToken(t, key, jwt.MapClaims{
				"iss": testIssuer, "aud": "other", "sub": "editor",
				"exp": now.Add(time.Hour).Unix(),
			}),
			want: http.StatusUnauthorized,
		},
		{
			name: "expired within skew",
			header: "Bearer " + signToken(t, key, jwt.MapClaims{
				"iss": testIssuer, "aud": "showcatalog", "sub": "editor",
				"exp": now.Add(-30 * time.Second).Unix(),
			}),
			want: http.StatusNoContent,
		},
		{
			name: "expired beyond skew",
			header: "Bearer " + signToken(t, key, jwt.MapClaims{
				"iss": testIssuer, "aud": "showcatalog", "sub": "editor",
				"exp": now.Add(-10 * time.Minute).Unix(),
			}),
			want: http.StatusUnauthorized,
		},
		{
			name: "no expiry",
			header: "Bearer " + signToken(t, key, jwt.MapClaims{
				"iss": testIssuer, "aud": "showcatalog", "sub": "editor",
			}),
			want: http.StatusUnauthorized,
		},
	}

	mw := bearerAuth(verifier, OIDCAuthConfig{ClockSkew: time.Minute}, nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := AuthFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "editor", authCtx.Subject)
		assert.Equal(t, []string{"showcatalog"}, authCtx.Audience)
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/shows/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestOIDCAuthMiddleware_Disabled(t *testing.T) {
	mw, err := OIDCAuthMiddleware(OIDCAuthConfig{}, nil, nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/shows/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestOIDCAuthMiddleware_RejectsBadConfig(t *testing.T) {
	_, err := OIDCAuthMiddleware(OIDCAuthConfig{Enabled: true, Audience: "showcatalog"}, nil, nil)
	assert.Error(t, err)

	_, err = OIDCAuthMiddleware(OIDCAuthConfig{Enabled: true, IssuerURL: "http://issuer", Audience: "showcatalog"}, nil, nil)
	assert.ErrorContains(t, err, "https")
}

func TestValidateTimeClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	skew := time.Minute

	assert.NoError(t, validateTimeClaims(map[string]interface{}{"exp": float64(now.Unix() + 10)}, skew, now))
	assert.NoError(t, validateTimeClaims(map[string]interface{}{"exp": json.Number("1700000030")}, skew, now))
	assert.Error(t, validateTimeClaims(map[string]interface{}{}, skew, now))
	assert.Error(t, validateTimeClaims(map[string]interface{}{"exp": float64(now.Unix() - 120)}, skew, now))
	assert.Error(t, validateTimeClaims(map[string]interface{}{
		"exp": float64(now.Unix() + 600),
		"nbf": float64(now.Unix() + 300),
	}, skew, now))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Bearer"))
	assert.Empty(t, bearerToken("Token abc"))
}

func TestExtractAudience(t *testing.T) {
	assert.Equal(t, []string{"a"}, extractAudience(map[string]interface{}{"aud": "a"}))
	assert.Equal(t, []string{"a", "b"}, extractAudience(map[string]interface{}{"aud": []interface{}{"a", 1, "b"}}))
	assert.Nil(t, extractAudience(map[string]interface{}{}))
}
