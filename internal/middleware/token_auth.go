package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"showcatalog/internal/logging"
	"showcatalog/internal/observability"
)

// DefaultWriteTokenHeader carries the shared write token when no bearer
// token is sent.
const DefaultWriteTokenHeader = "X-Write-Token"

// TokenAuthConfig controls shared-token authentication for write endpoints.
type TokenAuthConfig struct {
	Token      string
	HeaderName string
}

// TokenAuthMiddleware accepts a shared token either as a bearer token or in
// the configured header.
func TokenAuthMiddleware(cfg TokenAuthConfig, securityMetrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("write auth token is required")
	}
	headerName := strings.TrimSpace(cfg.HeaderName)
	if headerName == "" {
		headerName = DefaultWriteTokenHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			securityMetrics.RecordAuthAttempt(ctx, r.URL.Path)

			provided := bearerToken(r.Header.Get("Authorization"))
			if provided == "" {
				provided = strings.TrimSpace(r.Header.Get(headerName))
			}
			if !constantTimeTokenMatch(provided, token) {
				securityMetrics.RecordAuthFailure(ctx, r.URL.Path, "token_mismatch")
				logging.FromContext(ctx).Warn("write token rejected",
					slog.String("endpoint", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				writeUnauthorized(w, "unauthorized")
				return
			}

			securityMetrics.RecordAuthSuccess(ctx, r.URL.Path, "write_token")
			ctx = WithAuthContext(ctx, AuthContext{
				Subject: "write_token",
				Issuer:  "write_token",
				Claims:  map[string]interface{}{"auth_method": "write_token"},
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

func constantTimeTokenMatch(provided string, expected string) bool {
	providedDigest := sha256.Sum256([]byte(provided))
	expectedDigest := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(providedDigest[:], expectedDigest[:]) == 1
}
