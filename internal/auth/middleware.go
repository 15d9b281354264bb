package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/redmonkez12/auth-service/internal/httputil"
	"github.com/redmonkez12/auth-service/internal/logging"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	AccessClaimsContextKey  ContextKey = "access_claims"
	RefreshClaimsContextKey ContextKey = "refresh_claims"
)

// Middleware guards protected routes. Every rejection is a uniform 401: the
// client is never told whether a token was missing, expired, forged, or
// revoked.
type Middleware struct {
	tokens *TokenService
	repo   RefreshTokenRepository
}

func NewMiddleware(tokens *TokenService, repo RefreshTokenRepository) *Middleware {
	return &Middleware{tokens: tokens, repo: repo}
}

// RequireAuth validates the access token cookie against the public signing
// key and exposes its claims to downstream handlers.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := GetAccessTokenFromCookie(r)
		if err != nil {
			respondUnauthenticated(w)
			return
		}

		claims, err := m.tokens.VerifyAccessToken(token)
		if err != nil {
			if errors.Is(err, ErrKeySetup) {
				logging.GetLoggerFromContext(r.Context()).Error("access token verification unavailable", "error", err.Error())
				httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
				return
			}
			respondUnauthenticated(w)
			return
		}

		ctx := context.WithValue(r.Context(), AccessClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRefresh validates the refresh token cookie against the symmetric
// secret and then checks that the record named by jti still exists. A
// cryptographically valid token whose record is gone (rotated away, logged
// out, or forged jti) is rejected: revocation overrides signature validity.
func (m *Middleware) RequireRefresh(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := GetRefreshTokenFromCookie(r)
		if err != nil {
			respondUnauthenticated(w)
			return
		}

		claims, err := m.tokens.VerifyRefreshToken(token)
		if err != nil {
			if errors.Is(err, ErrSecretMissing) {
				logging.GetLoggerFromContext(r.Context()).Error("refresh token verification unavailable", "error", err.Error())
				httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
				return
			}
			respondUnauthenticated(w)
			return
		}

		recordID, err := uuid.Parse(claims.ID)
		if err != nil {
			respondUnauthenticated(w)
			return
		}

		exists, err := m.repo.ExistsByID(r.Context(), recordID)
		if err != nil {
			logging.GetLoggerFromContext(r.Context()).Error("failed to check refresh token record", "error", err.Error())
			httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
			return
		}
		if !exists {
			respondUnauthenticated(w)
			return
		}

		ctx := context.WithValue(r.Context(), RefreshClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func respondUnauthenticated(w http.ResponseWriter) {
	httputil.RespondErrorWithCode(w, "authentication required", httputil.CodeUnauthenticated, http.StatusUnauthorized)
}

// GetAccessClaimsFromContext extracts verified access token claims.
func GetAccessClaimsFromContext(ctx context.Context) (*TokenClaims, bool) {
	claims, ok := ctx.Value(AccessClaimsContextKey).(*TokenClaims)
	return claims, ok
}

// GetRefreshClaimsFromContext extracts verified refresh token claims.
func GetRefreshClaimsFromContext(ctx context.Context) (*TokenClaims, bool) {
	claims, ok := ctx.Value(RefreshClaimsContextKey).(*TokenClaims)
	return claims, ok
}
