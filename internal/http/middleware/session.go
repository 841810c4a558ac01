package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tendant/account-provisioner/internal/httputil"
	"github.com/tendant/account-provisioner/pkg/domain"
)

type contextKey string

// SessionKey is the context key for the caller's session handle.
const SessionKey contextKey = "session"

// Session extracts the caller's session handle and stores it in the context.
// The access token comes from the Authorization header (mobile clients and
// API calls) or the access_token cookie (web clients). The refresh token is
// taken from its cookie when present. Requests without a token pass through
// untouched; use RequireSession to reject them.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s domain.Session

		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				s.AccessToken = strings.TrimSpace(parts[1])
				s.TokenType = "bearer"
			}
		}

		if s.AccessToken == "" {
			if token, ok := httputil.GetAccessTokenFromCookie(r); ok {
				s.AccessToken = token
				s.TokenType = "bearer"
			}
		}
		if token, ok := httputil.GetRefreshTokenFromCookie(r); ok {
			s.RefreshToken = token
		}

		if s.AccessToken == "" && s.RefreshToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), SessionKey, &s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession rejects requests that carry no access token.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := GetSession(r.Context()); !ok || s.IsZero() {
			httputil.DomainError(w, domain.NewError(domain.KindUnauthenticated, "Auth session missing!"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetSession returns the session handle stored by Session.
func GetSession(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(SessionKey).(*domain.Session)
	return s, ok
}
