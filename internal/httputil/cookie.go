package httputil

import (
	"net/http"
	"time"

	"github.com/tendant/account-provisioner/pkg/domain"
)

// Cookie names
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// CookieConfig holds cookie configuration.
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool // Set to true in production (HTTPS)
	SameSite http.SameSite
	// RefreshTTL is the refresh cookie lifetime; the access cookie follows
	// the session's ExpiresIn.
	RefreshTTL time.Duration
}

// DefaultCookieConfig returns default cookie configuration.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Path:       "/",
		Secure:     false, // Set to true in production
		SameSite:   http.SameSiteLaxMode,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

// SetSessionCookies sets HttpOnly cookies for the session's tokens.
func SetSessionCookies(w http.ResponseWriter, s *domain.Session, cfg CookieConfig) {
	http.SetCookie(w, cfg.cookie(AccessTokenCookie, s.AccessToken, s.ExpiresIn))

	if s.RefreshToken != "" {
		http.SetCookie(w, cfg.cookie(RefreshTokenCookie, s.RefreshToken, int(cfg.RefreshTTL.Seconds())))
	}
}

// ClearSessionCookies clears the session cookies.
func ClearSessionCookies(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, cfg.cookie(AccessTokenCookie, "", -1))
	http.SetCookie(w, cfg.cookie(RefreshTokenCookie, "", -1))
}

func (cfg CookieConfig) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	}
}

// GetRefreshTokenFromCookie extracts refresh token from cookie.
func GetRefreshTokenFromCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(RefreshTokenCookie)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

// GetAccessTokenFromCookie extracts access token from cookie.
func GetAccessTokenFromCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(AccessTokenCookie)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

// IsMobileClient checks if request is from a mobile client.
// Mobile clients should set header: X-Client-Type: mobile
func IsMobileClient(r *http.Request) bool {
	return r.Header.Get("X-Client-Type") == "mobile"
}
