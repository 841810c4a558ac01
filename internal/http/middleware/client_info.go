package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/tendant/account-provisioner/pkg/auth"
)

// ClientInfo records the caller's IP and user agent for sessions issued
// while serving the request.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithClientInfo(r.Context(), auth.IssueSessionOpts{
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP checks X-Forwarded-For and X-Real-IP before falling back to
// RemoteAddr.
func clientIP(r *http.Request) string {
	// The first entry is the original client
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
