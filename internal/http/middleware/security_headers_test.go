package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeaders(t *testing.T) {
	cfg := SecurityHeadersConfig{
		Enabled:            true,
		CSP:                "default-src 'self'",
		HSTSMaxAge:         31536000,
		FrameOptions:       "DENY",
		ContentTypeOptions: "nosniff",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		PermissionsPolicy:  "geolocation=()",
	}

	handler := SecurityHeaders(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	tests := []struct {
		header string
		want   string
	}{
		{"Content-Security-Policy", cfg.CSP},
		{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
		{"X-Frame-Options", cfg.FrameOptions},
		{"X-Content-Type-Options", cfg.ContentTypeOptions},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Permissions-Policy", cfg.PermissionsPolicy},
		{"Cache-Control", "no-store"},
	}
	for _, tt := range tests {
		if got := w.Header().Get(tt.header); got != tt.want {
			t.Errorf("%s header = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestSecurityHeaders_Disabled(t *testing.T) {
	cfg := SecurityHeadersConfig{
		Enabled: false,
		CSP:     "default-src 'self'",
	}

	handler := SecurityHeaders(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// No headers should be set
	if got := w.Header().Get("Content-Security-Policy"); got != "" {
		t.Errorf("CSP header should not be set when disabled, got %v", got)
	}
}

func TestSecurityHeaders_EmptyValues(t *testing.T) {
	cfg := SecurityHeadersConfig{
		Enabled:      true,
		CSP:          "",
		HSTSMaxAge:   0,
		FrameOptions: "",
	}

	handler := SecurityHeaders(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// Empty values should not set headers
	if got := w.Header().Get("Content-Security-Policy"); got != "" {
		t.Errorf("CSP header should not be set when empty, got %v", got)
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS header should not be set when max age is 0, got %v", got)
	}
}

func TestDefaultSecurityHeaders(t *testing.T) {
	cfg := DefaultSecurityHeaders()
	if !cfg.Enabled || cfg.FrameOptions != "DENY" || cfg.ContentTypeOptions != "nosniff" {
		t.Errorf("DefaultSecurityHeaders() = %+v", cfg)
	}
}
