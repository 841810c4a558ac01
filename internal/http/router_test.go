package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/account-provisioner/internal/http/middleware"
	"github.com/tendant/account-provisioner/internal/httputil"
	"github.com/tendant/account-provisioner/internal/metrics"
	"github.com/tendant/account-provisioner/pkg/domain"
)

type stubService struct{}

func (stubService) CreateAccount(ctx context.Context, email, password, displayName string) domain.AccountResult {
	return domain.AccountResult{User: &domain.Account{ID: "u1", Email: email}}
}

func (stubService) Authenticate(ctx context.Context, email, password string) domain.AccountResult {
	return domain.AccountFailure(domain.NewError(domain.KindInvalidCredentials, "Invalid login credentials"))
}

func (stubService) SignOut(ctx context.Context, s *domain.Session) domain.ActionResult {
	return domain.ActionSucceeded()
}

func (stubService) RequestPasswordReset(ctx context.Context, email string) domain.ActionResult {
	return domain.ActionSucceeded()
}

func (stubService) UpdatePassword(ctx context.Context, s *domain.Session, pw string) domain.ActionResult {
	return domain.ActionSucceeded()
}

func (stubService) GetCurrentUser(ctx context.Context, s *domain.Session) domain.AccountResult {
	panic("lookup exploded")
}

type stubResetter struct{}

func (stubResetter) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	return nil
}

func newTestRouter(resetter bool) (http.Handler, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	cfg := RouterConfig{
		Logger:             slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Service:            stubService{},
		Metrics:            metrics.NewCollector(reg),
		MetricsHandler:     metrics.Handler(reg),
		SecurityHeaders:    middleware.DefaultSecurityHeaders(),
		MaxRequestBodySize: 64,
		Cookies:            httputil.DefaultCookieConfig(),
	}
	if resetter {
		cfg.Resetter = stubResetter{}
	}
	return NewRouter(cfg), reg
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer at")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter(t *testing.T) {
	router, _ := newTestRouter(true)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"signup", http.MethodPost, "/v1/accounts/signup", `{"email":"a@x.com","password":"pw123456"}`, http.StatusCreated},
		{"signin", http.MethodPost, "/v1/accounts/signin", `{"email":"a@x.com","password":"x"}`, http.StatusUnauthorized},
		{"signout", http.MethodPost, "/v1/accounts/signout", "", http.StatusOK},
		{"reset request", http.MethodPost, "/v1/accounts/password/reset-request", `{"email":"a@x.com"}`, http.StatusOK},
		{"update password", http.MethodPut, "/v1/accounts/password", `{"password":"newpass99"}`, http.StatusOK},
		{"reset", http.MethodPost, "/v1/accounts/password/reset", `{"token":"t","new_password":"resetpass1"}`, http.StatusOK},
		{"panic", http.MethodGet, "/v1/accounts/me", "", http.StatusInternalServerError},
		{"body too large", http.MethodPost, "/v1/accounts/signup", `{"email":"` + strings.Repeat("a", 100) + `"}`, http.StatusRequestEntityTooLarge},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers missing")
			}
		})
	}
}

func TestRouter_ResetDisabled(t *testing.T) {
	router, _ := newTestRouter(false)

	rec := serve(router, http.MethodPost, "/v1/accounts/password/reset", `{"token":"t","new_password":"resetpass1"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	router, _ := newTestRouter(false)

	serve(router, http.MethodPost, "/v1/accounts/signin", `{"email":"a@x.com","password":"x"}`)
	rec := serve(router, http.MethodGet, "/metrics", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := `provisioner_http_requests_total{method="POST",route="/v1/accounts/signin",status_code="401"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics output missing %q", want)
	}
}

func TestRouter_MetricsLabels(t *testing.T) {
	tests := []struct {
		name     string
		requests func(h http.Handler)
		want     []string
		notWant  []string
	}{
		{
			name: "panic is counted as 500",
			requests: func(h http.Handler) {
				serve(h, http.MethodGet, "/v1/accounts/me", "")
			},
			want: []string{`provisioner_http_requests_total{method="GET",route="/v1/accounts/me",status_code="500"} 1`},
		},
		{
			name: "unknown paths share one series",
			requests: func(h http.Handler) {
				for i := 0; i < 100; i++ {
					serve(h, http.MethodGet, fmt.Sprintf("/junk-%d", i), "")
				}
			},
			want:    []string{`provisioner_http_requests_total{method="GET",route="unmatched",status_code="404"} 100`},
			notWant: []string{"/junk-"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(false)
			tt.requests(router)

			body := serve(router, http.MethodGet, "/metrics", "").Body.String()
			for _, want := range tt.want {
				if !strings.Contains(body, want) {
					t.Errorf("metrics output missing %q", want)
				}
			}
			for _, bad := range tt.notWant {
				if strings.Contains(body, bad) {
					t.Errorf("metrics output should not contain %q", bad)
				}
			}
		})
	}
}

func TestRouter_PanicIsLogged(t *testing.T) {
	var logs bytes.Buffer
	router := NewRouter(RouterConfig{
		Logger:  slog.New(slog.NewJSONHandler(&logs, nil)),
		Service: stubService{},
		Cookies: httputil.DefaultCookieConfig(),
	})

	rec := serve(router, http.MethodGet, "/v1/accounts/me", "")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	out := logs.String()
	if !strings.Contains(out, "panic recovered") {
		t.Error("panic should be logged")
	}
	if !strings.Contains(out, `"msg":"http request"`) || !strings.Contains(out, `"status":500`) {
		t.Errorf("request line with status 500 missing, got %s", out)
	}
}
