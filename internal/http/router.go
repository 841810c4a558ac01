package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/account-provisioner/internal/http/features/accounts"
	"github.com/tendant/account-provisioner/internal/http/features/password"
	"github.com/tendant/account-provisioner/internal/http/middleware"
	"github.com/tendant/account-provisioner/internal/httputil"
	"github.com/tendant/account-provisioner/internal/metrics"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger  *slog.Logger
	Service accounts.Service
	// Resetter enables reset-link redemption. Only the local provider
	// issues links this service can redeem.
	Resetter password.Resetter

	Metrics        *metrics.Collector
	MetricsHandler http.Handler

	SecurityHeaders    middleware.SecurityHeadersConfig
	MaxRequestBodySize int64
	Cookies            httputil.CookieConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var recorder middleware.RequestRecorder
	if cfg.Metrics != nil {
		recorder = cfg.Metrics
	}

	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logging(cfg.Logger, recorder))
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBodySize))
	r.Use(middleware.ClientInfo)
	r.Use(middleware.Session)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	accounts.NewHandler(cfg.Logger, cfg.Service, cfg.Cookies).RegisterRoutes(r)

	if cfg.Resetter != nil {
		password.NewHandler(cfg.Logger, cfg.Resetter).RegisterRoutes(r)
	}

	return r
}
