// Package provisioner assembles the account provisioning service, its HTTP
// API and the profile reconciler behind one constructor.
//
// Basic usage:
//
//	p, err := provisioner.New(provisioner.Config{
//	    Provider: gotrue.New(gotrue.Config{BaseURL: authURL, APIKey: anonKey}),
//	    Profiles: postgrest.New(postgrest.Config{BaseURL: restURL, ServiceKey: serviceKey}),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go p.RunReconciler(ctx, time.Minute)
//	http.ListenAndServe(":8080", p.Router())
package provisioner

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	httpserver "github.com/tendant/account-provisioner/internal/http"
	"github.com/tendant/account-provisioner/internal/http/middleware"
	"github.com/tendant/account-provisioner/internal/httputil"
	"github.com/tendant/account-provisioner/internal/metrics"
	"github.com/tendant/account-provisioner/internal/worker/reconcile"
	"github.com/tendant/account-provisioner/pkg/outbox"
	"github.com/tendant/account-provisioner/pkg/provisioning"
)

// Resetter redeems password reset links. The local provider implements it.
type Resetter interface {
	CompletePasswordReset(ctx context.Context, token, newPassword string) error
}

// Config holds the configuration for a Provisioner.
type Config struct {
	// Provider is the identity provider (required).
	Provider provisioning.IdentityProvider

	// Profiles receives the profile written after sign-up (required).
	Profiles provisioning.RecordStore

	// Pending queues failed profile writes (default: in-memory store).
	Pending provisioning.PendingStore

	// Resetter enables POST /v1/accounts/password/reset (optional).
	Resetter Resetter

	// Registerer receives the service metrics. When it is also a
	// prometheus.Gatherer, GET /metrics is served (optional).
	Registerer prometheus.Registerer

	// MaxAttempts bounds retries of a queued profile write (default: 10).
	MaxAttempts int

	// ReconcileBatchSize is the number of queued writes retried per cycle (default: 50).
	ReconcileBatchSize int

	// MaxRequestBodySize limits request bodies; zero disables the limit.
	MaxRequestBodySize int64

	// DisableSecurityHeaders turns off the response security headers.
	DisableSecurityHeaders bool

	// SecureCookies sets the Secure flag on session cookies.
	SecureCookies bool

	// Logger is the structured logger (default: slog.Default()).
	Logger *slog.Logger

	// Now is the clock used for retry scheduling (default: time.Now).
	Now func() time.Time
}

// Provisioner is an assembled provisioning service.
type Provisioner struct {
	config  Config
	service *provisioning.Service
	metrics *metrics.Collector
	worker  *reconcile.Worker
	router  http.Handler
}

// New creates a Provisioner with the given configuration.
func New(cfg Config) (*Provisioner, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	var collector *metrics.Collector
	var recorder provisioning.Recorder
	var metricsHandler http.Handler
	if cfg.Registerer != nil {
		collector = metrics.NewCollector(cfg.Registerer)
		recorder = collector
		if g, ok := cfg.Registerer.(prometheus.Gatherer); ok {
			metricsHandler = metrics.Handler(g)
		}
	}

	service := provisioning.NewService(provisioning.Config{
		Provider:    cfg.Provider,
		Profiles:    cfg.Profiles,
		Pending:     cfg.Pending,
		Recorder:    recorder,
		Logger:      cfg.Logger,
		MaxAttempts: cfg.MaxAttempts,
		Now:         cfg.Now,
	})

	workerCfg := reconcile.Config{
		Reconciler: service,
		Logger:     cfg.Logger,
		BatchSize:  cfg.ReconcileBatchSize,
	}
	if counter, ok := cfg.Pending.(reconcile.QueueCounter); ok && collector != nil {
		workerCfg.Queue = counter
		workerCfg.Gauge = collector
	}

	cookies := httputil.DefaultCookieConfig()
	cookies.Secure = cfg.SecureCookies

	headers := middleware.DefaultSecurityHeaders()
	headers.Enabled = !cfg.DisableSecurityHeaders

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:             cfg.Logger,
		Service:            service,
		Resetter:           cfg.Resetter,
		Metrics:            collector,
		MetricsHandler:     metricsHandler,
		SecurityHeaders:    headers,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		Cookies:            cookies,
	})

	return &Provisioner{
		config:  cfg,
		service: service,
		metrics: collector,
		worker:  reconcile.NewWorker(workerCfg),
		router:  router,
	}, nil
}

// Router returns the HTTP API.
//
// Routes:
//
//	GET  /health
//	GET  /metrics                            - if the registerer is a gatherer
//	POST /v1/accounts/signup
//	POST /v1/accounts/signin
//	POST /v1/accounts/signout                (session)
//	POST /v1/accounts/password/reset-request
//	PUT  /v1/accounts/password               (session)
//	GET  /v1/accounts/me                     (session)
//	POST /v1/accounts/password/reset         - if a Resetter is configured
func (p *Provisioner) Router() http.Handler {
	return p.router
}

// Service returns the provisioning service for direct use.
func (p *Provisioner) Service() *provisioning.Service {
	return p.service
}

// RunReconciler retries queued profile writes every interval until ctx is
// cancelled.
func (p *Provisioner) RunReconciler(ctx context.Context, interval time.Duration) {
	p.worker.Start(ctx, interval)
}

// Reconcile runs a single reconciliation cycle.
func (p *Provisioner) Reconcile(ctx context.Context) (provisioning.ReconcileReport, error) {
	return p.worker.RunOnce(ctx)
}

func validateConfig(cfg *Config) error {
	if cfg.Provider == nil {
		return errors.New("provisioner: Provider is required")
	}
	if cfg.Profiles == nil {
		return errors.New("provisioner: Profiles is required")
	}
	if cfg.MaxRequestBodySize < 0 {
		return errors.New("provisioner: MaxRequestBodySize must not be negative")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Pending == nil {
		cfg.Pending = outbox.NewMemory(outbox.DefaultRetention)
	}
}
