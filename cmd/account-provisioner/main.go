package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tendant/account-provisioner/internal/config"
	"github.com/tendant/account-provisioner/internal/database"
	"github.com/tendant/account-provisioner/internal/logger"
	"github.com/tendant/account-provisioner/internal/notification"
	"github.com/tendant/account-provisioner/pkg/auth"
	"github.com/tendant/account-provisioner/pkg/outbox"
	"github.com/tendant/account-provisioner/pkg/provider/gotrue"
	"github.com/tendant/account-provisioner/pkg/provider/local"
	"github.com/tendant/account-provisioner/pkg/provider/postgrest"
	"github.com/tendant/account-provisioner/pkg/provisioning"
	"github.com/tendant/account-provisioner/pkg/repository"
	"github.com/tendant/account-provisioner/provisioner"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	log := logger.Setup(os.Stdout, os.Getenv("LOG_LEVEL"))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Connect to database if any backend needs it
	var db *sql.DB
	if cfg.NeedsDatabase() {
		dbCfg := repository.DBConfig{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Name:     cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		}
		db, err = repository.NewDB(ctx, dbCfg)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		log.Info("connected to database")

		if cfg.MigrateOnStart {
			if err := database.RunMigrations(dbCfg.URL()); err != nil {
				log.Error("failed to run migrations", "error", err)
				os.Exit(1)
			}
			log.Info("database migrations applied")
		}
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	provider, resetter := newProvider(cfg, db, httpClient, log)
	profiles := newProfileStore(cfg, db, httpClient, log)
	pending := newPendingStore(cfg, db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p, err := provisioner.New(provisioner.Config{
		Provider:               provider,
		Profiles:               profiles,
		Pending:                pending,
		Resetter:               resetter,
		Registerer:             registry,
		MaxAttempts:            cfg.ReconcileMaxAttempts,
		ReconcileBatchSize:     cfg.ReconcileBatchSize,
		MaxRequestBodySize:     cfg.MaxRequestBodySize,
		DisableSecurityHeaders: !cfg.SecurityHeadersEnabled,
		SecureCookies:          isHTTPS(cfg.AppBaseURL),
		Logger:                 log,
	})
	if err != nil {
		log.Error("failed to create provisioner", "error", err)
		os.Exit(1)
	}

	log.Info("provisioner configured",
		"identity_provider", cfg.IdentityProvider,
		"profile_store", cfg.ProfileStore,
		"pending_store", cfg.PendingStore,
	)

	go p.RunReconciler(ctx, cfg.ReconcileInterval)

	// Create HTTP server
	addr := cfg.Addr()
	server := &http.Server{
		Addr:         addr,
		Handler:      p.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}

	log.Info("server stopped")
}

// newProvider returns the configured identity provider. The resetter is
// non-nil only for the local provider.
func newProvider(cfg *config.Config, db *sql.DB, client *http.Client, log *slog.Logger) (provisioning.IdentityProvider, provisioner.Resetter) {
	if cfg.IdentityProvider == config.ProviderGoTrue {
		return gotrue.New(gotrue.Config{
			BaseURL:     cfg.AuthURL,
			APIKey:      cfg.AuthAPIKey,
			RedirectURL: cfg.AuthRedirectURL,
			HTTPClient:  client,
			Logger:      log,
		}), nil
	}

	usersRepo := repository.NewUsersRepository(db)
	credsRepo := repository.NewCredentialsRepository(db)
	sessionsRepo := repository.NewSessionsRepository(db)
	resetTokensRepo := repository.NewResetTokensRepository(db)

	policy := cfg.PasswordPolicy()
	passwordService := auth.NewPasswordService(usersRepo, credsRepo, policy, cfg.BlockDisposableEmail)
	log.Info("local provider enabled",
		"password_policy", policy.GetRequirements(),
		"block_disposable_email", cfg.BlockDisposableEmail,
	)
	sessionService := auth.NewSessionService(auth.SessionConfig{
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		JWTSecret:       []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
	}, sessionsRepo, usersRepo)

	var mailer auth.ResetMailer
	if cfg.HasSMTP() {
		mailer = notification.NewEmailService(notification.EmailConfig{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			User:       cfg.SMTPUser,
			Password:   cfg.SMTPPassword,
			From:       cfg.SMTPFrom,
			FromName:   cfg.SMTPFromName,
			AppBaseURL: cfg.AppBaseURL,
			ResetTTL:   cfg.PasswordResetTTL,
		}, log)
		log.Info("email service enabled")
	} else {
		log.Warn("SMTP not configured, password reset requests will fail")
	}

	resetService := auth.NewResetService(auth.ResetConfig{
		TokenTTL: cfg.PasswordResetTTL,
	}, resetTokensRepo, passwordService, sessionService, mailer)

	provider := local.New(passwordService, sessionService, resetService, log)
	return provider, provider
}

func newProfileStore(cfg *config.Config, db *sql.DB, client *http.Client, log *slog.Logger) provisioning.RecordStore {
	if cfg.ProfileStore == config.StorePostgres {
		return repository.NewProfilesRepository(db)
	}
	return postgrest.New(postgrest.Config{
		BaseURL:    cfg.RestURL,
		ServiceKey: cfg.RestServiceKey,
		Table:      cfg.ProfilesTable,
		HTTPClient: client,
		Logger:     log,
	})
}

func newPendingStore(cfg *config.Config, db *sql.DB) provisioning.PendingStore {
	if cfg.PendingStore == config.StorePostgres {
		return repository.NewPendingProfilesRepository(db)
	}
	return outbox.NewMemory(cfg.PendingRetention)
}

func isHTTPS(baseURL string) bool {
	return strings.HasPrefix(baseURL, "https://")
}
