package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/account-provisioner/pkg/auth"
)

// Identity provider backends
const (
	ProviderGoTrue = "gotrue"
	ProviderLocal  = "local"
)

// Record and pending store backends
const (
	StorePostgREST = "postgrest"
	StorePostgres  = "postgres"
	StoreMemory    = "memory"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int
	LogLevel   string

	// Backends
	IdentityProvider string
	ProfileStore     string
	PendingStore     string

	// Hosted auth and REST API
	AuthURL         string
	AuthAPIKey      string
	AuthRedirectURL string // where hosted reset links send the user
	RestURL         string
	RestServiceKey  string
	ProfilesTable   string
	HTTPTimeout     time.Duration

	// Database
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	MigrateOnStart bool

	// Local provider
	JWTSecret         string
	JWTIssuer         string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	PasswordResetTTL  time.Duration
	PasswordMinLength int
	AppBaseURL        string

	// Local provider sign-up validation
	PasswordRequireUppercase bool
	PasswordRequireLowercase bool
	PasswordRequireNumber    bool
	PasswordRequireSpecial   bool
	BlockDisposableEmail     bool

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// Reconciliation
	ReconcileInterval    time.Duration
	ReconcileBatchSize   int
	ReconcileMaxAttempts int
	PendingRetention     time.Duration

	// HTTP hardening
	MaxRequestBodySize     int64
	SecurityHeadersEnabled bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		IdentityProvider: strings.ToLower(getEnv("IDENTITY_PROVIDER", ProviderGoTrue)),
		ProfileStore:     strings.ToLower(getEnv("PROFILE_STORE", StorePostgREST)),
		PendingStore:     strings.ToLower(getEnv("PENDING_STORE", StoreMemory)),

		AuthURL:         strings.TrimRight(getEnv("AUTH_URL", ""), "/"),
		AuthAPIKey:      getEnv("AUTH_API_KEY", ""),
		AuthRedirectURL: getEnv("AUTH_REDIRECT_URL", ""),
		RestURL:         strings.TrimRight(getEnv("REST_URL", ""), "/"),
		RestServiceKey:  getEnv("REST_SERVICE_KEY", ""),
		ProfilesTable:   getEnv("PROFILES_TABLE", "profiles"),
		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnvInt("DB_PORT", 5432),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "account_provisioner"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", true),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTIssuer:         getEnv("JWT_ISSUER", "account-provisioner"),
		AccessTokenTTL:    getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:   getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		PasswordResetTTL:  getEnvDuration("PASSWORD_RESET_TTL", time.Hour),
		PasswordMinLength: getEnvInt("PASSWORD_MIN_LENGTH", 6),
		AppBaseURL:        strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),

		PasswordRequireUppercase: getEnvBool("PASSWORD_REQUIRE_UPPERCASE", false),
		PasswordRequireLowercase: getEnvBool("PASSWORD_REQUIRE_LOWERCASE", false),
		PasswordRequireNumber:    getEnvBool("PASSWORD_REQUIRE_NUMBER", false),
		PasswordRequireSpecial:   getEnvBool("PASSWORD_REQUIRE_SPECIAL", false),
		BlockDisposableEmail:     getEnvBool("BLOCK_DISPOSABLE_EMAIL", false),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Account Service"),

		ReconcileInterval:    getEnvDuration("RECONCILE_INTERVAL", time.Minute),
		ReconcileBatchSize:   getEnvInt("RECONCILE_BATCH_SIZE", 50),
		ReconcileMaxAttempts: getEnvInt("RECONCILE_MAX_ATTEMPTS", 10),
		PendingRetention:     getEnvDuration("PENDING_RETENTION", 24*time.Hour),

		MaxRequestBodySize:     int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
		SecurityHeadersEnabled: getEnvBool("SECURITY_HEADERS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks backend selections and reports every missing key at once.
func (c *Config) Validate() error {
	switch c.IdentityProvider {
	case ProviderGoTrue, ProviderLocal:
	default:
		return fmt.Errorf("IDENTITY_PROVIDER must be %q or %q, got %q", ProviderGoTrue, ProviderLocal, c.IdentityProvider)
	}
	switch c.ProfileStore {
	case StorePostgREST, StorePostgres:
	default:
		return fmt.Errorf("PROFILE_STORE must be %q or %q, got %q", StorePostgREST, StorePostgres, c.ProfileStore)
	}
	switch c.PendingStore {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("PENDING_STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.PendingStore)
	}

	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", c.ReconcileInterval)
	}

	var missing []string
	if c.IdentityProvider == ProviderGoTrue {
		if c.AuthURL == "" {
			missing = append(missing, "AUTH_URL")
		}
		if c.AuthAPIKey == "" {
			missing = append(missing, "AUTH_API_KEY")
		}
	}
	if c.IdentityProvider == ProviderLocal && c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.ProfileStore == StorePostgREST {
		if c.RestURL == "" {
			missing = append(missing, "REST_URL")
		}
		if c.RestServiceKey == "" {
			missing = append(missing, "REST_SERVICE_KEY")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// NeedsDatabase returns true if any selected backend is Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.IdentityProvider == ProviderLocal ||
		c.ProfileStore == StorePostgres ||
		c.PendingStore == StorePostgres
}

// PasswordPolicy returns the local provider's password rules.
func (c *Config) PasswordPolicy() *auth.PasswordPolicy {
	return &auth.PasswordPolicy{
		MinLength:        c.PasswordMinLength,
		RequireUppercase: c.PasswordRequireUppercase,
		RequireLowercase: c.PasswordRequireLowercase,
		RequireNumber:    c.PasswordRequireNumber,
		RequireSpecial:   c.PasswordRequireSpecial,
	}
}

// HasSMTP returns true if outbound mail is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
