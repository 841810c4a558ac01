package config

import (
	"strings"
	"testing"
	"time"
)

func setGoTrueEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IDENTITY_PROVIDER", "gotrue")
	t.Setenv("PROFILE_STORE", "postgrest")
	t.Setenv("AUTH_URL", "https://project.example.co/auth/v1/")
	t.Setenv("AUTH_API_KEY", "anon-key")
	t.Setenv("REST_URL", "https://project.example.co/rest/v1")
	t.Setenv("REST_SERVICE_KEY", "service-key")
}

func TestLoad_Defaults(t *testing.T) {
	setGoTrueEnv(t)

	// Clear any other env vars that might interfere
	for _, v := range []string{"SERVER_ADDR", "SERVER_PORT", "DB_HOST", "DB_PORT", "PENDING_STORE", "RECONCILE_INTERVAL", "RECONCILE_MAX_ATTEMPTS", "PASSWORD_MIN_LENGTH"} {
		t.Setenv(v, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ServerAddr != "0.0.0.0" {
		t.Errorf("ServerAddr = %q, want %q", cfg.ServerAddr, "0.0.0.0")
	}
	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want %d", cfg.ServerPort, 8080)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, want %d", cfg.DBPort, 5432)
	}
	if cfg.PendingStore != StoreMemory {
		t.Errorf("PendingStore = %q, want %q", cfg.PendingStore, StoreMemory)
	}
	if cfg.ReconcileInterval != time.Minute {
		t.Errorf("ReconcileInterval = %v, want %v", cfg.ReconcileInterval, time.Minute)
	}
	if cfg.ReconcileMaxAttempts != 10 {
		t.Errorf("ReconcileMaxAttempts = %d, want 10", cfg.ReconcileMaxAttempts)
	}
	if cfg.PasswordMinLength != 6 {
		t.Errorf("PasswordMinLength = %d, want 6", cfg.PasswordMinLength)
	}
	if cfg.AuthURL != "https://project.example.co/auth/v1" {
		t.Errorf("AuthURL = %q, trailing slash should be trimmed", cfg.AuthURL)
	}
	if cfg.NeedsDatabase() {
		t.Error("NeedsDatabase() should be false for gotrue/postgrest/memory")
	}
}

func TestLoad_MissingKeys(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr []string
	}{
		{
			name: "gotrue without credentials",
			env: map[string]string{
				"IDENTITY_PROVIDER": "gotrue",
				"PROFILE_STORE":     "postgres",
				"AUTH_URL":          "",
				"AUTH_API_KEY":      "",
			},
			wantErr: []string{"AUTH_URL", "AUTH_API_KEY"},
		},
		{
			name: "local without jwt secret",
			env: map[string]string{
				"IDENTITY_PROVIDER": "local",
				"PROFILE_STORE":     "postgres",
				"JWT_SECRET":        "",
			},
			wantErr: []string{"JWT_SECRET"},
		},
		{
			name: "postgrest without rest url",
			env: map[string]string{
				"IDENTITY_PROVIDER": "local",
				"JWT_SECRET":        "secret",
				"PROFILE_STORE":     "postgrest",
				"REST_URL":          "",
				"REST_SERVICE_KEY":  "",
			},
			wantErr: []string{"REST_URL", "REST_SERVICE_KEY"},
		},
		{
			name: "zero reconcile interval",
			env: map[string]string{
				"IDENTITY_PROVIDER":  "local",
				"JWT_SECRET":         "secret",
				"PROFILE_STORE":      "postgres",
				"RECONCILE_INTERVAL": "0s",
			},
			wantErr: []string{"RECONCILE_INTERVAL must be positive"},
		},
		{
			name: "negative reconcile interval",
			env: map[string]string{
				"IDENTITY_PROVIDER":  "local",
				"JWT_SECRET":         "secret",
				"PROFILE_STORE":      "postgres",
				"RECONCILE_INTERVAL": "-5s",
			},
			wantErr: []string{"RECONCILE_INTERVAL", "-5s"},
		},
		{
			name: "unknown provider",
			env: map[string]string{
				"IDENTITY_PROVIDER": "ldap",
			},
			wantErr: []string{"IDENTITY_PROVIDER"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load should fail")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q should mention %s", err.Error(), want)
				}
			}
		})
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("IDENTITY_PROVIDER", "LOCAL")
	t.Setenv("PROFILE_STORE", "postgres")
	t.Setenv("PENDING_STORE", "postgres")
	t.Setenv("JWT_SECRET", "custom-secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ACCESS_TOKEN_TTL", "30m")
	t.Setenv("RECONCILE_BATCH_SIZE", "5")
	t.Setenv("MIGRATE_ON_START", "false")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "noreply@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.IdentityProvider != ProviderLocal {
		t.Errorf("IdentityProvider = %q, want %q", cfg.IdentityProvider, ProviderLocal)
	}
	if cfg.ServerPort != 9090 {
		t.Errorf("ServerPort = %d, want 9090", cfg.ServerPort)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 30m", cfg.AccessTokenTTL)
	}
	if cfg.ReconcileBatchSize != 5 {
		t.Errorf("ReconcileBatchSize = %d, want 5", cfg.ReconcileBatchSize)
	}
	if cfg.MigrateOnStart {
		t.Error("MigrateOnStart should be false")
	}
	if !cfg.NeedsDatabase() {
		t.Error("NeedsDatabase() should be true for the local provider")
	}
	if !cfg.HasSMTP() {
		t.Error("HasSMTP() should be true")
	}
	if cfg.Addr() != "0.0.0.0:9090" {
		t.Errorf("Addr() = %q, want 0.0.0.0:9090", cfg.Addr())
	}
}

func TestLoad_SignUpValidation(t *testing.T) {
	setGoTrueEnv(t)
	t.Setenv("PASSWORD_MIN_LENGTH", "10")
	t.Setenv("PASSWORD_REQUIRE_UPPERCASE", "true")
	t.Setenv("PASSWORD_REQUIRE_NUMBER", "1")
	t.Setenv("PASSWORD_REQUIRE_LOWERCASE", "")
	t.Setenv("PASSWORD_REQUIRE_SPECIAL", "")
	t.Setenv("BLOCK_DISPOSABLE_EMAIL", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.BlockDisposableEmail {
		t.Error("BlockDisposableEmail should be true")
	}
	policy := cfg.PasswordPolicy()
	if policy.MinLength != 10 || !policy.RequireUppercase || !policy.RequireNumber {
		t.Errorf("PasswordPolicy() = %+v", policy)
	}
	if policy.RequireLowercase || policy.RequireSpecial {
		t.Errorf("PasswordPolicy() = %+v, lowercase and special should be off by default", policy)
	}
	if err := policy.ValidatePassword("longenough1"); err == nil {
		t.Error("password without an uppercase letter should be rejected")
	}
	if err := policy.ValidatePassword("Longenough1"); err != nil {
		t.Errorf("ValidatePassword() = %v", err)
	}
}

func TestGetEnvInt_Invalid(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")

	if got := getEnvInt("TEST_INT", 42); got != 42 {
		t.Errorf("getEnvInt = %d, want default 42", got)
	}
}

func TestGetEnvDuration_Invalid(t *testing.T) {
	t.Setenv("TEST_DURATION", "forever")

	if got := getEnvDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvDuration = %v, want default 1s", got)
	}
}
