package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/account-provisioner/internal/database"
	"github.com/tendant/account-provisioner/pkg/domain"
)

// openTestDB returns a migrated database with empty tables, or skips the
// test when TEST_DATABASE_URL is not set.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping repository test - requires database connection")
	}

	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`TRUNCATE users, user_passwords, sessions, password_reset_tokens, profiles, pending_profiles CASCADE`)
	if err != nil {
		t.Fatalf("truncate failed: %v", err)
	}
	return db
}

func newTestUser(email string) (*domain.User, *domain.UserPassword) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	name := "Test User"
	u := &domain.User{ID: uuid.New(), Email: email, Name: &name, CreatedAt: now, UpdatedAt: now}
	return u, &domain.UserPassword{UserID: u.ID, PasswordHash: "hash", PasswordUpdatedAt: now}
}

func TestUsersRepository_CreateWithPassword(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUsersRepository(db)
	creds := NewCredentialsRepository(db)

	u, c := newTestUser("a@x.com")
	if err := users.CreateWithPassword(ctx, u, c); err != nil {
		t.Fatalf("CreateWithPassword failed: %v", err)
	}

	got, err := users.GetByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("ID = %v, want %v", got.ID, u.ID)
	}

	cred, err := creds.GetByUserID(ctx, u.ID)
	if err != nil || cred.PasswordHash != "hash" {
		t.Errorf("GetByUserID = %+v, %v", cred, err)
	}

	dup, dupCred := newTestUser("a@x.com")
	if err := users.CreateWithPassword(ctx, dup, dupCred); !errors.Is(err, domain.ErrUserAlreadyExists) {
		t.Errorf("duplicate create error = %v, want ErrUserAlreadyExists", err)
	}
	if _, err := users.GetByID(ctx, dup.ID); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("rolled back user should not exist, got %v", err)
	}
}

func TestUsersRepository_FailedLogins(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUsersRepository(db)

	u, c := newTestUser("lock@x.com")
	if err := users.CreateWithPassword(ctx, u, c); err != nil {
		t.Fatalf("CreateWithPassword failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := users.IncrementFailedLoginAttempts(ctx, u.ID, time.Minute, 3); err != nil {
			t.Fatalf("IncrementFailedLoginAttempts failed: %v", err)
		}
	}

	got, _ := users.GetByID(ctx, u.ID)
	if !got.IsLocked() {
		t.Error("user should be locked after 3 failures")
	}

	if err := users.ResetFailedLoginAttempts(ctx, u.ID); err != nil {
		t.Fatalf("ResetFailedLoginAttempts failed: %v", err)
	}
	got, _ = users.GetByID(ctx, u.ID)
	if got.IsLocked() || got.FailedLoginAttempts != 0 {
		t.Errorf("user should be unlocked, got %+v", got)
	}
}

func TestSessionsRepository_Revoke(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUsersRepository(db)
	sessions := NewSessionsRepository(db)

	u, c := newTestUser("s@x.com")
	if err := users.CreateWithPassword(ctx, u, c); err != nil {
		t.Fatalf("CreateWithPassword failed: %v", err)
	}

	rec := &domain.SessionRecord{
		ID:        uuid.New(),
		UserID:    u.ID,
		TokenHash: "token-hash",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
		Metadata:  []byte(`{"ip":"127.0.0.1"}`),
	}
	if err := sessions.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := sessions.RevokeByTokenHash(ctx, "token-hash"); err != nil {
		t.Fatalf("RevokeByTokenHash failed: %v", err)
	}
	if err := sessions.RevokeByTokenHash(ctx, "token-hash"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("second revoke error = %v, want ErrSessionNotFound", err)
	}

	got, err := sessions.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.IsValid() {
		t.Error("revoked session should not be valid")
	}
}

func TestResetTokensRepository_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewUsersRepository(db)
	tokens := NewResetTokensRepository(db)

	u, c := newTestUser("r@x.com")
	if err := users.CreateWithPassword(ctx, u, c); err != nil {
		t.Fatalf("CreateWithPassword failed: %v", err)
	}

	first := &domain.PasswordResetToken{ID: uuid.New(), UserID: u.ID, TokenHash: "first", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	second := &domain.PasswordResetToken{ID: uuid.New(), UserID: u.ID, TokenHash: "second", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}

	if err := tokens.Replace(ctx, first); err != nil {
		t.Fatalf("Replace(first) failed: %v", err)
	}
	if err := tokens.Replace(ctx, second); err != nil {
		t.Fatalf("Replace(second) failed: %v", err)
	}

	got, err := tokens.GetByTokenHash(ctx, "first")
	if err != nil {
		t.Fatalf("GetByTokenHash failed: %v", err)
	}
	if got.IsUsable(time.Now()) {
		t.Error("superseded token should not be usable")
	}

	if err := tokens.MarkConsumed(ctx, second.ID); err != nil {
		t.Fatalf("MarkConsumed failed: %v", err)
	}
	if err := tokens.MarkConsumed(ctx, second.ID); !errors.Is(err, domain.ErrResetTokenConsumed) {
		t.Errorf("second MarkConsumed error = %v, want ErrResetTokenConsumed", err)
	}
}

func TestProfilesRepository_InsertIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	profiles := NewProfilesRepository(db)

	p := domain.NewSignUpProfile("provider-id-1", "Alice", "a@x.com", time.Now())
	if err := profiles.InsertProfile(ctx, p); err != nil {
		t.Fatalf("InsertProfile failed: %v", err)
	}
	if err := profiles.InsertProfile(ctx, p); err != nil {
		t.Fatalf("second InsertProfile should be a no-op, got %v", err)
	}

	got, err := profiles.GetByID(ctx, "provider-id-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Role != domain.ProfileRoleSelfService || got.FullName != "Alice" {
		t.Errorf("profile = %+v", got)
	}
}

func TestPendingProfilesRepository_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	pending := NewPendingProfilesRepository(db)

	now := time.Now().UTC()
	entry := domain.PendingProfile{
		Profile:       domain.NewSignUpProfile("acct-1", "Alice", "a@x.com", now),
		NextAttemptAt: now,
		LastError:     "connection refused",
		CreatedAt:     now,
	}
	if err := pending.Enqueue(ctx, entry); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	due, err := pending.Due(ctx, now.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if len(due) != 1 || due[0].Profile.ID != "acct-1" {
		t.Fatalf("Due = %+v, want acct-1", due)
	}

	// Claimed entries are leased and not returned again immediately
	again, err := pending.Due(ctx, now.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("Due after claim = %d entries, want 0", len(again))
	}

	if err := pending.Reschedule(ctx, "acct-1", 1, now, "timeout"); err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if n, _ := pending.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}

	if err := pending.Complete(ctx, "acct-1"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := pending.Complete(ctx, "acct-1"); !errors.Is(err, domain.ErrPendingProfileNotFound) {
		t.Errorf("second Complete error = %v, want ErrPendingProfileNotFound", err)
	}
}
