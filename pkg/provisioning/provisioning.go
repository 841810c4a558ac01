// Package provisioning wraps an identity provider with the account workflows
// the application exposes: sign-up with profile mirroring, sign-in, sign-out,
// password reset and update, and current-user lookup.
package provisioning

import (
	"context"
	"time"

	"github.com/tendant/account-provisioner/pkg/domain"
)

// IdentityProvider is the external service that owns accounts and sessions.
// Implementations return *domain.Error for failures they can classify.
type IdentityProvider interface {
	SignUp(ctx context.Context, creds domain.Credentials, meta domain.AccountMetadata) (*domain.Account, *domain.Session, error)
	SignInWithPassword(ctx context.Context, creds domain.Credentials) (*domain.Account, *domain.Session, error)
	SignOut(ctx context.Context, session domain.Session) error
	ResetPasswordForEmail(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, session domain.Session, newPassword string) (*domain.Account, error)
	GetUser(ctx context.Context, session domain.Session) (*domain.Account, error)
}

// RecordStore receives the profile written after sign-up.
// InsertProfile must be idempotent on Profile.ID.
type RecordStore interface {
	InsertProfile(ctx context.Context, profile domain.Profile) error
}

// PendingStore holds profile writes that failed and must be retried.
type PendingStore interface {
	Enqueue(ctx context.Context, p domain.PendingProfile) error
	Due(ctx context.Context, now time.Time, limit int) ([]domain.PendingProfile, error)
	Complete(ctx context.Context, accountID string) error
	Reschedule(ctx context.Context, accountID string, attempts int, next time.Time, lastErr string) error
}

// Recorder receives provisioning events for metrics.
type Recorder interface {
	AccountCreated()
	ProfileWriteFailed()
	ProfileReconciled()
	ProfileAbandoned()
	ProviderError(op string, kind domain.ErrorKind)
}

// Operation names used in logs and metrics.
const (
	OpCreateAccount        = "create_account"
	OpAuthenticate         = "authenticate"
	OpSignOut              = "sign_out"
	OpRequestPasswordReset = "request_password_reset"
	OpUpdatePassword       = "update_password"
	OpGetCurrentUser       = "get_current_user"
)

type nopRecorder struct{}

func (nopRecorder) AccountCreated()                        {}
func (nopRecorder) ProfileWriteFailed()                    {}
func (nopRecorder) ProfileReconciled()                     {}
func (nopRecorder) ProfileAbandoned()                      {}
func (nopRecorder) ProviderError(string, domain.ErrorKind) {}
