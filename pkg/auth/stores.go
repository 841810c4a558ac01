package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/account-provisioner/pkg/domain"
)

// UserStore persists local users. Implemented by repository.UsersRepository.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	CreateWithPassword(ctx context.Context, user *domain.User, cred *domain.UserPassword) error
	IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error
	ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error
}

// CredentialStore persists password hashes.
type CredentialStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserPassword, error)
	Update(ctx context.Context, cred *domain.UserPassword) error
}

// SessionStore persists session rows.
type SessionStore interface {
	Create(ctx context.Context, session *domain.SessionRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SessionRecord, error)
	UpdateLastSeen(ctx context.Context, id uuid.UUID) error
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error
}

// ResetTokenStore persists password reset tokens.
type ResetTokenStore interface {
	// Replace revokes the user's active tokens and stores token.
	Replace(ctx context.Context, token *domain.PasswordResetToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error)
	// MarkConsumed fails with ErrResetTokenConsumed if the token was already used.
	MarkConsumed(ctx context.Context, id uuid.UUID) error
}
