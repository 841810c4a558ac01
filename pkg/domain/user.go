package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an account held by the local identity provider.
type User struct {
	ID                  uuid.UUID
	Email               string
	EmailVerified       bool
	Name                *string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time
}

// IsLocked returns true if the account is currently locked.
func (u *User) IsLocked() bool {
	if u.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*u.LockedUntil)
}

// Account converts the local user into the provider-neutral account shape.
func (u *User) Account() *Account {
	a := &Account{
		ID:             u.ID.String(),
		Email:          u.Email,
		EmailConfirmed: u.EmailVerified,
		CreatedAt:      u.CreatedAt,
	}
	if u.Name != nil {
		a.DisplayName = *u.Name
		a.Metadata = map[string]any{"full_name": *u.Name}
	}
	return a
}

// UserPassword stores password credentials separately from the user row.
type UserPassword struct {
	UserID            uuid.UUID
	PasswordHash      string
	PasswordUpdatedAt time.Time
}

// PasswordResetToken is a single-use token mailed to the account owner.
// Only the hash of the token is stored.
type PasswordResetToken struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// IsUsable reports whether the token can still be redeemed at now.
func (t *PasswordResetToken) IsUsable(now time.Time) bool {
	return t.ConsumedAt == nil && now.Before(t.ExpiresAt)
}
