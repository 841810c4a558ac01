package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/account-provisioner/pkg/domain"
)

const resetTokenLen = 32

// DefaultPasswordResetTTL is how long a mailed reset token stays redeemable.
const DefaultPasswordResetTTL = time.Hour

// ResetMailer delivers password reset links.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

// ResetConfig holds password reset configuration.
type ResetConfig struct {
	TokenTTL time.Duration
}

// ResetService issues and redeems password reset tokens.
type ResetService struct {
	config    ResetConfig
	tokens    ResetTokenStore
	passwords *PasswordService
	sessions  *SessionService
	mailer    ResetMailer
}

// NewResetService creates a new reset service.
func NewResetService(config ResetConfig, tokens ResetTokenStore, passwords *PasswordService, sessions *SessionService, mailer ResetMailer) *ResetService {
	if config.TokenTTL == 0 {
		config.TokenTTL = DefaultPasswordResetTTL
	}
	return &ResetService{
		config:    config,
		tokens:    tokens,
		passwords: passwords,
		sessions:  sessions,
		mailer:    mailer,
	}
}

// RequestReset mails a reset token to email. Unknown addresses succeed silently.
func (s *ResetService) RequestReset(ctx context.Context, email string) error {
	if s.mailer == nil {
		return domain.ErrMailerNotConfigured
	}

	user, err := s.passwords.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return err
	}

	rawToken, err := GenerateToken(resetTokenLen)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	now := time.Now()
	token := &domain.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: HashToken(rawToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TokenTTL),
	}
	if err := s.tokens.Replace(ctx, token); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	name := ""
	if user.Name != nil {
		name = *user.Name
	}
	return s.mailer.SendPasswordReset(ctx, user.Email, name, rawToken)
}

// CompleteReset redeems rawToken, sets the new password and revokes every
// session of the user.
func (s *ResetService) CompleteReset(ctx context.Context, rawToken, newPassword string) error {
	token, err := s.tokens.GetByTokenHash(ctx, HashToken(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrResetTokenNotFound) {
			return domain.ErrResetTokenInvalid
		}
		return err
	}

	if !token.IsUsable(time.Now()) {
		if token.ConsumedAt != nil {
			return domain.ErrResetTokenConsumed
		}
		return domain.ErrResetTokenExpired
	}

	// Check the policy first so a rejected password does not burn the token
	if err := s.passwords.ValidatePassword(newPassword); err != nil {
		return err
	}

	if err := s.tokens.MarkConsumed(ctx, token.ID); err != nil {
		return err
	}

	if err := s.passwords.ChangePassword(ctx, token.UserID, newPassword); err != nil {
		return err
	}

	return s.sessions.RevokeAllSessions(ctx, token.UserID)
}
