// Package local implements provisioning.IdentityProvider in-process on top of
// the pkg/auth services, for deployments without a hosted auth service.
package local

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tendant/account-provisioner/pkg/auth"
	"github.com/tendant/account-provisioner/pkg/domain"
)

// Provider is the self-hosted identity provider.
type Provider struct {
	passwords *auth.PasswordService
	sessions  *auth.SessionService
	resets    *auth.ResetService
	logger    *slog.Logger
}

// New creates a local provider.
func New(passwords *auth.PasswordService, sessions *auth.SessionService, resets *auth.ResetService, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		passwords: passwords,
		sessions:  sessions,
		resets:    resets,
		logger:    logger,
	}
}

// SignUp registers the user and signs them in.
func (p *Provider) SignUp(ctx context.Context, creds domain.Credentials, meta domain.AccountMetadata) (*domain.Account, *domain.Session, error) {
	user, err := p.passwords.Register(ctx, creds.Email, creds.Password, meta.DisplayName)
	if err != nil {
		return nil, nil, p.mapError("sign-up", err)
	}

	session, err := p.sessions.IssueSession(ctx, user.ID, auth.ClientInfo(ctx))
	if err != nil {
		// The account exists at this point; the caller can still sign in.
		p.logger.Error("failed to issue session after sign-up", "error", err, "user_id", user.ID)
		return user.Account(), nil, nil
	}
	return user.Account(), session, nil
}

// SignInWithPassword verifies the credentials and issues a session.
func (p *Provider) SignInWithPassword(ctx context.Context, creds domain.Credentials) (*domain.Account, *domain.Session, error) {
	user, err := p.passwords.Authenticate(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, nil, p.mapError("sign-in", err)
	}

	session, err := p.sessions.IssueSession(ctx, user.ID, auth.ClientInfo(ctx))
	if err != nil {
		return nil, nil, p.mapError("sign-in", err)
	}
	return user.Account(), session, nil
}

// SignOut revokes the session.
func (p *Provider) SignOut(ctx context.Context, session domain.Session) error {
	if err := p.sessions.RevokeSession(ctx, session); err != nil {
		return p.mapError("sign-out", err)
	}
	return nil
}

// ResetPasswordForEmail mails a reset token. Unknown addresses succeed.
func (p *Provider) ResetPasswordForEmail(ctx context.Context, email string) error {
	if err := p.resets.RequestReset(ctx, email); err != nil {
		return p.mapError("password reset request", err)
	}
	return nil
}

// UpdatePassword changes the password of the session's user.
func (p *Provider) UpdatePassword(ctx context.Context, session domain.Session, newPassword string) (*domain.Account, error) {
	userID, err := p.sessions.Resolve(ctx, session)
	if err != nil {
		return nil, p.mapError("password update", err)
	}
	if err := p.passwords.ChangePassword(ctx, userID, newPassword); err != nil {
		return nil, p.mapError("password update", err)
	}
	user, err := p.passwords.GetUserByID(ctx, userID)
	if err != nil {
		return nil, p.mapError("password update", err)
	}
	return user.Account(), nil
}

// GetUser returns the account behind the session.
func (p *Provider) GetUser(ctx context.Context, session domain.Session) (*domain.Account, error) {
	userID, err := p.sessions.Resolve(ctx, session)
	if err != nil {
		return nil, p.mapError("user lookup", err)
	}
	user, err := p.passwords.GetUserByID(ctx, userID)
	if err != nil {
		return nil, p.mapError("user lookup", err)
	}
	return user.Account(), nil
}

// CompletePasswordReset redeems a mailed reset token and sets the new
// password. Every session of the user is revoked.
func (p *Provider) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	if err := p.resets.CompleteReset(ctx, token, newPassword); err != nil {
		return p.mapError("password reset", err)
	}
	return nil
}

// mapError turns auth errors into domain errors with user-facing messages.
func (p *Provider) mapError(action string, err error) error {
	if err == nil {
		return nil
	}

	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		kind := domain.KindInvalidInput
		code := "validation_failed"
		if errors.Is(verr, domain.ErrWeakPassword) {
			kind, code = domain.KindWeakPassword, "weak_password"
		}
		return &domain.Error{Kind: kind, Code: code, Message: verr.Msg, Err: err}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return &domain.Error{Kind: m.kind, Code: m.code, Message: m.message, Err: err}
		}
	}

	p.logger.Error("local provider failure", "error", err, "action", action)
	return domain.WrapError(domain.KindUnavailable, "authentication service unavailable", err)
}

var errorMappings = []struct {
	target  error
	kind    domain.ErrorKind
	code    string
	message string
}{
	{domain.ErrUserAlreadyExists, domain.KindAlreadyExists, "user_already_exists", "User already registered"},
	{domain.ErrInvalidCredentials, domain.KindInvalidCredentials, "invalid_credentials", "Invalid login credentials"},
	{domain.ErrAccountLocked, domain.KindRateLimited, "account_locked", "Too many failed login attempts, try again later"},
	{domain.ErrInvalidToken, domain.KindUnauthenticated, "bad_jwt", "Invalid or expired session"},
	{domain.ErrSessionNotFound, domain.KindUnauthenticated, "session_not_found", "Session not found"},
	{domain.ErrSessionExpired, domain.KindUnauthenticated, "session_expired", "Session expired"},
	{domain.ErrSessionRevoked, domain.KindUnauthenticated, "session_revoked", "Session has been signed out"},
	{domain.ErrUserNotFound, domain.KindNotFound, "user_not_found", "User not found"},
	{domain.ErrResetTokenInvalid, domain.KindInvalidInput, "reset_token_invalid", "Password reset link is invalid"},
	{domain.ErrResetTokenNotFound, domain.KindInvalidInput, "reset_token_invalid", "Password reset link is invalid"},
	{domain.ErrResetTokenExpired, domain.KindInvalidInput, "reset_token_expired", "Password reset link has expired"},
	{domain.ErrResetTokenConsumed, domain.KindInvalidInput, "reset_token_used", "Password reset link has already been used"},
	{domain.ErrMailerNotConfigured, domain.KindUnavailable, "email_not_configured", "Password reset email is not available"},
}
