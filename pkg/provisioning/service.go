package provisioning

import (
	"context"
	"log/slog"
	"time"

	"github.com/tendant/account-provisioner/pkg/domain"
)

// Reconciliation defaults
const (
	DefaultMaxAttempts    = 10
	DefaultInitialBackoff = 30 * time.Second
	DefaultMaxBackoff     = time.Hour
)

// Config holds the service's collaborators. Provider and Profiles are required.
type Config struct {
	Provider IdentityProvider
	Profiles RecordStore
	Pending  PendingStore // optional
	Recorder Recorder     // optional
	Logger   *slog.Logger

	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Service implements the account provisioning workflows.
// It is safe for concurrent use.
type Service struct {
	provider IdentityProvider
	profiles RecordStore
	pending  PendingStore
	recorder Recorder
	logger   *slog.Logger

	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

// NewService creates a new provisioning service.
func NewService(cfg Config) *Service {
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		provider:       cfg.Provider,
		profiles:       cfg.Profiles,
		pending:        cfg.Pending,
		recorder:       cfg.Recorder,
		logger:         cfg.Logger,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		now:            cfg.Now,
	}
}

// CreateAccount signs the user up with the provider and then writes their
// profile. A failed profile write is logged and queued for reconciliation;
// it never turns a successful sign-up into a failure.
func (s *Service) CreateAccount(ctx context.Context, email, password, displayName string) domain.AccountResult {
	account, session, err := s.provider.SignUp(ctx,
		domain.Credentials{Email: email, Password: password},
		domain.AccountMetadata{DisplayName: displayName},
	)
	if err != nil {
		return domain.AccountFailure(s.providerFailure(ctx, OpCreateAccount, err))
	}
	if account == nil {
		return domain.AccountFailure(s.noAccount(ctx, OpCreateAccount))
	}

	s.recorder.AccountCreated()

	profile := domain.NewSignUpProfile(account.ID, displayName, email, s.now())
	if err := s.profiles.InsertProfile(ctx, profile); err != nil {
		s.profileWriteFailed(ctx, profile, err)
	}

	result := domain.AccountResult{User: account}
	if !session.IsZero() {
		result.Session = session
	}
	return result
}

func (s *Service) profileWriteFailed(ctx context.Context, profile domain.Profile, err error) {
	s.recorder.ProfileWriteFailed()
	s.logger.Error("profile write failed after sign-up",
		"error", err,
		"account_id", profile.ID,
	)

	if s.pending == nil {
		return
	}
	if domain.IsProfileConflict(err) {
		s.recorder.ProfileAbandoned()
		s.logger.Error("profile conflicts with another row, not queued", "account_id", profile.ID)
		return
	}

	// The caller's context may be cancelled as soon as we return
	enqueueCtx := context.WithoutCancel(ctx)
	now := s.now()
	entry := domain.PendingProfile{
		Profile:       profile,
		NextAttemptAt: now.Add(s.backoff(0)),
		LastError:     err.Error(),
		CreatedAt:     now,
	}
	if qerr := s.pending.Enqueue(enqueueCtx, entry); qerr != nil {
		s.logger.Error("failed to queue profile for reconciliation",
			"error", qerr,
			"account_id", profile.ID,
		)
	}
}

// Authenticate signs in with email and password.
func (s *Service) Authenticate(ctx context.Context, email, password string) domain.AccountResult {
	account, session, err := s.provider.SignInWithPassword(ctx, domain.Credentials{Email: email, Password: password})
	if err != nil {
		return domain.AccountFailure(s.providerFailure(ctx, OpAuthenticate, err))
	}
	if account == nil {
		return domain.AccountFailure(s.noAccount(ctx, OpAuthenticate))
	}

	result := domain.AccountResult{User: account}
	if !session.IsZero() {
		result.Session = session
	}
	return result
}

// SignOut ends the session.
func (s *Service) SignOut(ctx context.Context, session *domain.Session) domain.ActionResult {
	if session.IsZero() {
		return domain.ActionFailure(errSessionMissing())
	}
	if err := s.provider.SignOut(ctx, *session); err != nil {
		return domain.ActionFailure(s.providerFailure(ctx, OpSignOut, err))
	}
	return domain.ActionSucceeded()
}

// RequestPasswordReset asks the provider to mail a reset link. Whether the
// address belongs to an account is not checked here.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) domain.ActionResult {
	if err := s.provider.ResetPasswordForEmail(ctx, email); err != nil {
		return domain.ActionFailure(s.providerFailure(ctx, OpRequestPasswordReset, err))
	}
	return domain.ActionSucceeded()
}

// UpdatePassword sets a new password for the session's user.
func (s *Service) UpdatePassword(ctx context.Context, session *domain.Session, newPassword string) domain.ActionResult {
	if session.IsZero() {
		return domain.ActionFailure(errSessionMissing())
	}
	if _, err := s.provider.UpdatePassword(ctx, *session, newPassword); err != nil {
		return domain.ActionFailure(s.providerFailure(ctx, OpUpdatePassword, err))
	}
	return domain.ActionSucceeded()
}

// GetCurrentUser returns the account behind the session.
func (s *Service) GetCurrentUser(ctx context.Context, session *domain.Session) domain.AccountResult {
	if session.IsZero() {
		return domain.AccountFailure(errSessionMissing())
	}
	account, err := s.provider.GetUser(ctx, *session)
	if err != nil {
		return domain.AccountFailure(s.providerFailure(ctx, OpGetCurrentUser, err))
	}
	if account == nil {
		return domain.AccountFailure(domain.NewError(domain.KindNotFound, "User not found"))
	}
	return domain.AccountResult{User: account}
}

// providerFailure classifies, logs and counts a provider error.
func (s *Service) providerFailure(ctx context.Context, op string, err error) *domain.Error {
	e := domain.AsError(err)
	s.recorder.ProviderError(op, e.Kind)

	level := slog.LevelWarn
	if e.Kind == domain.KindUnavailable || e.Kind == domain.KindInternal {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "identity provider call failed",
		"op", op,
		"kind", string(e.Kind),
		"code", e.Code,
		"error", err,
	)
	return e
}

// noAccount handles a provider that reported success without an account.
func (s *Service) noAccount(ctx context.Context, op string) *domain.Error {
	e := domain.NewError(domain.KindInternal, "provider returned no account")
	s.recorder.ProviderError(op, e.Kind)
	s.logger.ErrorContext(ctx, "identity provider returned no account", "op", op)
	return e
}

func errSessionMissing() *domain.Error {
	return domain.NewError(domain.KindUnauthenticated, "Auth session missing!")
}
