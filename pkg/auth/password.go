package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/account-provisioner/pkg/domain"
	"golang.org/x/crypto/argon2"
)

// Argon2 parameters (OWASP recommended)
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// Lockout policy
const (
	MaxFailedAttempts = 5
	LockoutDuration   = 15 * time.Minute
)

// PasswordService handles password authentication.
type PasswordService struct {
	users                UserStore
	creds                CredentialStore
	policy               *PasswordPolicy
	blockDisposableEmail bool
}

// NewPasswordService creates a new password service.
func NewPasswordService(users UserStore, creds CredentialStore, policy *PasswordPolicy, blockDisposableEmail bool) *PasswordService {
	return &PasswordService{
		users:                users,
		creds:                creds,
		policy:               policy,
		blockDisposableEmail: blockDisposableEmail,
	}
}

// Register creates a new user with password credentials.
func (s *PasswordService) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	if err := ValidateEmail(email, true, s.blockDisposableEmail); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)

	if err := s.ValidatePassword(password); err != nil {
		return nil, err
	}

	name = SanitizeName(name)

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrUserAlreadyExists
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:            uuid.New(),
		Email:         email,
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if name != "" {
		user.Name = &name
	}

	cred := &domain.UserPassword{
		UserID:            user.ID,
		PasswordHash:      hash,
		PasswordUpdatedAt: now,
	}

	// User and credentials are written in one transaction
	if err := s.users.CreateWithPassword(ctx, user, cred); err != nil {
		return nil, err
	}

	return user, nil
}

// Authenticate verifies email and password, returns the user on success.
// Locks the account for LockoutDuration after MaxFailedAttempts failures.
func (s *PasswordService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.IsLocked() {
		return nil, domain.ErrAccountLocked
	}

	cred, err := s.creds.GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !VerifyPassword(password, cred.PasswordHash) {
		_ = s.users.IncrementFailedLoginAttempts(ctx, user.ID, LockoutDuration, MaxFailedAttempts)
		return nil, domain.ErrInvalidCredentials
	}

	// Successful login - reset failed attempts
	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		_ = s.users.ResetFailedLoginAttempts(ctx, user.ID)
	}

	return user, nil
}

// GetUserByEmail retrieves a user by email address.
func (s *PasswordService) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetByEmail(ctx, NormalizeEmail(email))
}

// GetUserByID retrieves a user by ID.
func (s *PasswordService) GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// ValidatePassword checks password against the configured policy.
func (s *PasswordService) ValidatePassword(password string) error {
	if s.policy == nil {
		return nil
	}
	return s.policy.ValidatePassword(password)
}

// ChangePassword changes a user's password.
func (s *PasswordService) ChangePassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	if err := s.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.creds.Update(ctx, &domain.UserPassword{
		UserID:            userID,
		PasswordHash:      hash,
		PasswordUpdatedAt: time.Now(),
	})
}

// HashPassword hashes a password using Argon2id.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := randomBytes(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return encodeArgon2Hash(hash, salt, argon2Time, argon2Memory, argon2Threads), nil
}

// VerifyPassword verifies a password against an Argon2id hash.
func VerifyPassword(password, encodedHash string) bool {
	hash, salt, time, memory, threads, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(hash)))
	return constantTimeCompare(hash, computed)
}
