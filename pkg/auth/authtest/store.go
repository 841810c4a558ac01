// Package authtest provides in-memory stores and a capturing mailer for
// exercising the auth services without a database.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/account-provisioner/pkg/domain"
)

// Store is an in-memory implementation of every store the auth services use.
// UserStore is implemented directly; the others through the accessors.
type Store struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*domain.User
	creds    map[uuid.UUID]*domain.UserPassword
	sessions map[uuid.UUID]*domain.SessionRecord
	tokens   map[uuid.UUID]*domain.PasswordResetToken
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*domain.User),
		creds:    make(map[uuid.UUID]*domain.UserPassword),
		sessions: make(map[uuid.UUID]*domain.SessionRecord),
		tokens:   make(map[uuid.UUID]*domain.PasswordResetToken),
	}
}

func (m *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Store) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

func (m *Store) CreateWithPassword(ctx context.Context, user *domain.User, cred *domain.UserPassword) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *user
	c := *cred
	m.users[user.ID] = &u
	m.creds[user.ID] = &c
	return nil
}

func (m *Store) IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts {
		until := time.Now().Add(lockoutDuration)
		u.LockedUntil = &until
	}
	return nil
}

func (m *Store) ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return nil
}

// Credentials returns the CredentialStore view of the store.
func (m *Store) Credentials() Credentials { return Credentials{m} }

// Sessions returns the SessionStore view of the store.
func (m *Store) Sessions() Sessions { return Sessions{m} }

// ResetTokens returns the ResetTokenStore view of the store.
func (m *Store) ResetTokens() ResetTokens { return ResetTokens{m} }

// HasSession reports whether a session row with id exists.
func (m *Store) HasSession(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// Credentials is the CredentialStore view of a Store. The method names
// overlap with UserStore so it needs its own type.
type Credentials struct{ m *Store }

func (c Credentials) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserPassword, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	cred, ok := c.m.creds[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *cred
	return &cp, nil
}

func (c Credentials) Update(ctx context.Context, cred *domain.UserPassword) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if _, ok := c.m.creds[cred.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	cp := *cred
	c.m.creds[cred.UserID] = &cp
	return nil
}

// Sessions is the SessionStore view of a Store.
type Sessions struct{ m *Store }

func (s Sessions) Create(ctx context.Context, session *domain.SessionRecord) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cp := *session
	s.m.sessions[session.ID] = &cp
	return nil
}

func (s Sessions) GetByID(ctx context.Context, id uuid.UUID) (*domain.SessionRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rec, ok := s.m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s Sessions) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if rec, ok := s.m.sessions[id]; ok {
		now := time.Now()
		rec.LastSeenAt = &now
	}
	return nil
}

func (s Sessions) Revoke(ctx context.Context, id uuid.UUID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rec, ok := s.m.sessions[id]
	if !ok || rec.RevokedAt != nil {
		return domain.ErrSessionNotFound
	}
	now := time.Now()
	rec.RevokedAt = &now
	return nil
}

func (s Sessions) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, rec := range s.m.sessions {
		if rec.TokenHash == tokenHash && rec.RevokedAt == nil {
			now := time.Now()
			rec.RevokedAt = &now
			return nil
		}
	}
	return domain.ErrSessionNotFound
}

func (s Sessions) RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	now := time.Now()
	for _, rec := range s.m.sessions {
		if rec.UserID == userID && rec.RevokedAt == nil {
			rec.RevokedAt = &now
		}
	}
	return nil
}

// ResetTokens is the ResetTokenStore view of a Store.
type ResetTokens struct{ m *Store }

func (t ResetTokens) Replace(ctx context.Context, token *domain.PasswordResetToken) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	now := time.Now()
	for _, existing := range t.m.tokens {
		if existing.UserID == token.UserID && existing.ConsumedAt == nil {
			existing.ConsumedAt = &now
		}
	}
	cp := *token
	t.m.tokens[token.ID] = &cp
	return nil
}

func (t ResetTokens) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for _, tok := range t.m.tokens {
		if tok.TokenHash == tokenHash {
			cp := *tok
			return &cp, nil
		}
	}
	return nil, domain.ErrResetTokenNotFound
}

func (t ResetTokens) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	tok, ok := t.m.tokens[id]
	if !ok {
		return domain.ErrResetTokenNotFound
	}
	if tok.ConsumedAt != nil {
		return domain.ErrResetTokenConsumed
	}
	now := time.Now()
	tok.ConsumedAt = &now
	return nil
}

// Mailer records the last password reset mail.
type Mailer struct {
	mu    sync.Mutex
	To    string
	Name  string
	Token string
	Calls int
	Err   error
}

func (c *Mailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	c.To, c.Name, c.Token = to, name, token
	return c.Err
}

// LastToken returns the token from the most recent mail.
func (c *Mailer) LastToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Token
}
