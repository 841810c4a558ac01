package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/account-provisioner/pkg/domain"
)

const (
	refreshTokenLen = 32

	// Default token lifetimes
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// SessionConfig holds session configuration.
type SessionConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	JWTSecret       []byte
	Issuer          string
}

// SessionService issues and resolves sessions for the local provider.
type SessionService struct {
	config   SessionConfig
	sessions SessionStore
	users    UserStore
}

// NewSessionService creates a new session service.
func NewSessionService(config SessionConfig, sessions SessionStore, users UserStore) *SessionService {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	return &SessionService{
		config:   config,
		sessions: sessions,
		users:    users,
	}
}

// AccessTokenTTL returns the access token TTL.
func (s *SessionService) AccessTokenTTL() time.Duration {
	return s.config.AccessTokenTTL
}

// IssueSessionOpts holds options for session issuance.
type IssueSessionOpts struct {
	IP        string
	UserAgent string
}

// AccessTokenClaims represents the claims in an access token.
// The token ID is the session ID, so revoking the session invalidates the token.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
}

// IssueSession creates a session row and returns the session handle.
// This is the single entry point for session creation.
func (s *SessionService) IssueSession(ctx context.Context, userID uuid.UUID, opts IssueSessionOpts) (*domain.Session, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	// Refresh token is opaque and stored hashed
	refreshToken, err := GenerateToken(refreshTokenLen)
	if err != nil {
		return nil, err
	}

	record := &domain.SessionRecord{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
	}
	if opts.IP != "" || opts.UserAgent != "" {
		metadataJSON, _ := json.Marshal(domain.SessionMetadata{IP: opts.IP, UserAgent: opts.UserAgent})
		record.Metadata = metadataJSON
	}

	if err := s.sessions.Create(ctx, record); err != nil {
		return nil, err
	}

	accessTokenExpiry := now.Add(s.config.AccessTokenTTL)
	name := ""
	if user.Name != nil {
		name = *user.Name
	}
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessTokenExpiry),
			Issuer:    s.config.Issuer,
			ID:        record.ID.String(),
		},
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Name:          name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString(s.config.JWTSecret)
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
		ExpiresAt:    accessTokenExpiry,
		UserID:       userID.String(),
	}, nil
}

// Resolve validates the session's access token and checks that the backing
// session row is still active. It returns the user ID the session belongs to.
func (s *SessionService) Resolve(ctx context.Context, session domain.Session) (uuid.UUID, error) {
	claims, err := s.ValidateAccessToken(session.AccessToken)
	if err != nil {
		return uuid.Nil, err
	}

	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidToken
	}

	record, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return uuid.Nil, err
	}
	if record.UserID != userID {
		return uuid.Nil, domain.ErrInvalidToken
	}
	if !record.IsValid() {
		if record.RevokedAt != nil {
			return uuid.Nil, domain.ErrSessionRevoked
		}
		return uuid.Nil, domain.ErrSessionExpired
	}

	_ = s.sessions.UpdateLastSeen(ctx, record.ID)

	return userID, nil
}

// RevokeSession revokes the session behind the handle. The refresh token is
// preferred since it stays usable after the access token expires.
func (s *SessionService) RevokeSession(ctx context.Context, session domain.Session) error {
	if session.RefreshToken != "" {
		err := s.sessions.RevokeByTokenHash(ctx, HashToken(session.RefreshToken))
		if err == nil || !errors.Is(err, domain.ErrSessionNotFound) || session.AccessToken == "" {
			return err
		}
	}

	claims, err := s.ValidateAccessToken(session.AccessToken)
	if err != nil {
		return err
	}
	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return domain.ErrInvalidToken
	}
	return s.sessions.Revoke(ctx, sessionID)
}

// RevokeAllSessions revokes all sessions for a user.
func (s *SessionService) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	return s.sessions.RevokeAllByUserID(ctx, userID)
}

// ValidateAccessToken validates an access token and returns the claims.
func (s *SessionService) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	if tokenString == "" {
		return nil, domain.ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.JWTSecret, nil
	})
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}

type clientInfoKey struct{}

// WithClientInfo attaches the caller's IP and user agent to ctx so sessions
// issued further down record them.
func WithClientInfo(ctx context.Context, opts IssueSessionOpts) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, opts)
}

// ClientInfo returns the IP and user agent stored by WithClientInfo.
func ClientInfo(ctx context.Context) IssueSessionOpts {
	opts, _ := ctx.Value(clientInfoKey{}).(IssueSessionOpts)
	return opts
}
