package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session is the handle an identity provider returns on sign-up or sign-in.
// Callers hold it and pass it back explicitly on session-bound operations.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id,omitempty"`
}

// IsZero reports whether the session carries no access token.
func (s *Session) IsZero() bool {
	return s == nil || s.AccessToken == ""
}

// SessionRecord is a session row stored by the local identity provider.
type SessionRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastSeenAt *time.Time
	Metadata   json.RawMessage
}

// SessionMetadata holds optional session context.
type SessionMetadata struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// IsValid checks if the session is valid (not expired and not revoked).
func (s *SessionRecord) IsValid() bool {
	if s.RevokedAt != nil {
		return false
	}
	return time.Now().Before(s.ExpiresAt)
}
