package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/account-provisioner/pkg/domain"
)

// SessionsRepository handles session persistence.
type SessionsRepository struct {
	db *sql.DB
}

// NewSessionsRepository creates a new sessions repository.
func NewSessionsRepository(db *sql.DB) *SessionsRepository {
	return &SessionsRepository{db: db}
}

// Create creates a new session.
func (r *SessionsRepository) Create(ctx context.Context, session *domain.SessionRecord) error {
	query := `
		INSERT INTO sessions (id, user_id, token_hash, created_at, expires_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.TokenHash,
		session.CreatedAt, session.ExpiresAt, nullableJSON(session.Metadata),
	)
	return err
}

// GetByID retrieves a session by ID.
func (r *SessionsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SessionRecord, error) {
	query := `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at, last_seen_at, metadata
		FROM sessions
		WHERE id = $1
	`
	session := &domain.SessionRecord{}
	var metadata []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.UserID, &session.TokenHash,
		&session.CreatedAt, &session.ExpiresAt, &session.RevokedAt,
		&session.LastSeenAt, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	session.Metadata = metadata
	return session, nil
}

// Revoke revokes a session.
func (r *SessionsRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`
	return execOne(ctx, r.db, domain.ErrSessionNotFound, query, id)
}

// RevokeByTokenHash revokes a session by refresh token hash.
func (r *SessionsRepository) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`
	return execOne(ctx, r.db, domain.ErrSessionNotFound, query, tokenHash)
}

// RevokeAllByUserID revokes all sessions for a user.
func (r *SessionsRepository) RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// UpdateLastSeen updates the last_seen_at timestamp.
func (r *SessionsRepository) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sessions
		SET last_seen_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// DeleteExpired deletes sessions that expired or were revoked before olderThan ago.
func (r *SessionsRepository) DeleteExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`
	cutoff := time.Now().Add(-olderThan)
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// execOne runs an update that must touch at least one row.
func execOne(ctx context.Context, q Querier, notFound error, query string, args ...any) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
