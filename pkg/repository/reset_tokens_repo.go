package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/account-provisioner/pkg/domain"
)

// ResetTokensRepository handles password reset token persistence.
type ResetTokensRepository struct {
	db *sql.DB
}

// NewResetTokensRepository creates a new reset tokens repository.
func NewResetTokensRepository(db *sql.DB) *ResetTokensRepository {
	return &ResetTokensRepository{db: db}
}

// Replace revokes the user's active tokens and stores the new one in a transaction.
func (r *ResetTokensRepository) Replace(ctx context.Context, token *domain.PasswordResetToken) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.RevokeActiveTokensTx(ctx, tx, token.UserID); err != nil {
			return fmt.Errorf("failed to revoke active tokens: %w", err)
		}
		if err := r.CreateTx(ctx, tx, token); err != nil {
			return fmt.Errorf("failed to create token: %w", err)
		}
		return nil
	})
}

// CreateTx creates a new reset token within a transaction.
func (r *ResetTokensRepository) CreateTx(ctx context.Context, q Querier, token *domain.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.ExecContext(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt,
	)
	return err
}

// GetByTokenHash retrieves a reset token by its hash.
func (r *ResetTokensRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token_hash, created_at, expires_at, consumed_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`
	token := &domain.PasswordResetToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID, &token.UserID, &token.TokenHash,
		&token.CreatedAt, &token.ExpiresAt, &token.ConsumedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrResetTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// MarkConsumed marks a reset token as consumed. It fails if the token was
// already consumed, so concurrent redemptions cannot both succeed.
func (r *ResetTokensRepository) MarkConsumed(ctx context.Context, tokenID uuid.UUID) error {
	query := `
		UPDATE password_reset_tokens
		SET consumed_at = NOW()
		WHERE id = $1 AND consumed_at IS NULL
	`
	return execOne(ctx, r.db, domain.ErrResetTokenConsumed, query, tokenID)
}

// RevokeActiveTokensTx marks all of the user's unexpired tokens as consumed.
func (r *ResetTokensRepository) RevokeActiveTokensTx(ctx context.Context, q Querier, userID uuid.UUID) error {
	query := `
		UPDATE password_reset_tokens
		SET consumed_at = NOW()
		WHERE user_id = $1 AND consumed_at IS NULL AND expires_at > NOW()
	`
	_, err := q.ExecContext(ctx, query, userID)
	return err
}
