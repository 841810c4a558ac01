package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tendant/account-provisioner/pkg/domain"
)

// DefaultClaimLease is how long claimed entries stay hidden from other workers.
const DefaultClaimLease = 5 * time.Minute

// PendingProfilesRepository is the Postgres outbox of profile writes that
// failed after sign-up.
type PendingProfilesRepository struct {
	db    *sql.DB
	lease time.Duration
}

// NewPendingProfilesRepository creates a new pending profiles repository.
func NewPendingProfilesRepository(db *sql.DB) *PendingProfilesRepository {
	return &PendingProfilesRepository{db: db, lease: DefaultClaimLease}
}

// Enqueue stores a failed profile write. Re-enqueueing the same account
// refreshes the payload and error but keeps the attempt count.
func (r *PendingProfilesRepository) Enqueue(ctx context.Context, p domain.PendingProfile) error {
	query := `
		INSERT INTO pending_profiles
			(id, full_name, email, role, profile_updated_at, attempts, next_attempt_at, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET full_name = EXCLUDED.full_name,
		    email = EXCLUDED.email,
		    role = EXCLUDED.role,
		    profile_updated_at = EXCLUDED.profile_updated_at,
		    last_error = EXCLUDED.last_error
	`
	_, err := r.db.ExecContext(ctx, query,
		p.Profile.ID, p.Profile.FullName, p.Profile.Email, p.Profile.Role, p.Profile.UpdatedAt,
		p.Attempts, p.NextAttemptAt, p.LastError, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue pending profile: %w", err)
	}
	return nil
}

// Due claims up to limit entries whose next attempt is at or before now.
// Claimed entries are pushed back by the lease so concurrent workers skip them.
func (r *PendingProfilesRepository) Due(ctx context.Context, now time.Time, limit int) ([]domain.PendingProfile, error) {
	query := `
		UPDATE pending_profiles
		SET next_attempt_at = $3
		WHERE id IN (
			SELECT id FROM pending_profiles
			WHERE next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, full_name, email, role, profile_updated_at, attempts, next_attempt_at, last_error, created_at
	`
	rows, err := r.db.QueryContext(ctx, query, now, limit, now.Add(r.lease))
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending profiles: %w", err)
	}
	defer rows.Close()

	var pending []domain.PendingProfile
	for rows.Next() {
		var p domain.PendingProfile
		err := rows.Scan(
			&p.Profile.ID, &p.Profile.FullName, &p.Profile.Email, &p.Profile.Role, &p.Profile.UpdatedAt,
			&p.Attempts, &p.NextAttemptAt, &p.LastError, &p.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// Complete removes the entry for accountID.
func (r *PendingProfilesRepository) Complete(ctx context.Context, accountID string) error {
	query := `DELETE FROM pending_profiles WHERE id = $1`
	return execOne(ctx, r.db, domain.ErrPendingProfileNotFound, query, accountID)
}

// Reschedule records a failed attempt and the time of the next one.
func (r *PendingProfilesRepository) Reschedule(ctx context.Context, accountID string, attempts int, next time.Time, lastErr string) error {
	query := `
		UPDATE pending_profiles
		SET attempts = $2, next_attempt_at = $3, last_error = $4
		WHERE id = $1
	`
	return execOne(ctx, r.db, domain.ErrPendingProfileNotFound, query, accountID, attempts, next, lastErr)
}

// Count returns the number of entries waiting for reconciliation.
func (r *PendingProfilesRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_profiles`).Scan(&n)
	return n, err
}
