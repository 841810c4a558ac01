package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tendant/account-provisioner/pkg/domain"
)

// ProfilesRepository writes application profiles to Postgres.
type ProfilesRepository struct {
	db *sql.DB
}

// NewProfilesRepository creates a new profiles repository.
func NewProfilesRepository(db *sql.DB) *ProfilesRepository {
	return &ProfilesRepository{db: db}
}

// InsertProfile inserts the profile. Inserting an ID that already exists is
// a no-op, which makes the write safe to retry.
func (r *ProfilesRepository) InsertProfile(ctx context.Context, profile domain.Profile) error {
	query := `
		INSERT INTO profiles (id, full_name, email, role, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		profile.ID, profile.FullName, profile.Email, profile.Role, profile.UpdatedAt,
	)
	if isUniqueViolation(err) {
		e := domain.WrapError(domain.KindRejected, "profile conflicts with an existing row", err)
		e.Code = domain.CodeProfileConflict
		return e
	}
	if err != nil {
		return domain.WrapError(domain.KindUnavailable, "failed to insert profile", err)
	}
	return nil
}

// GetByID retrieves a profile by account ID.
func (r *ProfilesRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `
		SELECT id, full_name, email, role, updated_at
		FROM profiles
		WHERE id = $1
	`
	p := &domain.Profile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.FullName, &p.Email, &p.Role, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "profile not found")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
