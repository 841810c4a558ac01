package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/account-provisioner/pkg/domain"
)

// UsersRepository handles local user persistence.
type UsersRepository struct {
	db *sql.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

const userColumns = `id, email, email_verified, name, failed_login_attempts, locked_until,
		       created_at, updated_at, deleted_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.EmailVerified, &user.Name,
		&user.FailedLoginAttempts, &user.LockedUntil,
		&user.CreatedAt, &user.UpdatedAt, &user.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateTx creates a new user within a transaction.
func (r *UsersRepository) CreateTx(ctx context.Context, q Querier, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, email_verified, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := q.ExecContext(ctx, query,
		user.ID, user.Email, user.EmailVerified, user.Name, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrUserAlreadyExists
	}
	return err
}

// CreateWithPassword creates a user and its password credential in one transaction.
func (r *UsersRepository) CreateWithPassword(ctx context.Context, user *domain.User, cred *domain.UserPassword) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.CreateTx(ctx, tx, user); err != nil {
			return err
		}
		return createCredentialTx(ctx, tx, cred)
	})
}

// GetByID retrieves a user by ID.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE id = $1 AND deleted_at IS NULL
	`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE email = $1 AND deleted_at IS NULL
	`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// ExistsByEmail checks if a user exists by email.
func (r *UsersRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND deleted_at IS NULL)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	return exists, err
}

// IncrementFailedLoginAttempts increments the failed login attempts counter
// and locks the account once maxAttempts is reached.
func (r *UsersRepository) IncrementFailedLoginAttempts(ctx context.Context, userID uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN NOW() + make_interval(secs => $3)
		        ELSE locked_until
		    END,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, userID, maxAttempts, lockoutDuration.Seconds())
	return err
}

// ResetFailedLoginAttempts resets the failed login attempts and clears lockout.
func (r *UsersRepository) ResetFailedLoginAttempts(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// SoftDelete soft-deletes a user.
func (r *UsersRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
