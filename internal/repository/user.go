package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"ecoaction/internal/apperror"
	"ecoaction/internal/model"
)

const userColumns = `id, email, username, points, icon, otp_hash, otp_expires_at, created_at`

// userRepository implements UserRepository using sqlx
type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user and fills in its ID.
func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	if u.Icon == "" {
		u.Icon = model.DefaultIcon
	}

	query := r.db.Rebind(`
		INSERT INTO users (email, username, points, icon, otp_hash, otp_expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := r.db.QueryRowxContext(ctx, query,
		u.Email,
		u.Username,
		u.Points,
		u.Icon,
		u.OTPHash,
		u.OTPExpiresAt,
		u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		switch {
		case isUniqueViolation(err, "email"):
			return model.ErrEmailExists
		case isUniqueViolation(err, "username"):
			return model.ErrUsernameExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)

	var u model.User
	err := r.db.GetContext(ctx, &u, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return &u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)

	var u model.User
	err := r.db.GetContext(ctx, &u, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("user not found")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &u, nil
}

func (r *userRepository) GetProfiles(ctx context.Context, ids []int64) ([]model.UserProfile, error) {
	if len(ids) == 0 {
		return []model.UserProfile{}, nil
	}

	query, args, err := sqlx.In(`SELECT id, username, points, icon FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build profiles query: %w", err)
	}

	profiles := []model.UserProfile{}
	if err := r.db.SelectContext(ctx, &profiles, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get profiles: %w", err)
	}
	return profiles, nil
}

func (r *userRepository) List(ctx context.Context) ([]model.UserProfile, error) {
	profiles := []model.UserProfile{}
	err := r.db.SelectContext(ctx, &profiles, `SELECT id, username, points, icon FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return profiles, nil
}

func (r *userRepository) TopByPoints(ctx context.Context, limit int) ([]model.UserProfile, error) {
	query := r.db.Rebind(`
		SELECT id, username, points, icon
		FROM users
		ORDER BY points DESC, id ASC
		LIMIT ?
	`)

	profiles := []model.UserProfile{}
	if err := r.db.SelectContext(ctx, &profiles, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	return profiles, nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ExistsByUsername checks if a username is already taken by anyone but excludeID
func (r *userRepository) ExistsByUsername(ctx context.Context, username string, excludeID int64) (bool, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM users WHERE username = ? AND id <> ?`)

	var count int
	if err := r.db.GetContext(ctx, &count, query, username, excludeID); err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}

	return count > 0, nil
}

func (r *userRepository) SetOTP(ctx context.Context, userID int64, otpHash string, expiresAt time.Time) error {
	query := r.db.Rebind(`UPDATE users SET otp_hash = ?, otp_expires_at = ? WHERE id = ?`)
	return r.execOne(ctx, "set otp", userID, query, otpHash, expiresAt, userID)
}

func (r *userRepository) ConsumeOTP(ctx context.Context, userID int64, otpHash string) (bool, error) {
	query := r.db.Rebind(`
		UPDATE users SET otp_hash = NULL, otp_expires_at = NULL
		WHERE id = ? AND otp_hash = ?
	`)

	result, err := r.db.ExecContext(ctx, query, userID, otpHash)
	if err != nil {
		return false, fmt.Errorf("failed to consume otp: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, userID int64, username, icon string) error {
	query := r.db.Rebind(`UPDATE users SET username = ?, icon = ? WHERE id = ?`)
	err := r.execOne(ctx, "update profile", userID, query, username, icon, userID)
	if isUniqueViolation(err, "username") {
		return model.ErrUsernameExists
	}
	return err
}

func (r *userRepository) SetPoints(ctx context.Context, userID, points int64) error {
	query := r.db.Rebind(`UPDATE users SET points = ? WHERE id = ?`)
	return r.execOne(ctx, "set points", userID, query, points, userID)
}

func (r *userRepository) IncrementPoints(ctx context.Context, tx *sqlx.Tx, userID, delta int64) error {
	query := tx.Rebind(`UPDATE users SET points = points + ? WHERE id = ?`)
	result, err := tx.ExecContext(ctx, query, delta, userID)
	if err != nil {
		return fmt.Errorf("failed to increment points: %w", err)
	}
	return requireOneRow(result, "user", userID)
}

// execOne runs an update that must touch exactly the row identified by userID.
func (r *userRepository) execOne(ctx context.Context, op string, userID int64, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return requireOneRow(result, "user", userID)
}

func requireOneRow(result sql.Result, resource string, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
