package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"ecoaction/internal/apperror"
	"ecoaction/internal/database"
	"ecoaction/internal/model"
)

const friendshipColumns = `id, requester_id, addressee_id, status, created_at`

type friendshipRepository struct {
	db *sqlx.DB
}

func NewFriendshipRepository(db *sqlx.DB) FriendshipRepository {
	return &friendshipRepository{db: db}
}

func (r *friendshipRepository) Create(ctx context.Context, tx *sqlx.Tx, f *model.Friendship) error {
	query := tx.Rebind(`
		INSERT INTO friendships (requester_id, addressee_id, status, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`)

	err := tx.QueryRowxContext(ctx, query, f.RequesterID, f.AddresseeID, f.Status, f.CreatedAt).Scan(&f.ID)
	if err != nil {
		if isUniqueViolation(err, "requester_id") || isUniqueViolation(err, database.FriendshipPairIndex) {
			return apperror.Conflict("friend request already exists")
		}
		return fmt.Errorf("failed to create friendship: %w", err)
	}
	return nil
}

func (r *friendshipRepository) FindBetween(ctx context.Context, tx *sqlx.Tx, a, b int64) (*model.Friendship, error) {
	query := tx.Rebind(`
		SELECT ` + friendshipColumns + `
		FROM friendships
		WHERE (requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)
		ORDER BY id
		LIMIT 1
	`)

	var f model.Friendship
	err := tx.GetContext(ctx, &f, query, a, b, b, a)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage(fmt.Sprintf("no friendship between users %d and %d", a, b))
		}
		return nil, fmt.Errorf("failed to find friendship: %w", err)
	}
	return &f, nil
}

func (r *friendshipRepository) GetByID(ctx context.Context, id int64) (*model.Friendship, error) {
	query := r.db.Rebind(`SELECT ` + friendshipColumns + ` FROM friendships WHERE id = ?`)

	var f model.Friendship
	err := r.db.GetContext(ctx, &f, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("friend request", id)
		}
		return nil, fmt.Errorf("failed to get friendship: %w", err)
	}
	return &f, nil
}

func (r *friendshipRepository) UpdateStatus(ctx context.Context, id int64, status model.FriendshipStatus) error {
	query := r.db.Rebind(`UPDATE friendships SET status = ? WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update friendship status: %w", err)
	}
	return requireOneRow(result, "friend request", id)
}

func (r *friendshipRepository) Delete(ctx context.Context, id int64) error {
	query := r.db.Rebind(`DELETE FROM friendships WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete friendship: %w", err)
	}
	return requireOneRow(result, "friend request", id)
}

func (r *friendshipRepository) DeleteBetween(ctx context.Context, a, b int64) (bool, error) {
	query := r.db.Rebind(`
		DELETE FROM friendships
		WHERE (requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)
	`)
	result, err := r.db.ExecContext(ctx, query, a, b, b, a)
	if err != nil {
		return false, fmt.Errorf("failed to delete friendship: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *friendshipRepository) ListForUser(ctx context.Context, userID int64, acceptedOnly bool) ([]model.Friendship, error) {
	query := `
		SELECT ` + friendshipColumns + `
		FROM friendships
		WHERE (requester_id = ? OR addressee_id = ?)`
	args := []any{userID, userID}
	if acceptedOnly {
		query += ` AND status = ?`
		args = append(args, model.FriendshipAccepted)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	friendships := []model.Friendship{}
	if err := r.db.SelectContext(ctx, &friendships, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list friendships: %w", err)
	}
	return friendships, nil
}

func (r *friendshipRepository) ListIncomingPending(ctx context.Context, userID int64) ([]model.Friendship, error) {
	query := r.db.Rebind(`
		SELECT ` + friendshipColumns + `
		FROM friendships
		WHERE addressee_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC
	`)

	friendships := []model.Friendship{}
	if err := r.db.SelectContext(ctx, &friendships, query, userID, model.FriendshipPending); err != nil {
		return nil, fmt.Errorf("failed to list friend requests: %w", err)
	}
	return friendships, nil
}
