package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"ecoaction/internal/model"
)

type actionRepository struct {
	db *sqlx.DB
}

func NewActionRepository(db *sqlx.DB) ActionRepository {
	return &actionRepository{db: db}
}

// Create appends an action. Actions are never updated or deleted.
func (r *actionRepository) Create(ctx context.Context, tx *sqlx.Tx, a *model.Action) error {
	query := tx.Rebind(`
		INSERT INTO actions (user_id, action_type, points_earned, timestamp)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`)

	err := tx.QueryRowxContext(ctx, query, a.UserID, a.ActionType, a.PointsEarned, a.Timestamp).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

func (r *actionRepository) ListForUser(ctx context.Context, userID int64) ([]model.Action, error) {
	query := r.db.Rebind(`
		SELECT id, user_id, action_type, points_earned, timestamp
		FROM actions
		WHERE user_id = ?
		ORDER BY timestamp ASC, id ASC
	`)

	actions := []model.Action{}
	if err := r.db.SelectContext(ctx, &actions, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	return actions, nil
}

// Recent returns the newest actions across all users. Actions whose owner
// cannot be resolved get an empty username.
func (r *actionRepository) Recent(ctx context.Context, limit int) ([]model.RecentAction, error) {
	query := r.db.Rebind(`
		SELECT a.id, a.user_id, a.action_type, a.points_earned, a.timestamp,
		       COALESCE(u.username, '') AS username
		FROM actions a
		LEFT JOIN users u ON u.id = a.user_id
		ORDER BY a.timestamp DESC, a.id DESC
		LIMIT ?
	`)

	actions := []model.RecentAction{}
	if err := r.db.SelectContext(ctx, &actions, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get recent actions: %w", err)
	}
	return actions, nil
}

func (r *actionRepository) CountForUser(ctx context.Context, userID int64) (int64, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM actions WHERE user_id = ?`)

	var count int64
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return count, nil
}
