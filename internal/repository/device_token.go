package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"ecoaction/internal/model"
)

type deviceTokenRepository struct {
	db *sqlx.DB
}

func NewDeviceTokenRepository(db *sqlx.DB) DeviceTokenRepository {
	return &deviceTokenRepository{db: db}
}

// Upsert creates or updates a device token for a user.
// A token that moves to another account is reassigned.
func (r *deviceTokenRepository) Upsert(ctx context.Context, userID int64, token, platform string, now time.Time) error {
	query := r.db.Rebind(`
		INSERT INTO device_tokens (user_id, token, platform, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			updated_at = EXCLUDED.updated_at
	`)
	_, err := r.db.ExecContext(ctx, query, userID, token, platform, now, now)
	if err != nil {
		return fmt.Errorf("upsert device token: %w", err)
	}
	return nil
}

// GetByUserID returns all device tokens for a user.
func (r *deviceTokenRepository) GetByUserID(ctx context.Context, userID int64) ([]model.DeviceToken, error) {
	query := r.db.Rebind(`
		SELECT id, user_id, token, platform, created_at, updated_at
		FROM device_tokens
		WHERE user_id = ?
		ORDER BY updated_at DESC
	`)
	tokens := []model.DeviceToken{}
	if err := r.db.SelectContext(ctx, &tokens, query, userID); err != nil {
		return nil, fmt.Errorf("get device tokens: %w", err)
	}
	return tokens, nil
}

// Delete removes a device token owned by userID.
func (r *deviceTokenRepository) Delete(ctx context.Context, userID int64, token string) error {
	query := r.db.Rebind(`DELETE FROM device_tokens WHERE user_id = ? AND token = ?`)
	if _, err := r.db.ExecContext(ctx, query, userID, token); err != nil {
		return fmt.Errorf("delete device token: %w", err)
	}
	return nil
}
