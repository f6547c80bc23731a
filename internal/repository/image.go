package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"ecoaction/internal/apperror"
	"ecoaction/internal/model"
)

type imageRepository struct {
	db *sqlx.DB
}

func NewImageRepository(db *sqlx.DB) ImageRepository {
	return &imageRepository{db: db}
}

func (r *imageRepository) Create(ctx context.Context, tx *sqlx.Tx, img *model.Image) error {
	query := tx.Rebind(`
		INSERT INTO images (user_id, filename, mimetype, data, uploaded_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := tx.QueryRowxContext(ctx, query, img.UserID, img.Filename, img.Mimetype, img.Data, img.UploadedAt).Scan(&img.ID)
	if err != nil {
		return fmt.Errorf("failed to insert image: %w", err)
	}
	return nil
}

func (r *imageRepository) GetByID(ctx context.Context, id int64) (*model.Image, error) {
	query := r.db.Rebind(`
		SELECT id, user_id, filename, mimetype, data, uploaded_at
		FROM images
		WHERE id = ?
	`)

	var img model.Image
	err := r.db.GetContext(ctx, &img, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("image", id)
		}
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return &img, nil
}

func (r *imageRepository) ListForUser(ctx context.Context, userID int64) ([]model.ImageMeta, error) {
	query := r.db.Rebind(`
		SELECT id, filename, mimetype, uploaded_at
		FROM images
		WHERE user_id = ?
		ORDER BY uploaded_at DESC, id DESC
	`)

	images := []model.ImageMeta{}
	if err := r.db.SelectContext(ctx, &images, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return images, nil
}
