package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"ecoaction/internal/apperror"
	"ecoaction/internal/model"
	"ecoaction/internal/repository"
)

// ImageService stores uploaded photos as blobs in the database.
type ImageService struct {
	images repository.ImageRepository
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewImageService(images repository.ImageRepository, db *sqlx.DB, logger *slog.Logger) *ImageService {
	return &ImageService{
		images: images,
		db:     db,
		logger: logger.With(slog.String("component", "image_service")),
		now:    time.Now,
	}
}

// Store persists one immutable image and returns its id.
func (s *ImageService) Store(ctx context.Context, userID int64, data []byte, filename, mimetype string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	img, err := s.StoreTx(ctx, tx, userID, data, filename, mimetype)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return img.ID, nil
}

// StoreTx is Store inside a caller-owned transaction. Nothing is visible
// until the caller commits.
func (s *ImageService) StoreTx(ctx context.Context, tx *sqlx.Tx, userID int64, data []byte, filename, mimetype string) (*model.Image, error) {
	if len(data) == 0 {
		return nil, apperror.ValidationFailed("image", "image is empty")
	}

	img := &model.Image{
		UserID:     userID,
		Filename:   cleanFilename(filename),
		Mimetype:   mimetype,
		Data:       data,
		UploadedAt: s.now().UTC(),
	}
	if err := s.images.Create(ctx, tx, img); err != nil {
		return nil, err
	}
	return img, nil
}

// Fetch returns the stored bytes and mimetype.
func (s *ImageService) Fetch(ctx context.Context, id int64) (*model.Image, error) {
	return s.images.GetByID(ctx, id)
}

func (s *ImageService) ListForUser(ctx context.Context, userID int64) ([]model.ImageMeta, error) {
	return s.images.ListForUser(ctx, userID)
}

// Thumbnail renders a centre-cropped square JPEG of the stored image.
func (s *ImageService) Thumbnail(ctx context.Context, id int64, size int) ([]byte, error) {
	if size <= 0 {
		size = model.ThumbnailSize
	}

	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	thumb, err := resizeToJPEG(img.Data, size, size)
	if err != nil {
		s.logger.Warn("thumbnail render failed", slog.Int64("image_id", id), slog.Any("error", err))
		return nil, apperror.ValidationFailed("image", "image cannot be rendered as a thumbnail")
	}
	return thumb, nil
}

// cleanFilename keeps only the base name of a client-supplied filename.
func cleanFilename(name string) string {
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "upload"
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
