package service

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"ecoaction/internal/apperror"
	"ecoaction/internal/model"
	"ecoaction/internal/queue"
	"ecoaction/internal/repository"
)

const (
	maxRecentLimit = 100

	summaryDateLayout = "2006-01-02"
)

// timestampLayouts are the ISO-8601 forms accepted for client timestamps.
// Fractional seconds are accepted by time.Parse even when the layout omits them.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// LedgerService records point-earning actions and aggregates them.
type LedgerService struct {
	actions   repository.ActionRepository
	images    *ImageService
	users     repository.UserRepository
	db        *sqlx.DB
	publisher queue.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewLedgerService(
	actions repository.ActionRepository,
	images *ImageService,
	users repository.UserRepository,
	db *sqlx.DB,
	publisher queue.Publisher,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		actions:   actions,
		images:    images,
		users:     users,
		db:        db,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "ledger_service")),
		now:       time.Now,
	}
}

// LogAction appends an action. It does not touch the user's point total.
func (s *LedgerService) LogAction(ctx context.Context, userID int64, actionType string, points int64, timestamp string) (*model.Action, error) {
	actionType = strings.TrimSpace(actionType)
	if actionType == "" {
		return nil, apperror.ValidationFailed("action_type", "action_type is required")
	}
	if points < 0 {
		return nil, apperror.ValidationFailed("points", "points must not be negative")
	}

	ts := s.now().UTC()
	if strings.TrimSpace(timestamp) != "" {
		parsed, err := ParseTimestamp(timestamp)
		if err != nil {
			return nil, err
		}
		ts = parsed
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	action := &model.Action{
		UserID:       userID,
		ActionType:   actionType,
		PointsEarned: points,
		Timestamp:    ts,
	}
	if err := s.actions.Create(ctx, tx, action); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return action, nil
}

// UploadPhoto stores a photo and records a photo-verified action worth
// basePoints plus the photo bonus. The image, the action and the user's new
// total commit together or not at all.
func (s *LedgerService) UploadPhoto(
	ctx context.Context,
	userID int64,
	actionType string,
	basePoints int64,
	file multipart.File,
	header *multipart.FileHeader,
) (*model.PhotoUploadResult, error) {
	actionType = strings.TrimSpace(actionType)
	if actionType == "" {
		return nil, apperror.ValidationFailed("action_type", "action_type is required")
	}
	if basePoints < 0 {
		return nil, apperror.ValidationFailed("points", "points must not be negative")
	}

	data, contentType, err := readAndValidateImage(file, header, model.MaxPhotoSizeBytes)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	total := basePoints + model.PhotoBonusPoints

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	img, err := s.images.StoreTx(ctx, tx, userID, data, header.Filename, contentType)
	if err != nil {
		return nil, err
	}

	action := &model.Action{
		UserID:       userID,
		ActionType:   actionType,
		PointsEarned: total,
		Timestamp:    now,
	}
	if err := s.actions.Create(ctx, tx, action); err != nil {
		return nil, err
	}

	if err := s.users.IncrementPoints(ctx, tx, userID, total); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Info("photo action recorded",
		slog.Int64("user_id", userID),
		slog.Int64("image_id", img.ID),
		slog.Int64("points", total),
	)
	queue.PublishAfterCommit(ctx, s.publisher, s.logger, queue.NewPointsChangedEvent(userID))

	return &model.PhotoUploadResult{
		ImageID:      img.ID,
		ActionID:     action.ID,
		ActionPoints: total,
	}, nil
}

// DailySummary sums a user's points per calendar day of the stored
// timestamps. Days without actions are absent from the map.
func (s *LedgerService) DailySummary(ctx context.Context, userID int64) (map[string]int64, error) {
	actions, err := s.actions.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := make(map[string]int64)
	for _, a := range actions {
		summary[a.Timestamp.UTC().Format(summaryDateLayout)] += a.PointsEarned
	}
	return summary, nil
}

// Recent returns the newest actions across all users.
func (s *LedgerService) Recent(ctx context.Context, limit int) ([]model.RecentAction, error) {
	if limit <= 0 {
		limit = model.DefaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	return s.actions.Recent(ctx, limit)
}

func (s *LedgerService) CountForUser(ctx context.Context, userID int64) (int64, error) {
	return s.actions.CountForUser(ctx, userID)
}

// ParseTimestamp reads an ISO-8601 timestamp as the client's wall clock.
// A zone offset is dropped so the supplied calendar date survives storage.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
		}
	}
	return time.Time{}, apperror.ValidationFailed("timestamp", fmt.Sprintf("invalid ISO-8601 timestamp %q", value))
}
