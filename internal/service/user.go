package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"ecoaction/internal/apperror"
	"ecoaction/internal/cache"
	"ecoaction/internal/model"
	"ecoaction/internal/queue"
	"ecoaction/internal/repository"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// UserService handles profiles, point totals, the leaderboard and push
// device registration.
type UserService struct {
	users       repository.UserRepository
	devices     repository.DeviceTokenRepository
	leaderboard cache.LeaderboardCache // nil serves the leaderboard from the database
	publisher   queue.Publisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewUserService(
	users repository.UserRepository,
	devices repository.DeviceTokenRepository,
	leaderboard cache.LeaderboardCache,
	publisher queue.Publisher,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:       users,
		devices:     devices,
		leaderboard: leaderboard,
		publisher:   publisher,
		logger:      logger.With(slog.String("component", "user_service")),
		now:         time.Now,
	}
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*model.UserProfile, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]model.UserProfile, error) {
	return s.users.List(ctx)
}

// UpdatePoints overwrites the user's point total.
func (s *UserService) UpdatePoints(ctx context.Context, userID, points int64) (*model.UserProfile, error) {
	if points < 0 {
		return nil, apperror.ValidationFailed("points", "points must not be negative")
	}

	if err := s.users.SetPoints(ctx, userID, points); err != nil {
		return nil, err
	}
	queue.PublishAfterCommit(ctx, s.publisher, s.logger, queue.NewPointsChangedEvent(userID))

	return s.GetUser(ctx, userID)
}

// ChangeProfile sets a new username and, when icon is non-nil, a new icon.
func (s *UserService) ChangeProfile(ctx context.Context, userID int64, username string, icon *string) (*model.UserProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	taken, err := s.users.ExistsByUsername(ctx, username, userID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperror.Conflict("username already taken")
	}

	newIcon := user.Icon
	if icon != nil {
		newIcon = strings.TrimSpace(*icon)
		if newIcon == "" {
			newIcon = model.DefaultIcon
		}
	}

	if err := s.users.UpdateProfile(ctx, userID, username, newIcon); err != nil {
		if errors.Is(err, model.ErrUsernameExists) {
			return nil, apperror.Conflict("username already taken")
		}
		return nil, err
	}

	user.Username = username
	user.Icon = newIcon
	profile := user.Profile()
	return &profile, nil
}

// Leaderboard ranks users by points, highest first, ties by id. The Redis
// cache serves it when warm; otherwise the database does and the cache is
// warmed from the result.
func (s *UserService) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	if profiles, ok := s.leaderboardFromCache(ctx, limit); ok {
		return rank(profiles), nil
	}

	profiles, err := s.users.TopByPoints(ctx, cache.LeaderboardCap)
	if err != nil {
		return nil, err
	}
	s.warmLeaderboard(ctx, profiles)

	if len(profiles) > limit {
		profiles = profiles[:limit]
	}
	return rank(profiles), nil
}

func (s *UserService) leaderboardFromCache(ctx context.Context, limit int) ([]model.UserProfile, bool) {
	if s.leaderboard == nil {
		return nil, false
	}

	size, err := s.leaderboard.Size(ctx)
	if err != nil {
		s.logger.Warn("leaderboard cache unavailable", slog.Any("error", err))
		return nil, false
	}
	if size == 0 {
		return nil, false
	}

	// Every user must be ranked: a set smaller than the user table (up to the
	// cap) is missing accounts and gets rebuilt from the database.
	total, err := s.users.Count(ctx)
	if err != nil {
		s.logger.Warn("leaderboard user count failed", slog.Any("error", err))
		return nil, false
	}
	if size < min(total, int64(cache.LeaderboardCap)) {
		s.logger.Info("leaderboard cache incomplete, rebuilding",
			slog.Int64("cached", size), slog.Int64("users", total))
		return nil, false
	}

	entries, err := s.leaderboard.Top(ctx, limit)
	if err != nil {
		s.logger.Warn("leaderboard cache read failed", slog.Any("error", err))
		return nil, false
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	profiles, err := s.users.GetProfiles(ctx, ids)
	if err != nil {
		s.logger.Warn("leaderboard hydration failed", slog.Any("error", err))
		return nil, false
	}

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].Points != profiles[j].Points {
			return profiles[i].Points > profiles[j].Points
		}
		return profiles[i].ID < profiles[j].ID
	})
	return profiles, true
}

func (s *UserService) warmLeaderboard(ctx context.Context, profiles []model.UserProfile) {
	if s.leaderboard == nil || len(profiles) == 0 {
		return
	}
	entries := make([]cache.ScoreEntry, len(profiles))
	for i, p := range profiles {
		entries[i] = cache.ScoreEntry{UserID: p.ID, Points: p.Points}
	}
	if err := s.leaderboard.Warm(ctx, entries); err != nil {
		s.logger.Warn("leaderboard warm failed", slog.Any("error", err))
	}
}

func rank(profiles []model.UserProfile) []model.LeaderboardEntry {
	entries := make([]model.LeaderboardEntry, len(profiles))
	for i, p := range profiles {
		if p.Icon == "" {
			p.Icon = model.DefaultIcon
		}
		entries[i] = model.LeaderboardEntry{Rank: i + 1, UserProfile: p}
	}
	return entries
}

// RegisterDevice stores or updates an Expo push token for the user. A token
// already held by another user moves to this one.
func (s *UserService) RegisterDevice(ctx context.Context, userID int64, token, platform string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperror.ValidationFailed("token", "token is required")
	}
	if platform != model.PlatformIOS && platform != model.PlatformAndroid {
		return apperror.ValidationFailed("platform", "platform must be ios or android")
	}
	return s.devices.Upsert(ctx, userID, token, platform, s.now().UTC())
}

func (s *UserService) UnregisterDevice(ctx context.Context, userID int64, token string) error {
	return s.devices.Delete(ctx, userID, strings.TrimSpace(token))
}
