package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ecoaction/internal/cache"
	"ecoaction/internal/model"
	"ecoaction/internal/queue"
)

// UserLookup abstracts the user repository so workers read current totals
// without depending on the database layer.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// FriendNotifier delivers friend-request push notifications.
type FriendNotifier interface {
	NotifyFriendRequest(ctx context.Context, requesterID, addresseeID, friendshipID int64) error
	NotifyFriendAccepted(ctx context.Context, requesterID, addresseeID, friendshipID int64) error
}

// Handler processes activity events from the queue.
type Handler struct {
	leaderboard cache.LeaderboardCache
	users       UserLookup
	notifier    FriendNotifier // nil when push is disabled
	logger      *slog.Logger
}

func NewHandler(leaderboard cache.LeaderboardCache, users UserLookup, notifier FriendNotifier, logger *slog.Logger) *Handler {
	return &Handler{
		leaderboard: leaderboard,
		users:       users,
		notifier:    notifier,
		logger:      logger.With(slog.String("component", "worker_handler")),
	}
}

// HandleEvent routes an event to the appropriate handler based on type.
func (h *Handler) HandleEvent(ctx context.Context, event queue.ActivityEvent) error {
	start := time.Now()
	var err error

	switch event.Type {
	case queue.EventPointsChanged:
		err = h.handlePointsChanged(ctx, event)
	case queue.EventFriendRequestSent:
		if h.notifier != nil {
			err = h.notifier.NotifyFriendRequest(ctx, event.RequesterID, event.AddresseeID, event.FriendshipID)
		}
	case queue.EventFriendRequestAccepted:
		if h.notifier != nil {
			err = h.notifier.NotifyFriendAccepted(ctx, event.RequesterID, event.AddresseeID, event.FriendshipID)
		}
	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err != nil {
		h.logger.Error("event failed", slog.String("type", event.Type), slog.Duration("duration", time.Since(start)), slog.Any("error", err))
		return err
	}

	h.logger.Debug("event handled", slog.String("type", event.Type), slog.Duration("duration", time.Since(start)))
	return nil
}

// handlePointsChanged copies the user's committed total into the leaderboard.
// Redelivered events are idempotent.
func (h *Handler) handlePointsChanged(ctx context.Context, event queue.ActivityEvent) error {
	user, err := h.users.GetByID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("get user %d: %w", event.UserID, err)
	}
	return h.leaderboard.SetScore(ctx, user.ID, user.Points)
}
