package service

import (
	"context"
	"fmt"
	"log/slog"

	"ecoaction/internal/queue"
	"ecoaction/internal/repository"
)

// PushSender delivers a notification to a set of device tokens.
type PushSender interface {
	SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]any) error
}

// NotificationService pushes friend-request notifications to the
// recipient's registered devices. Workers call it after the friendship
// change has committed.
type NotificationService struct {
	devices repository.DeviceTokenRepository
	users   repository.UserRepository
	push    PushSender
	logger  *slog.Logger
}

func NewNotificationService(
	devices repository.DeviceTokenRepository,
	users repository.UserRepository,
	push PushSender,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{
		devices: devices,
		users:   users,
		push:    push,
		logger:  logger.With(slog.String("component", "notification_service")),
	}
}

// NotifyFriendRequest tells the addressee someone wants to be friends.
func (s *NotificationService) NotifyFriendRequest(ctx context.Context, requesterID, addresseeID, friendshipID int64) error {
	return s.notify(ctx, addresseeID, requesterID, queue.EventFriendRequestSent, friendshipID,
		"New friend request", "%s wants to be your friend")
}

// NotifyFriendAccepted tells the requester their request was accepted.
func (s *NotificationService) NotifyFriendAccepted(ctx context.Context, requesterID, addresseeID, friendshipID int64) error {
	return s.notify(ctx, requesterID, addresseeID, queue.EventFriendRequestAccepted, friendshipID,
		"Friend request accepted", "%s accepted your friend request")
}

func (s *NotificationService) notify(ctx context.Context, recipientID, actorID int64, kind string, friendshipID int64, title, bodyFormat string) error {
	tokens, err := s.devices.GetByUserID(ctx, recipientID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return err
	}

	tokenStrings := make([]string, len(tokens))
	for i, t := range tokens {
		tokenStrings[i] = t.Token
	}

	data := map[string]any{
		"type":          kind,
		"actor_id":      actorID,
		"friendship_id": friendshipID,
	}
	if err := s.push.SendToTokens(ctx, tokenStrings, title, fmt.Sprintf(bodyFormat, actor.Username), data); err != nil {
		return fmt.Errorf("push to user %d: %w", recipientID, err)
	}

	s.logger.Debug("push queued", slog.String("type", kind), slog.Int64("recipient_id", recipientID))
	return nil
}
