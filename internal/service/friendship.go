package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"ecoaction/internal/apperror"
	"ecoaction/internal/model"
	"ecoaction/internal/queue"
	"ecoaction/internal/repository"
)

// FriendshipService moves friendships between pending and accepted.
// Denying or unfriending deletes the row.
type FriendshipService struct {
	friendships repository.FriendshipRepository
	users       repository.UserRepository
	db          *sqlx.DB
	publisher   queue.Publisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewFriendshipService(
	friendships repository.FriendshipRepository,
	users repository.UserRepository,
	db *sqlx.DB,
	publisher queue.Publisher,
	logger *slog.Logger,
) *FriendshipService {
	return &FriendshipService{
		friendships: friendships,
		users:       users,
		db:          db,
		publisher:   publisher,
		logger:      logger.With(slog.String("component", "friendship_service")),
		now:         time.Now,
	}
}

// SendRequest creates a pending friendship from userID to friendID.
// Any existing row for the pair, in either direction, is a conflict.
func (s *FriendshipService) SendRequest(ctx context.Context, userID, friendID int64) (*model.Friendship, error) {
	if userID == friendID {
		return nil, apperror.ValidationFailed("friend_id", "cannot send a friend request to yourself")
	}

	if _, err := s.users.GetByID(ctx, friendID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = s.friendships.FindBetween(ctx, tx, userID, friendID)
	switch {
	case err == nil:
		return nil, apperror.Conflict("friend request already exists")
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, err
	}

	f := &model.Friendship{
		RequesterID: userID,
		AddresseeID: friendID,
		Status:      model.FriendshipPending,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.friendships.Create(ctx, tx, f); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	queue.PublishAfterCommit(ctx, s.publisher, s.logger, queue.NewFriendRequestSentEvent(f.ID, f.RequesterID, f.AddresseeID))
	return f, nil
}

// Accept marks a request accepted. Only the addressee may accept; accepting
// twice is allowed.
func (s *FriendshipService) Accept(ctx context.Context, actorID, friendshipID int64) (*model.Friendship, error) {
	f, err := s.friendships.GetByID(ctx, friendshipID)
	if err != nil {
		return nil, err
	}
	if f.AddresseeID != actorID {
		return nil, apperror.Forbidden("only the recipient can accept a friend request")
	}

	if err := s.friendships.UpdateStatus(ctx, f.ID, model.FriendshipAccepted); err != nil {
		return nil, err
	}
	f.Status = model.FriendshipAccepted

	queue.PublishAfterCommit(ctx, s.publisher, s.logger, queue.NewFriendRequestAcceptedEvent(f.ID, f.RequesterID, f.AddresseeID))
	return f, nil
}

// Deny deletes a friendship row. Either participant may deny.
func (s *FriendshipService) Deny(ctx context.Context, actorID, friendshipID int64) error {
	f, err := s.friendships.GetByID(ctx, friendshipID)
	if err != nil {
		return err
	}
	if !f.Involves(actorID) {
		return apperror.Forbidden("not a participant in this friend request")
	}
	return s.friendships.Delete(ctx, f.ID)
}

// Unfriend removes the friendship between the two users regardless of who
// sent the original request.
func (s *FriendshipService) Unfriend(ctx context.Context, userID, friendID int64) error {
	deleted, err := s.friendships.DeleteBetween(ctx, userID, friendID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperror.NotFoundMessage(fmt.Sprintf("no friendship between users %d and %d", userID, friendID))
	}
	return nil
}

// ListFriends returns every friendship of userID seen from their side.
func (s *FriendshipService) ListFriends(ctx context.Context, userID int64, acceptedOnly bool) ([]model.Friend, error) {
	rows, err := s.friendships.ListForUser(ctx, userID, acceptedOnly)
	if err != nil {
		return nil, err
	}
	return toFriends(userID, rows), nil
}

// ListRequests returns the pending requests addressed to userID.
func (s *FriendshipService) ListRequests(ctx context.Context, userID int64) ([]model.Friend, error) {
	rows, err := s.friendships.ListIncomingPending(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toFriends(userID, rows), nil
}

func toFriends(userID int64, rows []model.Friendship) []model.Friend {
	friends := make([]model.Friend, len(rows))
	for i := range rows {
		f := &rows[i]
		friends[i] = model.Friend{
			FriendshipID: f.ID,
			FriendID:     f.OtherSide(userID),
			Status:       f.Status,
			Incoming:     f.AddresseeID == userID,
			CreatedAt:    f.CreatedAt,
		}
	}
	return friends
}
