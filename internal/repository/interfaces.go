package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"ecoaction/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetProfiles(ctx context.Context, ids []int64) ([]model.UserProfile, error)
	List(ctx context.Context) ([]model.UserProfile, error)
	TopByPoints(ctx context.Context, limit int) ([]model.UserProfile, error)
	Count(ctx context.Context) (int64, error)
	// ExistsByUsername ignores the row with id excludeID (0 checks every user).
	ExistsByUsername(ctx context.Context, username string, excludeID int64) (bool, error)
	SetOTP(ctx context.Context, userID int64, otpHash string, expiresAt time.Time) error
	// ConsumeOTP clears the stored code if it still equals otpHash.
	// Returns false when another request consumed or replaced it first.
	ConsumeOTP(ctx context.Context, userID int64, otpHash string) (bool, error)
	UpdateProfile(ctx context.Context, userID int64, username, icon string) error
	SetPoints(ctx context.Context, userID, points int64) error
	IncrementPoints(ctx context.Context, tx *sqlx.Tx, userID, delta int64) error
}

type FriendshipRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, f *model.Friendship) error
	// FindBetween looks up the row for the unordered pair (a, b).
	FindBetween(ctx context.Context, tx *sqlx.Tx, a, b int64) (*model.Friendship, error)
	GetByID(ctx context.Context, id int64) (*model.Friendship, error)
	UpdateStatus(ctx context.Context, id int64, status model.FriendshipStatus) error
	Delete(ctx context.Context, id int64) error
	DeleteBetween(ctx context.Context, a, b int64) (bool, error)
	ListForUser(ctx context.Context, userID int64, acceptedOnly bool) ([]model.Friendship, error)
	ListIncomingPending(ctx context.Context, userID int64) ([]model.Friendship, error)
}

type ActionRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, action *model.Action) error
	ListForUser(ctx context.Context, userID int64) ([]model.Action, error)
	Recent(ctx context.Context, limit int) ([]model.RecentAction, error)
	CountForUser(ctx context.Context, userID int64) (int64, error)
}

type ImageRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, image *model.Image) error
	GetByID(ctx context.Context, id int64) (*model.Image, error)
	ListForUser(ctx context.Context, userID int64) ([]model.ImageMeta, error)
}

type DeviceTokenRepository interface {
	// Upsert creates or updates a device token for a user
	Upsert(ctx context.Context, userID int64, token, platform string, now time.Time) error
	GetByUserID(ctx context.Context, userID int64) ([]model.DeviceToken, error)
	Delete(ctx context.Context, userID int64, token string) error
}
