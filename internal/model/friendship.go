package model

import (
	"time"
)

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
)

type Friendship struct {
	ID          int64            `db:"id" json:"friendship_id"`
	RequesterID int64            `db:"requester_id" json:"requester_id"`
	AddresseeID int64            `db:"addressee_id" json:"addressee_id"`
	Status      FriendshipStatus `db:"status" json:"status"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// Involves reports whether userID is either side of the friendship.
func (f *Friendship) Involves(userID int64) bool {
	return f.RequesterID == userID || f.AddresseeID == userID
}

// OtherSide returns the participant that is not userID.
func (f *Friendship) OtherSide(userID int64) int64 {
	if f.RequesterID == userID {
		return f.AddresseeID
	}
	return f.RequesterID
}

// Friend is a friendship seen from one participant.
type Friend struct {
	FriendshipID int64            `json:"friendship_id"`
	FriendID     int64            `json:"friend_id"`
	Status       FriendshipStatus `json:"status"`
	Incoming     bool             `json:"incoming"`
	CreatedAt    time.Time        `json:"created_at"`
}

// SendFriendRequest is the body of POST /friends/requests
type SendFriendRequest struct {
	FriendID int64 `json:"friend_id" validate:"required,gt=0"`
}
