package model

import (
	"time"
)

// PhotoBonusPoints is added to the caller's base points for photo-verified actions.
const PhotoBonusPoints = 5

// DefaultRecentLimit is how many actions the recent activity feed returns.
const DefaultRecentLimit = 10

type Action struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	ActionType   string    `db:"action_type" json:"action_type"`
	PointsEarned int64     `db:"points_earned" json:"points_earned"`
	Timestamp    time.Time `db:"timestamp" json:"timestamp"`
}

// RecentAction is an action annotated with its owner's username.
type RecentAction struct {
	Action
	Username string `db:"username" json:"user_name"`
}

// LogActionRequest is the body of POST /actions
type LogActionRequest struct {
	ActionType string `json:"action_type" validate:"required,max=64"`
	Points     *int64 `json:"points" validate:"required,gte=0"`
	Timestamp  string `json:"timestamp" validate:"omitempty"`
}

// PhotoUploadResult is returned after a photo-verified action is recorded.
type PhotoUploadResult struct {
	ImageID      int64 `json:"image_id"`
	ActionID     int64 `json:"action_id"`
	ActionPoints int64 `json:"action_points"`
}
