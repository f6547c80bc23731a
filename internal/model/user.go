package model

import (
	"errors"
	"time"
)

const (
	DefaultIcon       = "default"
	UsernameMinLength = 3
	UsernameMaxLength = 30
)

// User represents a user in the system
type User struct {
	ID           int64      `db:"id" json:"user_id"`
	Email        string     `db:"email" json:"-"`
	Username     string     `db:"username" json:"user_name"`
	Points       int64      `db:"points" json:"points"`
	Icon         string     `db:"icon" json:"icon"`
	OTPHash      *string    `db:"otp_hash" json:"-"`
	OTPExpiresAt *time.Time `db:"otp_expires_at" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// UserProfile is the public view of a user returned by the API.
type UserProfile struct {
	ID       int64  `db:"id" json:"user_id"`
	Username string `db:"username" json:"user_name"`
	Points   int64  `db:"points" json:"points"`
	Icon     string `db:"icon" json:"icon"`
}

func (u *User) Profile() UserProfile {
	icon := u.Icon
	if icon == "" {
		icon = DefaultIcon
	}
	return UserProfile{ID: u.ID, Username: u.Username, Points: u.Points, Icon: icon}
}

// RequestOTPRequest is the body of POST /auth/otp. The address is
// trimmed and checked by the auth service.
type RequestOTPRequest struct {
	Email string `json:"email" validate:"required"`
}

// VerifyOTPRequest is the body of POST /auth/otp/verify
type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required"`
	OTP   string `json:"otp" validate:"required"`
}

// VerifyOTPResponse carries the session token and the signed-in profile.
type VerifyOTPResponse struct {
	Message   string      `json:"message"`
	Token     string      `json:"token"`
	ExpiresIn int         `json:"expires_in"`
	Email     string      `json:"email"`
	User      UserProfile `json:"user"`
}

// ChangeProfileRequest is the body of PATCH /me
type ChangeProfileRequest struct {
	Username string  `json:"username" validate:"required"`
	Icon     *string `json:"icon" validate:"omitempty,max=512"`
}

// UpdatePointsRequest is the body of PUT /me/points
type UpdatePointsRequest struct {
	Points *int64 `json:"points" validate:"required"`
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	UserProfile
}

var (
	// ErrUsernameExists is returned by the store when a username is already taken
	ErrUsernameExists = errors.New("username already exists")

	// ErrEmailExists is returned by the store when an email is already registered
	ErrEmailExists = errors.New("email already exists")
)
