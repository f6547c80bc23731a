package model

import (
	"time"
)

// DeviceToken is a user's registered device for push notifications.
type DeviceToken struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"-"`
	Token     string    `db:"token" json:"-"`
	Platform  string    `db:"platform" json:"platform"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RegisterTokenRequest is the body of POST /me/devices
type RegisterTokenRequest struct {
	Token    string `json:"token" validate:"required,max=255"`
	Platform string `json:"platform" validate:"required,oneof=ios android"`
}

// UnregisterTokenRequest is the body of DELETE /me/devices
type UnregisterTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)
