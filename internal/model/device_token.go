package model

import (
	"time"
)

// DeviceToken represents a user's registered device for push notifications.
// A user may register several devices; (user_id, token) is unique.
type DeviceToken struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"-"`
	Token     string    `db:"token" json:"-"` // FCM token, hidden from JSON
	Platform  string    `db:"platform" json:"platform"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PushRegisterRequest is the body of POST /push/register.
type PushRegisterRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"omitempty,oneof=android ios web"`
}

// RegisterTokenRequest is the body of the authenticated POST /devices/token.
type RegisterTokenRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"omitempty,oneof=android ios web"`
}

// Platform constants
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
)

// DefaultPlatform is used when a registration omits the platform.
const DefaultPlatform = PlatformAndroid

// ValidPlatform reports whether p is one of the supported platforms.
func ValidPlatform(p string) bool {
	switch p {
	case PlatformAndroid, PlatformIOS, PlatformWeb:
		return true
	}
	return false
}
