package model

import "time"

// User is a row of auth_users. Apps are not stored per row; the single
// AppURL column is the fallback when no app list is configured.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	AppURL       string    `json:"app_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ResetToken is a row of password_reset_tokens. Only the hash of the raw
// token is ever stored.
type ResetToken struct {
	ID        int64      `json:"id"`
	UserEmail string     `json:"user_email"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// IssuedResetToken carries the raw token back to the caller exactly once.
type IssuedResetToken struct {
	Token string
	Email string
}
