package models

import "time"

// Session represents an authenticated portal session. The token is an opaque
// crypto-random string; revocation is a flag so that outstanding access
// tokens fail lazily on their next validation.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// Valid reports whether the session is active at the given instant.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && !s.Revoked && now.Before(s.ExpiresAt)
}

// AccessToken is a single-use, short-lived grant for one app, bound to the
// portal session that requested it.
type AccessToken struct {
	Token     string    `json:"-"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	AppID     int64     `json:"app_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
}

// Expired reports whether the token's lifetime has passed.
func (t *AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
