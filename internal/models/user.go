package models

import "time"

// User is the single durable account record. PasswordDigest and RefreshToken
// never leave the process; Sanitized strips them before a user crosses the
// service boundary.
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	FullName       string     `json:"fullName"`
	AvatarURL      string     `json:"avatar"`
	CoverImageURL  string     `json:"coverImage"`
	PasswordDigest string     `json:"-"`
	RefreshToken   *string    `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// Sanitized returns a copy safe to hand to transport: identity and media
// fields only, credential material zeroed.
func (u *User) Sanitized() *User {
	s := *u
	s.PasswordDigest = ""
	s.RefreshToken = nil
	return &s
}

// StoredRefreshToken returns the currently valid refresh token, or "" when
// the account has no live session.
func (u *User) StoredRefreshToken() string {
	if u.RefreshToken != nil {
		return *u.RefreshToken
	}
	return ""
}
