package models

import "time"

// Identity is the copy of a user record taken at login. Later changes to
// the row (a promotion, for instance) are not reflected until the next login.
type Identity struct {
	UserID     int64
	Username   string
	IsAdmin    bool
	ProfilePic string
}

// Session is the server-side authentication state for one browser.
type Session struct {
	ID        string
	Identity  Identity
	CSRFToken string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the session is past its expiry at now.
func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
