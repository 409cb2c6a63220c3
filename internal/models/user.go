package models

import "time"

// User represents a user account in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string `json:"-"` // Never expose this to the client
	IsAdmin      bool
	ProfilePic   string
	CreatedAt    time.Time
}

// Identity returns the snapshot of u that a session carries.
func (u User) Identity() Identity {
	return Identity{
		UserID:     u.ID,
		Username:   u.Username,
		IsAdmin:    u.IsAdmin,
		ProfilePic: u.ProfilePic,
	}
}
