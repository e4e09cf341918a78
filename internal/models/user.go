package models

import "time"

// User represents a user account in the system.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose this to the client
	IsActive     bool      `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// UserPublic is the view of a user returned by the API.
type UserPublic struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Public strips everything but the public fields.
func (u User) Public() UserPublic {
	return UserPublic{ID: u.ID, Username: u.Username, Email: u.Email}
}
