// Package domain contains core concepts of the messaging system.
// This file defines User entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// User is a registered account. Online must be true exactly when
// DevicesOnline > 0; the counter tracks simultaneously open connections
// across devices and never goes negative.
type User struct {
	ID            string
	Username      string
	Name          string
	Email         string
	PasswordHash  string
	Picture       *string
	Dark          bool
	Online        bool
	DevicesOnline int
	LastOnline    time.Time
	CreatedAt     time.Time
}

// Profile strips credentials for anything that leaves the process.
func (u User) Profile() UserProfile {
	return UserProfile{
		ID:         u.ID,
		Username:   u.Username,
		Name:       u.Name,
		Email:      u.Email,
		Picture:    u.Picture,
		Dark:       u.Dark,
		Online:     u.Online,
		LastOnline: u.LastOnline,
	}
}

// UserProfile is the outward-facing shape of an account.
type UserProfile struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Picture    *string   `json:"picture"`
	Dark       bool      `json:"dark"`
	Online     bool      `json:"online"`
	LastOnline time.Time `json:"lastOnline"`
}

// PresenceSnapshot is the slice of User state pushed to direct-conversation
// peers when the user crosses an online/offline edge.
type PresenceSnapshot struct {
	UserID     string
	Online     bool
	LastOnline time.Time
}
