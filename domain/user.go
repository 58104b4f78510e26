// Package domain contains core concepts of the chat system.
// This file defines the User view of a connected identity.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

type UserStatus string

const (
	StatusActive  UserStatus = "active"
	StatusAway    UserStatus = "away"
	StatusOffline UserStatus = "offline"
)

// User is an immutable snapshot of a session, safe to hand to other goroutines.
type User struct {
	ID           string
	Nickname     string
	Online       bool
	Status       UserStatus
	LastActivity time.Time
}
