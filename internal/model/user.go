package model

import (
	"errors"
	"time"
)

// User is an account that can log in. Its role is the role carried by every
// event the user authors.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Address      string     `json:"address"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Actor returns the event author identity for u.
func (u User) Actor() Actor {
	addr := u.Address
	if addr == "" {
		addr = u.Username
	}
	return Actor{Address: addr, Role: u.Role}
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password strength rules.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}
