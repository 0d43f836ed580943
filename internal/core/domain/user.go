// Package domain contains the core entities and business rules for keyforge.
package domain

import (
	"time"
)

const (
	// DefaultRank is assigned to every newly registered user.
	DefaultRank = "Bronze"
)

// User represents an account that can hold API keys.
type User struct {
	ID           int64     `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // argon2id encoded string, never serialized
	Points       int       `json:"points"`
	Rank         string    `json:"rank"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}
