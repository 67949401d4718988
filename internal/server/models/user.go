// Package models holds the persistent records of the onePass server.
package models

import "time"

// User is an account. Email is stored lowercased and is unique. The
// password field only ever holds a hash.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Avatar       *string
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
