// Package users is the user directory: lookups and state changes on
// accounts, keyed by email.
package users

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/onepass/internal/server/models"
)

// Repository persists users. Implementations lowercase emails on every
// call and report a taken email as common.ErrDuplicateEmail.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	MarkVerified(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
