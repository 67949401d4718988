// Package outbox stores emails that must be delivered as a consequence of a
// committed state change.
package outbox

import (
	"context"
	"time"

	"github.com/dmitrijs2005/onepass/internal/server/models"
)

// Repository is the email outbox.
//
// ClaimPending leases up to limit messages that are due at now by moving
// their next_attempt_at to leaseUntil, and returns them. A leased message is
// not claimed again until the lease runs out, so the caller can send it
// outside the claiming transaction and record the outcome afterwards.
type Repository interface {
	Enqueue(ctx context.Context, msg *models.OutboxMessage) error
	ClaimPending(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*models.OutboxMessage, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkRetry(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error
	MarkDead(ctx context.Context, id string, attempts int, lastErr string) error
}
