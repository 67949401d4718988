package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dmitrijs2005/onepass/internal/common"
	"github.com/dmitrijs2005/onepass/internal/server/models"
	"github.com/google/uuid"
)

type outboxRepo struct {
	store  *Store
	locked bool
}

func (r *outboxRepo) Enqueue(ctx context.Context, msg *models.OutboxMessage) error {
	defer r.store.lock(r.locked)()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = models.OutboxPending
	}
	if len(msg.Payload) == 0 {
		msg.Payload = []byte("{}")
	}
	msg.CreatedAt = r.store.now()
	if msg.NextAttemptAt.IsZero() {
		msg.NextAttemptAt = msg.CreatedAt
	}

	m := *msg
	r.store.outbox = append(r.store.outbox, &m)
	return nil
}

func (r *outboxRepo) ClaimPending(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*models.OutboxMessage, error) {
	defer r.store.lock(r.locked)()

	var due []*models.OutboxMessage
	for _, m := range r.store.outbox {
		if m.Status == models.OutboxPending && !m.NextAttemptAt.After(now) {
			due = append(due, m)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*models.OutboxMessage, 0, len(due))
	for _, m := range due {
		m.NextAttemptAt = leaseUntil
		c := *m
		out = append(out, &c)
	}
	return out, nil
}

func (r *outboxRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxSent
		m.Attempts++
		m.LastError = ""
		sentAt := at
		m.SentAt = &sentAt
	})
}

func (r *outboxRepo) MarkRetry(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error {
	return r.update(id, func(m *models.OutboxMessage) {
		m.Attempts = attempts
		m.LastError = lastErr
		m.NextAttemptAt = next
	})
}

func (r *outboxRepo) MarkDead(ctx context.Context, id string, attempts int, lastErr string) error {
	return r.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxDead
		m.Attempts = attempts
		m.LastError = lastErr
	})
}

func (r *outboxRepo) update(id string, fn func(m *models.OutboxMessage)) error {
	defer r.store.lock(r.locked)()

	for _, m := range r.store.outbox {
		if m.ID == id {
			fn(m)
			return nil
		}
	}
	return common.ErrNotFound
}
