package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/onepass/internal/common"
	"github.com/dmitrijs2005/onepass/internal/dbx"
	"github.com/dmitrijs2005/onepass/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Enqueue(ctx context.Context, msg *models.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = models.OutboxPending
	}
	if len(msg.Payload) == 0 {
		msg.Payload = []byte("{}")
	}
	if msg.NextAttemptAt.IsZero() {
		msg.NextAttemptAt = time.Now()
	}

	query :=
		`INSERT INTO email_outbox (id, user_id, recipient, subject, template, payload, status, next_attempt_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		msg.ID, nullable(msg.UserID), msg.Recipient, msg.Subject, msg.Template,
		[]byte(msg.Payload), string(msg.Status), msg.NextAttemptAt,
	).Scan(&msg.CreatedAt)

	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ClaimPending(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*models.OutboxMessage, error) {
	query :=
		`UPDATE email_outbox SET next_attempt_at = $2
		 WHERE id IN (
			SELECT id FROM email_outbox
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED)
		 RETURNING id, user_id, recipient, subject, template, payload, status, attempts, last_error, next_attempt_at, created_at`

	rows, err := r.db.QueryContext(ctx, query, now, leaseUntil, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.OutboxMessage
	for rows.Next() {
		var (
			m       models.OutboxMessage
			userID  sql.NullString
			payload []byte
			status  string
		)
		if err := rows.Scan(&m.ID, &userID, &m.Recipient, &m.Subject, &m.Template, &payload,
			&status, &m.Attempts, &m.LastError, &m.NextAttemptAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		m.UserID = userID.String
		m.Payload = payload
		m.Status = models.OutboxStatus(status)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	// RETURNING has no order
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func (r *PostgresRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query :=
		`UPDATE email_outbox SET status = 'sent', attempts = attempts + 1, sent_at = $2, last_error = ''
		 WHERE id = $1`

	return r.execOne(ctx, query, id, at)
}

func (r *PostgresRepository) MarkRetry(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error {
	query :=
		`UPDATE email_outbox SET attempts = $2, last_error = $3, next_attempt_at = $4
		 WHERE id = $1`

	return r.execOne(ctx, query, id, attempts, lastErr, next)
}

func (r *PostgresRepository) MarkDead(ctx context.Context, id string, attempts int, lastErr string) error {
	query :=
		`UPDATE email_outbox SET status = 'dead', attempts = $2, last_error = $3
		 WHERE id = $1`

	return r.execOne(ctx, query, id, attempts, lastErr)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
