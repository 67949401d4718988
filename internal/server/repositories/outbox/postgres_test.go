package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/onepass/internal/common"
	"github.com/dmitrijs2005/onepass/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	enqueueQuery = `(?s)^INSERT\s+INTO\s+email_outbox\s*\(id,\s*user_id,\s*recipient,\s*subject,\s*template,\s*payload,\s*status,\s*next_attempt_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7,\s*\$8\)\s*RETURNING\s+created_at$`
	claimQuery   = `(?s)^UPDATE\s+email_outbox\s+SET\s+next_attempt_at\s*=\s*\$2\s+WHERE\s+id\s+IN\s*\(\s*SELECT\s+id\s+FROM\s+email_outbox\s+WHERE\s+status\s*=\s*'pending'\s+AND\s+next_attempt_at\s*<=\s*\$1\s+ORDER\s+BY\s+next_attempt_at\s+LIMIT\s+\$3\s+FOR\s+UPDATE\s+SKIP\s+LOCKED\s*\)\s+RETURNING\s+id,.*created_at$`
	sentQuery    = `(?s)^UPDATE\s+email_outbox\s+SET\s+status\s*=\s*'sent'.*WHERE\s+id\s*=\s*\$1$`
	retryQuery   = `(?s)^UPDATE\s+email_outbox\s+SET\s+attempts\s*=\s*\$2,\s*last_error\s*=\s*\$3,\s*next_attempt_at\s*=\s*\$4\s+WHERE\s+id\s*=\s*\$1$`
	deadQuery    = `(?s)^UPDATE\s+email_outbox\s+SET\s+status\s*=\s*'dead',\s*attempts\s*=\s*\$2,\s*last_error\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$1$`
)

var claimColumns = []string{"id", "user_id", "recipient", "subject", "template", "payload", "status", "attempts", "last_error", "next_attempt_at", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresRepository(db), mock
}

func TestEnqueue_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	payload, _ := json.Marshal(map[string]string{"name": "theo", "link": "http://localhost:8000/auth/verify/t"})

	mock.ExpectQuery(enqueueQuery).
		WithArgs("m-1", "u-1", "theo@x.com", "Welcome to onepass", "register.html", payload, "pending", now).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	msg := &models.OutboxMessage{
		ID: "m-1", UserID: "u-1", Recipient: "theo@x.com", Subject: "Welcome to onepass",
		Template: "register.html", Payload: payload, NextAttemptAt: now,
	}
	require.NoError(t, repo.Enqueue(context.Background(), msg))
	assert.Equal(t, models.OutboxPending, msg.Status)
	assert.Equal(t, now, msg.CreatedAt)
}

func TestEnqueue_Defaults(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(enqueueQuery).
		WithArgs(sqlmock.AnyArg(), nil, "theo@x.com", "s", "t.html", []byte("{}"), "pending", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	msg := &models.OutboxMessage{Recipient: "theo@x.com", Subject: "s", Template: "t.html"}
	require.NoError(t, repo.Enqueue(context.Background(), msg))
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.NextAttemptAt.IsZero())
}

func TestEnqueue_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(enqueueQuery).WillReturnError(errors.New("disk full"))

	err := repo.Enqueue(context.Background(), &models.OutboxMessage{Recipient: "theo@x.com"})
	require.Error(t, err)
	assert.Regexp(t, `db error: .*disk full`, err.Error())
}

func TestClaimPending(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	lease := now.Add(2 * time.Minute)

	mock.ExpectQuery(claimQuery).
		WithArgs(now, lease, 10).
		WillReturnRows(sqlmock.NewRows(claimColumns).
			AddRow("m-2", nil, "ann@x.com", "Reset", "password_reset.html", []byte(`{}`), "pending", 2, "timeout", lease, now).
			AddRow("m-1", "u-1", "theo@x.com", "Welcome", "register.html", []byte(`{"name":"theo"}`), "pending", 0, "", lease, now.Add(-time.Minute)))

	got, err := repo.ClaimPending(context.Background(), now, lease, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m-1", got[0].ID, "oldest message first")
	assert.True(t, got[0].NextAttemptAt.Equal(lease))
	assert.Equal(t, "u-1", got[0].UserID)
	assert.JSONEq(t, `{"name":"theo"}`, string(got[0].Payload))
	assert.Empty(t, got[1].UserID)
	assert.Equal(t, 2, got[1].Attempts)
	assert.Equal(t, "timeout", got[1].LastError)
	assert.Equal(t, models.OutboxPending, got[1].Status)
}

func TestClaimPending_Errors(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	lease := now.Add(time.Minute)

	mock.ExpectQuery(claimQuery).WithArgs(now, lease, 5).WillReturnError(errors.New("boom"))
	_, err := repo.ClaimPending(context.Background(), now, lease, 5)
	require.Error(t, err)

	mock.ExpectQuery(claimQuery).WithArgs(now, lease, 5).
		WillReturnRows(sqlmock.NewRows(claimColumns).
			AddRow("m-1", "u-1", "theo@x.com", "s", "t", []byte(`{}`), "pending", 0, "", now, now).
			RowError(0, errors.New("row broke")))
	_, err = repo.ClaimPending(context.Background(), now, lease, 5)
	require.Error(t, err)
}

func TestMarkTransitions(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ctx := context.Background()
	at := time.Now()

	mock.ExpectExec(sentQuery).WithArgs("m-1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkSent(ctx, "m-1", at))

	mock.ExpectExec(retryQuery).WithArgs("m-2", 3, "smtp timeout", at).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkRetry(ctx, "m-2", 3, "smtp timeout", at))

	mock.ExpectExec(deadQuery).WithArgs("m-3", 5, "mailbox unavailable").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkDead(ctx, "m-3", 5, "mailbox unavailable"))

	mock.ExpectExec(deadQuery).WithArgs("m-404", 5, "x").WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.MarkDead(ctx, "m-404", 5, "x"), common.ErrNotFound)

	mock.ExpectExec(sentQuery).WithArgs("m-1", at).WillReturnError(errors.New("conn reset"))
	require.Error(t, repo.MarkSent(ctx, "m-1", at))
}
