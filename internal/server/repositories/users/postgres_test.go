package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/onepass/internal/common"
	"github.com/dmitrijs2005/onepass/internal/server/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	insertQuery = `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*name,\s*email,\s*password_hash,\s*avatar,\s*is_verified\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s*RETURNING\s+created_at,\s*updated_at$`
	selectQuery = `(?s)^SELECT\s+id,\s*name,\s*email,\s*password_hash,\s*avatar,\s*is_verified,\s*created_at,\s*updated_at\s+FROM\s+users\s+WHERE\s+lower\(email\)\s*=\s*\$1$`
	verifyQuery = `(?s)^UPDATE\s+users\s+SET\s+is_verified\s*=\s*TRUE,\s*updated_at\s*=\s*now\(\)\s+WHERE\s+id\s*=\s*\$1$`
	resetQuery  = `(?s)^UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$2,\s*updated_at\s*=\s*now\(\)\s+WHERE\s+id\s*=\s*\$1$`
)

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

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(insertQuery).
		WithArgs("u-1", "theo", "theo@x.com", "$argon2id$...", nil, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u := &models.User{ID: "u-1", Name: "theo", Email: "  Theo@X.com ", PasswordHash: "$argon2id$..."}
	got, err := repo.Create(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "theo@x.com", got.Email)
	assert.Equal(t, now, got.CreatedAt)
}

func TestCreate_GeneratesID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(insertQuery).
		WithArgs(sqlmock.AnyArg(), "theo", "theo@x.com", "h", nil, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	got, err := repo.Create(context.Background(), &models.User{Name: "theo", Email: "theo@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	assert.Len(t, got.ID, 36)
}

func TestCreate_DuplicateEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(insertQuery).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_lower_key"})

	_, err := repo.Create(context.Background(), &models.User{ID: "u-2", Email: "theo@x.com"})
	require.ErrorIs(t, err, common.ErrDuplicateEmail)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(insertQuery).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{ID: "u-3", Email: "theo@x.com"})
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
}

func TestFindByEmail_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(selectQuery).
		WithArgs("theo@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "avatar", "is_verified", "created_at", "updated_at"}).
			AddRow("u-1", "theo", "theo@x.com", "h", nil, true, now, now))

	got, err := repo.FindByEmail(context.Background(), "THEO@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)
	assert.True(t, got.IsVerified)
	assert.Nil(t, got.Avatar)
}

func TestFindByEmail_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectQuery).WithArgs("ghost@x.com").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "ghost@x.com")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestFindByEmail_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectQuery).WithArgs("theo@x.com").WillReturnError(errors.New("db err"))

	_, err := repo.FindByEmail(context.Background(), "theo@x.com")
	require.Error(t, err)
	assert.Regexp(t, `db error: .*db err`, err.Error())
}

func TestMarkVerified(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(verifyQuery).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkVerified(context.Background(), "u-1"))

	mock.ExpectExec(verifyQuery).WithArgs("u-404").WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.MarkVerified(context.Background(), "u-404"), common.ErrNotFound)

	mock.ExpectExec(verifyQuery).WithArgs("u-1").WillReturnError(errors.New("db err"))
	require.Error(t, repo.MarkVerified(context.Background(), "u-1"))
}

func TestUpdatePasswordHash(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(resetQuery).WithArgs("u-1", "new-hash").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdatePasswordHash(context.Background(), "u-1", "new-hash"))

	mock.ExpectExec(resetQuery).WithArgs("u-404", "new-hash").WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.UpdatePasswordHash(context.Background(), "u-404", "new-hash"), common.ErrNotFound)

	mock.ExpectExec(resetQuery).WithArgs("u-1", "x").WillReturnResult(sqlmock.NewErrorResult(errors.New("no count")))
	require.Error(t, repo.UpdatePasswordHash(context.Background(), "u-1", "x"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "theo@x.com", NormalizeEmail("  Theo@X.COM\t"))
}
