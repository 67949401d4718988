// Package memory is an in-process implementation of the repository manager
// and transactor. It backs the "memory" DSN for local development and the
// service tests, and enforces the same email uniqueness as the PostgreSQL
// schema.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/onepass/internal/dbx"
	"github.com/dmitrijs2005/onepass/internal/server/models"
	"github.com/dmitrijs2005/onepass/internal/server/repositories/outbox"
	"github.com/dmitrijs2005/onepass/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/onepass/internal/server/repositories/users"
)

var (
	_ dbx.Transactor                = (*Store)(nil)
	_ repomanager.RepositoryManager = (*Store)(nil)
)

var errSQLUnsupported = errors.New("memory store does not execute SQL")

// Store holds all records behind a single mutex. A transaction holds the
// mutex for its whole duration, which serialises writers.
type Store struct {
	mu      sync.Mutex
	users   map[string]*models.User
	byEmail map[string]string
	outbox  []*models.OutboxMessage
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// handle is the dbx.DBTX given out by the store. It only tells the
// repositories whether the store lock is already held.
type handle struct {
	locked bool
}

func (h *handle) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errSQLUnsupported
}

func (h *handle) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errSQLUnsupported
}

// QueryRowContext has no way to carry an error in a *sql.Row, so it returns nil.
func (h *handle) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

func isLocked(db dbx.DBTX) bool {
	h, ok := db.(*handle)
	return ok && h.locked
}

// Conn returns a handle for single operations outside a transaction.
func (s *Store) Conn() dbx.DBTX {
	return &handle{}
}

// WithTx runs fn with the store locked. If fn fails or panics every change
// it made is discarded.
func (s *Store) WithTx(ctx context.Context, fn dbx.TxFunc) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(ctx, &handle{locked: true})
}

func (s *Store) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (s *Store) Users(db dbx.DBTX) users.Repository {
	return &userRepo{store: s, locked: isLocked(db)}
}

func (s *Store) Outbox(db dbx.DBTX) outbox.Repository {
	return &outboxRepo{store: s, locked: isLocked(db)}
}

// Messages returns a copy of every outbox message in insertion order.
func (s *Store) Messages() []models.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		out = append(out, *m)
	}
	return out
}

// UserCount returns the number of stored users.
func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

type snapshot struct {
	users   map[string]models.User
	byEmail map[string]string
	outbox  []models.OutboxMessage
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:   make(map[string]models.User, len(s.users)),
		byEmail: make(map[string]string, len(s.byEmail)),
		outbox:  make([]models.OutboxMessage, 0, len(s.outbox)),
	}
	for id, u := range s.users {
		snap.users[id] = *u
	}
	for e, id := range s.byEmail {
		snap.byEmail[e] = id
	}
	for _, m := range s.outbox {
		snap.outbox = append(snap.outbox, *m)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = make(map[string]*models.User, len(snap.users))
	for id, u := range snap.users {
		u := u
		s.users[id] = &u
	}
	s.byEmail = snap.byEmail
	s.outbox = make([]*models.OutboxMessage, 0, len(snap.outbox))
	for _, m := range snap.outbox {
		m := m
		s.outbox = append(s.outbox, &m)
	}
}

// lock acquires the store mutex unless the caller's transaction holds it.
func (s *Store) lock(locked bool) func() {
	if locked {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}
