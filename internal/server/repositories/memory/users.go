package memory

import (
	"context"

	"github.com/dmitrijs2005/onepass/internal/common"
	"github.com/dmitrijs2005/onepass/internal/server/models"
	"github.com/dmitrijs2005/onepass/internal/server/repositories/users"
	"github.com/google/uuid"
)

type userRepo struct {
	store  *Store
	locked bool
}

func (r *userRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	defer r.store.lock(r.locked)()

	email := users.NormalizeEmail(user.Email)
	if _, taken := r.store.byEmail[email]; taken {
		return nil, common.ErrDuplicateEmail
	}

	u := *user
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = email
	now := r.store.now()
	u.CreatedAt, u.UpdatedAt = now, now

	r.store.users[u.ID] = &u
	r.store.byEmail[email] = u.ID

	*user = u
	out := u
	return &out, nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.store.lock(r.locked)()

	id, ok := r.store.byEmail[users.NormalizeEmail(email)]
	if !ok {
		return nil, common.ErrNotFound
	}
	u := *r.store.users[id]
	return &u, nil
}

func (r *userRepo) MarkVerified(ctx context.Context, id string) error {
	defer r.store.lock(r.locked)()

	u, ok := r.store.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.IsVerified = true
	u.UpdatedAt = r.store.now()
	return nil
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	defer r.store.lock(r.locked)()

	u, ok := r.store.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = r.store.now()
	return nil
}
