// Package services contains server-side business logic. This file implements
// UserService, the account flow: registration with email verification,
// login, token refresh, password reset and profile lookup.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/onepass/internal/common"
	"github.com/dmitrijs2005/onepass/internal/cryptox"
	"github.com/dmitrijs2005/onepass/internal/dbx"
	"github.com/dmitrijs2005/onepass/internal/logging"
	"github.com/dmitrijs2005/onepass/internal/server/auth"
	"github.com/dmitrijs2005/onepass/internal/server/mailer"
	"github.com/dmitrijs2005/onepass/internal/server/models"
	"github.com/dmitrijs2005/onepass/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/onepass/internal/server/repositories/users"
)

const (
	subjectRegister      = "Welcome to onepass"
	subjectPasswordReset = "Reset your onepass password"

	verifyPath = "/auth/verify/"
	resetPath  = "/auth/reset_pwd/"

	dummyPassword = "onepass-timing-equalizer"
)

// Notifier is told when new outbox messages have been committed.
type Notifier interface {
	Notify()
}

// VerifyResult reports the outcome of a successful email verification.
type VerifyResult struct {
	Email           string
	AlreadyVerified bool
}

// UserService drives the account state machine. Accounts start unverified,
// become verified through an email verification token, and only verified
// accounts can log in.
type UserService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenService
	hasher      cryptox.PasswordHasher
	baseURL     string
	notifier    Notifier
	logger      logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewUserService wires the service. notifier may be nil.
func NewUserService(
	tx dbx.Transactor,
	m repomanager.RepositoryManager,
	tokens *auth.TokenService,
	hasher cryptox.PasswordHasher,
	baseURL string,
	notifier Notifier,
	logger logging.Logger,
) *UserService {
	return &UserService{
		tx:          tx,
		repomanager: m,
		tokens:      tokens,
		hasher:      hasher,
		baseURL:     strings.TrimRight(baseURL, "/"),
		notifier:    notifier,
		logger:      logger.With("module", "user_service"),
	}
}

// Register creates an unverified account and queues the verification email
// in the same transaction. Nothing is stored if either write fails.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	email = users.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", common.ErrValidation)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	var created *models.User
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.repomanager.Users(tx).Create(ctx, &models.User{
			Name:         strings.ToLower(strings.TrimSpace(name)),
			Email:        email,
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}

		msg, err := s.verificationMessage(u, name)
		if err != nil {
			return err
		}
		if err := s.repomanager.Outbox(tx).Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue verification email: %w", err)
		}

		created = u
		return nil
	})

	if err != nil {
		if errors.Is(err, common.ErrDuplicateEmail) {
			return nil, err
		}
		s.logger.Error(ctx, "registration rolled back", "email", email, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrServiceUnavailable, err)
	}

	s.logger.Info(ctx, "user registered", "id", created.ID)
	s.notify()
	return created, nil
}

// Login checks the credentials of a verified account and returns a fresh
// access/refresh pair.
func (s *UserService) Login(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	user, err := s.repomanager.Users(s.tx.Conn()).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// spend the same time as a real check
			_, _ = s.hasher.Verify(password, s.getDummyHash())
			return nil, common.ErrNotFound
		}
		return nil, s.storageError(ctx, "user lookup failed", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Warn(ctx, "stored password hash is unreadable", "id", user.ID, "error", err)
		ok = false
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}

	if !user.IsVerified {
		return nil, common.ErrUnverifiedAccount
	}

	s.upgradeHash(ctx, user, password)

	pair, err := s.tokens.IssuePair(user.Email)
	if err != nil {
		s.logger.Error(ctx, "token issue failed", "error", err)
		return nil, common.ErrInternal
	}
	return pair, nil
}

// Verify marks the account named by an email verification token as
// verified. Verifying twice succeeds with AlreadyVerified set.
func (s *UserService) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	email, err := s.tokens.Validate(token, auth.KindEmailVerification)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.tx.Conn())
	user, err := s.lookupForToken(ctx, repo, email)
	if err != nil {
		return nil, err
	}

	if user.IsVerified {
		return &VerifyResult{Email: user.Email, AlreadyVerified: true}, nil
	}

	if err := repo.MarkVerified(ctx, user.ID); err != nil {
		return nil, s.storageError(ctx, "mark verified failed", err)
	}

	s.logger.Info(ctx, "email verified", "id", user.ID)
	return &VerifyResult{Email: user.Email}, nil
}

// ResendVerification queues a new verification email for an unverified
// account. Unknown and already verified emails succeed silently.
func (s *UserService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.repomanager.Users(s.tx.Conn()).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return s.storageError(ctx, "user lookup failed", err)
	}
	if user.IsVerified {
		return nil
	}

	msg, err := s.verificationMessage(user, user.Name)
	if err != nil {
		return common.ErrInternal
	}
	return s.enqueue(ctx, msg)
}

// RefreshToken exchanges a valid refresh token for a new pair.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	email, err := s.tokens.Validate(refreshToken, auth.KindRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.lookupForToken(ctx, s.repomanager.Users(s.tx.Conn()), email)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(user.Email)
	if err != nil {
		s.logger.Error(ctx, "token issue failed", "error", err)
		return nil, common.ErrInternal
	}
	return pair, nil
}

// ForgotPassword queues a password reset email when the account exists. The
// result is the same whether or not it does.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repomanager.Users(s.tx.Conn()).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return s.storageError(ctx, "user lookup failed", err)
	}

	token, err := s.tokens.Issue(auth.KindPasswordReset, user.Email)
	if err != nil {
		return common.ErrInternal
	}

	msg, err := newMessage(user, subjectPasswordReset, mailer.TemplatePasswordReset, map[string]any{
		"name": user.Name,
		"link": s.baseURL + resetPath + token,
	})
	if err != nil {
		return common.ErrInternal
	}
	return s.enqueue(ctx, msg)
}

// ResetPassword replaces the password of the account named by a password
// reset token.
func (s *UserService) ResetPassword(ctx context.Context, token, password string) error {
	email, err := s.tokens.Validate(token, auth.KindPasswordReset)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	repo := s.repomanager.Users(s.tx.Conn())
	user, err := s.lookupForToken(ctx, repo, email)
	if err != nil {
		return err
	}

	if err := repo.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return s.storageError(ctx, "password update failed", err)
	}

	s.logger.Info(ctx, "password reset", "id", user.ID)
	return nil
}

// Me returns the account an access token was issued for.
func (s *UserService) Me(ctx context.Context, accessToken string) (*models.User, error) {
	email, err := s.tokens.Validate(accessToken, auth.KindAccess)
	if err != nil {
		return nil, err
	}
	return s.lookupForToken(ctx, s.repomanager.Users(s.tx.Conn()), email)
}

// lookupForToken loads the user a token names. A missing user makes the
// token invalid.
func (s *UserService) lookupForToken(ctx context.Context, repo users.Repository, email string) (*models.User, error) {
	user, err := repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", common.ErrInvalidToken)
		}
		return nil, s.storageError(ctx, "user lookup failed", err)
	}
	return user, nil
}

func (s *UserService) verificationMessage(user *models.User, name string) (*models.OutboxMessage, error) {
	token, err := s.tokens.Issue(auth.KindEmailVerification, user.Email)
	if err != nil {
		return nil, err
	}
	return newMessage(user, subjectRegister, mailer.TemplateRegister, map[string]any{
		"name": name,
		"link": s.baseURL + verifyPath + token,
	})
}

func newMessage(user *models.User, subject, template string, data map[string]any) (*models.OutboxMessage, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &models.OutboxMessage{
		UserID:    user.ID,
		Recipient: user.Email,
		Subject:   subject,
		Template:  template,
		Payload:   payload,
	}, nil
}

func (s *UserService) enqueue(ctx context.Context, msg *models.OutboxMessage) error {
	if err := s.repomanager.Outbox(s.tx.Conn()).Enqueue(ctx, msg); err != nil {
		s.logger.Error(ctx, "enqueue email failed", "template", msg.Template, "error", err)
		return fmt.Errorf("%w: %v", common.ErrServiceUnavailable, err)
	}
	s.notify()
	return nil
}

// storageError logs a repository failure and hides it behind a sentinel.
// Lost database connections are reported as a temporary outage.
func (s *UserService) storageError(ctx context.Context, msg string, err error) error {
	s.logger.Error(ctx, msg, "error", err)
	if dbx.IsConnectionFailure(err) {
		return common.ErrServiceUnavailable
	}
	return common.ErrInternal
}

func (s *UserService) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

// upgradeHash re-hashes a legacy or outdated password hash. Failures are
// logged and the login proceeds.
func (s *UserService) upgradeHash(ctx context.Context, user *models.User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.repomanager.Users(s.tx.Conn()).UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.Warn(ctx, "password hash upgrade failed", "id", user.ID, "error", err)
		return
	}
	s.logger.Info(ctx, "password hash upgraded", "id", user.ID)
}

func (s *UserService) getDummyHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(dummyPassword)
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}
