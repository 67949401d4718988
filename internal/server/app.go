// Package server initializes and runs the onePass server: it selects the
// storage backend, builds the token, mail and account services, and runs
// the HTTP server and the outbox worker until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/onepass/internal/common"
	"github.com/dmitrijs2005/onepass/internal/cryptox"
	"github.com/dmitrijs2005/onepass/internal/dbx"
	"github.com/dmitrijs2005/onepass/internal/logging"
	"github.com/dmitrijs2005/onepass/internal/server/auth"
	"github.com/dmitrijs2005/onepass/internal/server/config"
	"github.com/dmitrijs2005/onepass/internal/server/httpserver"
	"github.com/dmitrijs2005/onepass/internal/server/mailer"
	"github.com/dmitrijs2005/onepass/internal/server/outbox"
	"github.com/dmitrijs2005/onepass/internal/server/repositories/memory"
	"github.com/dmitrijs2005/onepass/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/onepass/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	userService *services.UserService
	worker      *outbox.Worker
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.Environment, c.LogLevel)

	tx, rm, db, err := openStorage(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	tokens, err := auth.NewTokenService(auth.KeysFromConfig(c), auth.SystemClock{})
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("token service init error: %w", err)
	}

	dispatcher, err := newDispatcher(c, logger)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("mailer init error: %w", err)
	}

	worker := outbox.NewWorker(tx, rm, dispatcher, logger, outbox.Options{
		PollInterval: c.OutboxPollInterval,
		BatchSize:    c.OutboxBatchSize,
		MaxAttempts:  c.OutboxMaxAttempts,
		RetryBase:    c.OutboxRetryBase,
		RetryMax:     c.OutboxRetryMax,
		Lease:        c.OutboxLease,
	})

	us := services.NewUserService(tx, rm, tokens, cryptox.NewArgon2idHasher(), c.BaseURL, worker, logger)

	return &App{config: c, logger: logger, db: db, userService: us, worker: worker}, nil
}

// openStorage returns the transactor and repository manager for the
// configured DSN. The *sql.DB is nil for the in-memory store.
func openStorage(ctx context.Context, c *config.Config, logger logging.Logger) (dbx.Transactor, repomanager.RepositoryManager, *sql.DB, error) {
	if c.DatabaseDSN == common.DSNMemory {
		logger.Warn(ctx, "using in-memory store, data is lost on exit")
		store := memory.NewStore()
		return store, store, nil, nil
	}

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, nil, nil, err
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		closeDB(db)
		return nil, nil, nil, fmt.Errorf("migrations: %w", err)
	}

	return dbx.NewSQLTransactor(db, nil), rm, db, nil
}

func newDispatcher(c *config.Config, logger logging.Logger) (mailer.Dispatcher, error) {
	renderer, err := mailer.NewRenderer()
	if err != nil {
		return nil, err
	}

	if c.EmailServer == "" {
		return mailer.NewLogMailer(logger, renderer), nil
	}

	return mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     c.EmailServer,
		Port:     c.EmailPort,
		Username: c.EmailUsername,
		Password: c.EmailPassword,
		From:     c.EmailFrom,
		FromName: c.EmailFromName,
	}, renderer)
}

func closeDB(db *sql.DB) {
	if db != nil {
		_ = db.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) newHTTPServer() (*httpserver.HTTPServer, error) {
	s, err := httpserver.NewHTTPServer(app.config.HTTPAddr, app.logger, app.userService)
	if err != nil {
		return nil, err
	}

	if app.config.IsDevelopment() {
		renderer, err := mailer.NewRenderer()
		if err != nil {
			return nil, err
		}
		s.EnableEmailPreview(renderer)
	}

	return s, nil
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := app.newHTTPServer()

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

func (app *App) startOutboxWorker(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.worker.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled, a shutdown signal arrives, or one of
// the components fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "environment", app.config.Environment)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startOutboxWorker(ctx, cancelFunc)
	}()

	wg.Wait()

	closeDB(app.db)
	app.logger.Info(ctx, "Stopped")
}
