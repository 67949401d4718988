// Package outbox delivers the emails queued in the email_outbox table.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/onepass/internal/dbx"
	"github.com/dmitrijs2005/onepass/internal/logging"
	"github.com/dmitrijs2005/onepass/internal/server/mailer"
	"github.com/dmitrijs2005/onepass/internal/server/models"
	"github.com/dmitrijs2005/onepass/internal/server/repositories/repomanager"
	"github.com/sethvargo/go-retry"
)

const defaultLease = 2 * time.Minute

type Options struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryBase    time.Duration
	RetryMax     time.Duration
	// Lease is how long a claimed message stays invisible to other claims.
	// It also bounds a single send.
	Lease time.Duration
}

// Worker polls the outbox and hands due messages to a mailer.Dispatcher.
// A failed send is retried with capped exponential backoff until
// MaxAttempts is reached, after which the message is marked dead.
type Worker struct {
	tx         dbx.Transactor
	repos      repomanager.RepositoryManager
	dispatcher mailer.Dispatcher
	logger     logging.Logger
	opts       Options
	now        func() time.Time
	wake       chan struct{}
}

func NewWorker(tx dbx.Transactor, repos repomanager.RepositoryManager, d mailer.Dispatcher, l logging.Logger, opts Options) *Worker {
	return &Worker{
		tx:         tx,
		repos:      repos,
		dispatcher: d,
		logger:     l.With("module", "outbox_worker"),
		opts:       opts,
		now:        time.Now,
		wake:       make(chan struct{}, 1),
	}
}

// Notify asks the worker to poll now. It never blocks.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.logger.Info(ctx, "Starting outbox worker", "interval", w.opts.PollInterval.String())

	for {
		if _, err := w.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error(ctx, "outbox batch failed", "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Stopping outbox worker...")
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// ProcessBatch claims up to BatchSize due messages and attempts each once.
// It returns the number of messages claimed.
//
// Claiming and recording each outcome are separate short transactions.
// Sends run outside any transaction.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	now := w.now()

	var msgs []*models.OutboxMessage
	err := w.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		msgs, err = w.repos.Outbox(tx).ClaimPending(ctx, now, now.Add(w.lease()), w.opts.BatchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	for _, msg := range msgs {
		sendErr := w.deliver(ctx, msg)
		if err := w.record(ctx, msg, sendErr); err != nil {
			return len(msgs), err
		}
		if sendErr == nil {
			emailsSent.WithLabelValues(msg.Template).Inc()
		}
	}

	return len(msgs), nil
}

func (w *Worker) deliver(ctx context.Context, msg *models.OutboxMessage) error {
	data := map[string]any{}
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &data); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, w.lease())
	defer cancel()

	return w.dispatcher.Send(ctx, mailer.Message{
		To:       msg.Recipient,
		Subject:  msg.Subject,
		Template: msg.Template,
		Data:     data,
	})
}

// record stores the outcome of one send. A message whose outcome is never
// recorded is claimed again once its lease expires.
func (w *Worker) record(ctx context.Context, msg *models.OutboxMessage, sendErr error) error {
	return w.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if sendErr != nil {
			return w.fail(ctx, tx, msg, sendErr)
		}
		return w.repos.Outbox(tx).MarkSent(ctx, msg.ID, w.now())
	})
}

func (w *Worker) lease() time.Duration {
	if w.opts.Lease > 0 {
		return w.opts.Lease
	}
	return defaultLease
}

// fail records a failed attempt. It only returns an error when the
// bookkeeping itself fails, so the rest of the batch still gets sent.
func (w *Worker) fail(ctx context.Context, tx dbx.DBTX, msg *models.OutboxMessage, sendErr error) error {
	repo := w.repos.Outbox(tx)
	attempts := msg.Attempts + 1
	emailsFailed.WithLabelValues(msg.Template).Inc()

	if attempts >= w.opts.MaxAttempts {
		w.logger.Error(ctx, "email dead-lettered",
			"id", msg.ID, "recipient", msg.Recipient, "template", msg.Template, "attempts", attempts, "error", sendErr)
		emailsDead.WithLabelValues(msg.Template).Inc()
		return repo.MarkDead(ctx, msg.ID, attempts, sendErr.Error())
	}

	next := w.now().Add(w.retryDelay(attempts))
	w.logger.Warn(ctx, "email send failed, will retry",
		"id", msg.ID, "attempts", attempts, "next_attempt_at", next, "error", sendErr)
	return repo.MarkRetry(ctx, msg.ID, attempts, sendErr.Error(), next)
}

// retryDelay is the wait before attempt number attempts+1.
func (w *Worker) retryDelay(attempts int) time.Duration {
	b := retry.WithCappedDuration(w.opts.RetryMax, retry.NewExponential(w.opts.RetryBase))

	var d time.Duration
	for i := 0; i < attempts; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		d = next
	}
	return d
}
