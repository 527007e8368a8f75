// Package outbox drains staged domain events to the broker. Events are
// written in the same database commit as the state change they describe;
// the dispatcher gives them at-least-once delivery afterwards.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flanux/ledger-core/internal/backoff"
	portsrepo "github.com/flanux/ledger-core/internal/core/ports/repositories"
	portssvc "github.com/flanux/ledger-core/internal/core/ports/services"
)

// Options tunes the dispatch loop.
type Options struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Dispatcher polls the outbox table and publishes pending events in commit
// order. Draining stops at the first failing event, so later events never
// overtake an earlier one on the same partition key.
type Dispatcher struct {
	repo      portsrepo.OutboxRepository
	publisher portssvc.EventPublisher
	opts      Options
	logger    *slog.Logger

	sleep func(ctx context.Context, d time.Duration)
}

// NewDispatcher creates a dispatcher over the outbox repository.
func NewDispatcher(repo portsrepo.OutboxRepository, publisher portssvc.EventPublisher, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 5 * time.Second
	}

	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopping")
			return
		case <-ticker.C:
			if err := d.Drain(ctx); err != nil {
				d.logger.Error("Outbox drain failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Drain publishes one batch of pending events.
func (d *Dispatcher) Drain(ctx context.Context) error {
	events, err := d.repo.ListPending(ctx, d.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list pending outbox events: %w", err)
	}

	for _, evt := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pubErr := d.publisher.Publish(ctx, evt)
		if pubErr == nil {
			if err := d.repo.MarkPublished(ctx, evt.EventID); err != nil {
				return err
			}
			continue
		}

		attempts := evt.Attempts + 1
		logger := d.logger.With(
			slog.String("event_id", evt.EventID),
			slog.String("event_type", evt.EventType),
			slog.Int("attempts", attempts),
		)

		if attempts >= d.opts.MaxAttempts {
			logger.Error("Event delivery failed permanently, manual intervention required",
				slog.String("error", pubErr.Error()))
			if err := d.repo.MarkFailed(ctx, evt.EventID, pubErr.Error()); err != nil {
				return err
			}
			continue
		}

		logger.Warn("Event publish failed, will retry", slog.String("error", pubErr.Error()))
		if err := d.repo.RecordFailure(ctx, evt.EventID, pubErr.Error()); err != nil {
			return err
		}

		d.sleep(ctx, backoff.FullJitter(backoff.Exponential(d.opts.BaseDelay, d.opts.MaxDelay, evt.Attempts)))
		return nil
	}

	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
