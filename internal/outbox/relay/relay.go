package relay

import (
	"context"
	"time"

	"staybook/internal/outbox/repository"
	"staybook/pkg/config"
	"staybook/pkg/kafka"
	"staybook/pkg/logger"
	"staybook/pkg/model"
)

type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type Options struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	// Lease hides a claimed event from other relays while it is published.
	Lease time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
		BaseBackoff:  cfg.OutboxBaseBackoff,
		MaxBackoff:   cfg.OutboxMaxBackoff,
		Lease:        cfg.WriteTimeout * 2,
	}
}

// Relay moves pending outbox events to Kafka. Delivery is at least once:
// a crash between publish and MarkPublished republishes the event.
type Relay struct {
	repo      repository.OutboxRepository
	publisher Publisher
	opts      Options
	log       *logger.Logger
	now       func() time.Time
}

func New(repo repository.OutboxRepository, publisher Publisher, opts Options, log *logger.Logger) *Relay {
	return &Relay{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	r.log.Info("Outbox relay started", "poll_interval", r.opts.PollInterval, "batch_size", r.opts.BatchSize)
	for {
		if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("Outbox relay pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.log.Info("Outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes up to BatchSize due events and returns how many were
// published.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	for i := 0; i < r.opts.BatchSize; i++ {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}

		event, err := r.repo.Claim(ctx, r.now(), r.opts.Lease)
		if err != nil {
			return published, err
		}
		if event == nil {
			return published, nil
		}

		if r.deliver(ctx, event) {
			published++
		}
	}
	return published, nil
}

func (r *Relay) deliver(ctx context.Context, event *model.OutboxEvent) bool {
	msg := kafka.NewMessage().
		WithKey(event.AggregateID).
		WithRawValue(event.Payload).
		WithEventID(event.ID).
		WithEventType(event.EventType).
		WithSource(model.BookingEventSource).
		WithTimestamp(event.CreatedAt).
		Build()

	if err := r.publisher.Publish(ctx, msg); err != nil {
		r.fail(ctx, event, err)
		return false
	}

	if err := r.repo.MarkPublished(ctx, event.ID, r.now()); err != nil {
		r.log.Error("Failed to mark outbox event published",
			"event_id", event.ID,
			"event_type", event.EventType,
			"error", err,
		)
	}
	return true
}

func (r *Relay) fail(ctx context.Context, event *model.OutboxEvent, publishErr error) {
	attempts := event.Attempts + 1
	dead := attempts >= r.opts.MaxAttempts
	next := r.now().Add(Backoff(r.opts.BaseBackoff, r.opts.MaxBackoff, attempts))

	if dead {
		r.log.Error("Outbox event exhausted its attempts",
			"event_id", event.ID,
			"event_type", event.EventType,
			"booking_id", event.AggregateID,
			"attempts", attempts,
			"error", publishErr,
		)
	} else {
		r.log.Warn("Outbox event publish failed, will retry",
			"event_id", event.ID,
			"event_type", event.EventType,
			"attempts", attempts,
			"next_attempt_at", next,
			"error", publishErr,
		)
	}

	if err := r.repo.MarkFailed(ctx, event.ID, attempts, publishErr.Error(), next, dead); err != nil {
		r.log.Error("Failed to record outbox failure", "event_id", event.ID, "error", err)
	}
}

// Backoff returns base * 2^(attempts-1), capped at max.
func Backoff(base, maxDelay time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxDelay || delay <= 0 {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}
