package sweeper

import (
	"context"
	"time"

	"staybook/pkg/logger"
)

const DefaultBatchSize = 100

type Completer interface {
	CompleteElapsed(ctx context.Context, now time.Time, limit int) (int, error)
}

// Sweeper periodically completes confirmed bookings whose check-out has passed.
type Sweeper struct {
	completer Completer
	interval  time.Duration
	batchSize int
	log       *logger.Logger
	now       func() time.Time
}

func New(completer Completer, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		completer: completer,
		interval:  interval,
		batchSize: DefaultBatchSize,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("Completion sweeper started", "interval", s.interval)
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("Completion sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.log.Info("Completion sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce drains elapsed bookings in batches until a batch comes back short.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	total := 0
	for {
		completed, err := s.completer.CompleteElapsed(ctx, now, s.batchSize)
		total += completed
		if err != nil {
			return total, err
		}
		if completed < s.batchSize {
			return total, nil
		}
	}
}
