// Package sweeper removes expired booking sessions out of band.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/praxis-booking/internal/observability/metrics"
	"github.com/wolfman30/praxis-booking/internal/storage"
	"github.com/wolfman30/praxis-booking/pkg/logging"
)

// Result reports what one sweep removed.
type Result struct {
	Sessions int64
	Records  int64
}

// Sweeper deletes sessions past their expiry and, optionally, step records
// whose session no longer exists.
type Sweeper struct {
	tx           storage.Transactor
	logger       *logging.Logger
	metrics      *metrics.SweeperMetrics
	purgeOrphans bool
	now          func() time.Time
}

type Option func(*Sweeper)

func WithPurgeOrphans(enabled bool) Option {
	return func(s *Sweeper) { s.purgeOrphans = enabled }
}

func WithMetrics(m *metrics.SweeperMetrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func New(tx storage.Transactor, logger *logging.Logger, opts ...Option) *Sweeper {
	if tx == nil {
		panic("sweeper: transactor required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Sweeper{tx: tx, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce performs a single sweep. Running it again immediately removes nothing.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	now := s.now().UTC()
	var res Result
	err := s.tx.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		n, err := r.Sessions.DeleteExpired(ctx, now)
		if err != nil {
			return err
		}
		res.Sessions = n
		if !s.purgeOrphans {
			return nil
		}
		n, err = r.Steps.PurgeOrphans(ctx)
		if err != nil {
			return err
		}
		res.Records = n
		return nil
	})
	if err != nil {
		s.metrics.ObserveRun("error", 0, 0, 0)
		return Result{}, fmt.Errorf("sweeper: run: %w", err)
	}
	s.metrics.ObserveRun("ok", res.Sessions, res.Records, float64(now.Unix()))
	if res.Sessions > 0 || res.Records > 0 {
		s.logger.Info("expired sessions swept", "sessions", res.Sessions, "records", res.Records)
	}
	return res, nil
}

// Start sweeps immediately and then on every tick until ctx is cancelled.
// Failures are logged and the loop keeps going.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("sweep failed", "error", err)
	}
}
