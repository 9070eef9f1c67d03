package expiry

import (
	"context"
	"log/slog"
	"time"
)

// Expirer cancels pending reservations older than ttl.
type Expirer interface {
	ExpirePending(ctx context.Context, ttl time.Duration) (int, error)
}

// Leader is best-effort leader election across replicas.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// Single is the Leader for single-instance deployments.
type Single struct{}

func (Single) TryAcquire(context.Context) (bool, error) { return true, nil }
func (Single) Release(context.Context)                  {}

type Config struct {
	Interval time.Duration
	TTL      time.Duration
	// RetryEvery is how long a follower waits before trying to become leader again.
	RetryEvery time.Duration
}

type Sweeper struct {
	expirer  Expirer
	leader   Leader
	logger   *slog.Logger
	interval time.Duration
	ttl      time.Duration
	retry    time.Duration
}

func NewSweeper(expirer Expirer, leader Leader, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = 30 * time.Second
	}
	if leader == nil {
		leader = Single{}
	}
	return &Sweeper{
		expirer:  expirer,
		leader:   leader,
		logger:   logger,
		interval: cfg.Interval,
		ttl:      cfg.TTL,
		retry:    cfg.RetryEvery,
	}
}

// Run blocks until ctx is cancelled. Only the replica holding leadership sweeps.
func (s *Sweeper) Run(ctx context.Context) {
	if s.ttl <= 0 {
		s.logger.Info("pending expiry disabled")
		return
	}

	for {
		ok, err := s.leader.TryAcquire(ctx)
		if err != nil {
			s.logger.Error("pending expiry: leader election failed", "err", err)
		}
		if ok {
			break
		}
		if err == nil {
			s.logger.Debug("pending expiry: another instance is sweeping")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retry):
		}
	}
	defer s.leader.Release(context.Background())
	s.logger.Info("pending expiry: sweeping", "interval", s.interval, "ttl", s.ttl)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) int {
	n, err := s.expirer.ExpirePending(ctx, s.ttl)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("pending expiry failed", "err", err, "expired", n)
		}
		return n
	}
	if n > 0 {
		s.logger.Info("expired pending reservations", "count", n)
	}
	return n
}
