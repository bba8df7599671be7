package billing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SweepLock gates a sweep pass so the daily sweep runs once across replicas.
// The underlying bulk update is conditional and idempotent, so the lock is
// best-effort coordination, not a correctness requirement.
type SweepLock interface {
	Acquire(ctx context.Context) (bool, error)
}

// RedisSweepLock acquires a short-lived SET NX EX lease.
type RedisSweepLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisSweepLock(client *redis.Client) *RedisSweepLock {
	return &RedisSweepLock{
		client: client,
		key:    "leadpilot:billing:sweep",
		ttl:    time.Hour,
	}
}

func (l *RedisSweepLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
}

// Sweeper transitions subscriptions whose paid period has elapsed from ACTIVE
// to EXPIRED. It never touches the user row: plan downgrade on expiry is a
// separate reconciliation concern. A failed or missed pass is self-healing,
// the next run still finds every elapsed row.
type Sweeper struct {
	subscriptionRepo SubscriptionStore
	lock             SweepLock
	interval         time.Duration
	logger           *zap.Logger

	now func() time.Time
}

func NewSweeper(subscriptionRepo SubscriptionStore, lock SweepLock, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		subscriptionRepo: subscriptionRepo,
		lock:             lock,
		interval:         interval,
		logger:           logger,
		now:              time.Now,
	}
}

// Run sweeps on the configured cadence until the context is cancelled. The
// first pass runs shortly after startup to catch rows that elapsed while the
// service was down.
func (s *Sweeper) Run(ctx context.Context) {
	startup := time.NewTimer(time.Minute)
	defer startup.Stop()

	select {
	case <-ctx.Done():
		return
	case <-startup.C:
		s.sweep(ctx)
	}

	ticker := time.NewTicker(s.interval)
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
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			// Run anyway: the update is idempotent, and a dead Redis must
			// not stop subscriptions from expiring.
			s.logger.Warn("sweep lock unavailable, proceeding without it", zap.Error(err))
		} else if !ok {
			s.logger.Debug("sweep skipped, another node holds the lock")
			return
		}
	}

	if _, err := s.SweepOnce(ctx); err != nil {
		s.logger.Error("expiration sweep failed", zap.Error(err))
	}
}

// SweepOnce performs a single expiration pass and returns how many
// subscriptions it transitioned.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	expired, err := s.subscriptionRepo.ExpireElapsed(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		s.logger.Info("subscriptions expired", zap.Int64("count", expired))
	}
	return expired, nil
}
