// Package scheduler runs periodic maintenance: persisting exam-set expiry and
// pruning old exam attempts.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	ExpirySpec = "@every 1m"
	PruneSpec  = "@every 5m"
)

// Expirer persists the expired status of exam sets past their deadline.
type Expirer interface {
	ExpireExamSets(now time.Time) (int64, error)
}

// Pruner drops finished exam attempts older than the retention window.
type Pruner interface {
	Prune(retention time.Duration) int
}

// Invalidator is told when expiry changed what the catalog shows.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron      *cron.Cron
	expirer   Expirer
	pruner    Pruner
	cache     Invalidator
	retention time.Duration
	now       func() time.Time
}

// New registers the maintenance jobs. Call Start to run them.
func New(e Expirer, p Pruner, c Invalidator, retention time.Duration) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		expirer:   e,
		pruner:    p,
		cache:     c,
		retention: retention,
		now:       time.Now,
	}
	if _, err := s.cron.AddFunc(ExpirySpec, s.ExpireJob); err != nil {
		return nil, fmt.Errorf("schedule expiry job: %w", err)
	}
	if _, err := s.cron.AddFunc(PruneSpec, s.PruneJob); err != nil {
		return nil, fmt.Errorf("schedule prune job: %w", err)
	}
	return s, nil
}

// Start runs the jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "expiry", ExpirySpec, "prune", PruneSpec, "attempt_retention", s.retention)
}

// Stop stops scheduling and waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		slog.Warn("scheduler stop timed out")
	}
}

// ExpireJob marks exam sets past their deadline as expired.
func (s *Scheduler) ExpireJob() {
	n, err := s.expirer.ExpireExamSets(s.now())
	if err != nil {
		slog.Error("expire exam sets", "error", err)
		return
	}
	if n == 0 {
		return
	}
	slog.Info("expired exam sets", "count", n)
	if s.cache != nil {
		if err := s.cache.Invalidate(context.Background()); err != nil {
			slog.Warn("invalidate catalog cache", "error", err)
		}
	}
}

// PruneJob drops old exam attempts.
func (s *Scheduler) PruneJob() {
	s.pruner.Prune(s.retention)
}
