// Package janitor periodically deletes expired and used action tokens.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/backend-skeleton/internal/metrics"
	"github.com/robfig/cron/v3"
)

const purgeTimeout = 30 * time.Second

type tokenPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Janitor struct {
	tokens tokenPurger
	cron   *cron.Cron
	logger *slog.Logger
	now    func() time.Time
}

// New schedules the purge on schedule, a standard cron expression or a
// descriptor such as "@every 1h". An unparsable schedule is an error.
func New(tokens tokenPurger, schedule string, logger *slog.Logger) (*Janitor, error) {
	j := &Janitor{
		tokens: tokens,
		cron:   cron.New(),
		logger: logger.With("component", "janitor"),
		now:    time.Now,
	}

	if _, err := j.cron.AddFunc(schedule, j.runOnce); err != nil {
		return nil, fmt.Errorf("schedule token cleanup %q: %w", schedule, err)
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.logger.Info("janitor started")
	j.cron.Start()
}

// Stop prevents new runs and waits for a running purge, bounded by ctx.
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
		j.logger.Info("janitor: shut down")
	case <-ctx.Done():
		j.logger.Warn("janitor: purge still running at shutdown")
	}
}

func (j *Janitor) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()
	if _, err := j.Purge(ctx); err != nil {
		j.logger.Error("purge tokens", "error", err)
	}
}

// Purge deletes every token that expired before now or has been used.
func (j *Janitor) Purge(ctx context.Context) (int64, error) {
	n, err := j.tokens.DeleteExpired(ctx, j.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	if n > 0 {
		metrics.TokensPurgedTotal.Add(float64(n))
		j.logger.InfoContext(ctx, "purged tokens", "count", n)
	}
	return n, nil
}
