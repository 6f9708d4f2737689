// internal/jobs/janitor.go
//
// Background housekeeping on a gocron scheduler.
//
// Context
// -------
// Expired sessions and reset tokens are already ignored by every read, so
// purging them is only about keeping the tables small.  One job runs on a
// fixed interval in singleton mode: a slow purge reschedules instead of
// overlapping with the next run.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/yanizio/siteconf/internal/metrics"
)

// Purger is satisfied by auth.Service.
type Purger interface {
	PurgeExpired(ctx context.Context) (sessions, tokens int64, err error)
}

// Janitor owns the scheduler.
type Janitor struct {
	scheduler gocron.Scheduler
	purger    Purger
	log       *zap.Logger
	timeout   time.Duration
}

// NewJanitor registers the purge job.  Start must be called to run it.
func NewJanitor(p Purger, interval time.Duration, log *zap.Logger) (*Janitor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("jobs: scheduler: %w", err)
	}
	j := &Janitor{scheduler: s, purger: p, log: log.Named("janitor"), timeout: time.Minute}

	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(j.purge),
		gocron.WithName("purge-expired-auth"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("jobs: register purge: %w", err)
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.scheduler.Start()
	j.log.Info("janitor started")
}

// Stop waits for a running purge to finish.
func (j *Janitor) Stop() error { return j.scheduler.Shutdown() }

func (j *Janitor) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	sessions, tokens, err := j.purger.PurgeExpired(ctx)
	metrics.JanitorPurged.WithLabelValues("sessions").Add(float64(sessions))
	metrics.JanitorPurged.WithLabelValues("password_reset_tokens").Add(float64(tokens))
	if err != nil {
		j.log.Error("purge failed", zap.Error(err))
		return
	}
	if sessions+tokens > 0 {
		j.log.Info("purged expired rows", zap.Int64("sessions", sessions), zap.Int64("reset_tokens", tokens))
	}
}
