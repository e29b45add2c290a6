package scheduler

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler enqueues the daily jobs at 01:00 UTC.
type Scheduler struct {
	service *Service
	hour    int
	minute  int
}

func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{service: svc, hour: 1}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started daily loyalty scheduler")

	for {
		now := time.Now().UTC()
		next := nextRunTime(now, s.hour, s.minute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)

		timer := time.NewTimer(sleepDuration)
		select {
		case <-timer.C:
			s.runDaily(ctx, next)
		case <-ctx.Done():
			timer.Stop()
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context, scheduledFor time.Time) {
	start := time.Now()
	zap.L().Info("[Scheduler] enqueueing daily jobs", zap.Time("scheduled_for", scheduledFor))

	if err := s.service.EnqueueDaily(ctx, scheduledFor); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue daily jobs", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] daily jobs enqueued", zap.Duration("duration", time.Since(start)))
}

// nextRunTime returns the next hour:minute strictly after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
