package lifecycle

import (
	"context"
	"time"

	"smallbiznis-tenancy/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	service *Service
	hour    int
	minute  int
	loc     *time.Location
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(svc *Service, cfg *config.Config) *Scheduler {
	return &Scheduler{
		service: svc,
		hour:    cfg.Lifecycle.SweepHour,
		minute:  cfg.Lifecycle.SweepMinute,
		loc:     cfg.Location(),
	}
}

// StartScheduler runs the daily loop for the lifetime of the fx app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			s.done = make(chan struct{})
			go s.run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if s.cancel == nil {
				return nil
			}
			s.cancel()
			select {
			case <-s.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	zap.L().Info("[Scheduler] started tenant lifecycle scheduler",
		zap.Int("hour", s.hour),
		zap.Int("minute", s.minute),
		zap.String("timezone", s.loc.String()),
	)

	for {
		now := time.Now().In(s.loc)
		next := nextRunTime(now, s.hour, s.minute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)

		timer := time.NewTimer(sleepDuration)
		select {
		case <-timer.C:
			s.runDaily(ctx)
		case <-ctx.Done():
			timer.Stop()
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	zap.L().Info("[Scheduler] Enqueueing daily lifecycle sweep")

	taskID, err := s.service.EnqueueSweep(ctx)
	if err != nil {
		zap.L().Error("[Scheduler] failed enqueue lifecycle sweep", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] Finished enqueue lifecycle sweep",
		zap.String("task_id", taskID),
		zap.Duration("duration", time.Since(start)),
	)
}

// nextRunTime returns the first hour:minute in now's location strictly after
// now. Days are stepped by calendar, so DST shifts keep the wall clock time.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return next
}
