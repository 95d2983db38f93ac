package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smallbiznis-tenancy/pkg/task"
	"smallbiznis-tenancy/pkg/taskname"
	"smallbiznis-tenancy/services/tenant"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExpiredReason is recorded on every tenant the sweep turns off.
const ExpiredReason = "expired"

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	tenants  *tenant.Service
	enqueuer task.Enqueuer
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Tenants  *tenant.Service
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		tenants:  p.Tenants,
		enqueuer: p.Enqueuer,
	}
}

// EnqueueSweep schedules one sweep for the current business day. The task id
// is derived from the date, so every scheduler replica and manual trigger of
// the same day collapses into a single task.
func (s *Service) EnqueueSweep(ctx context.Context) (string, error) {
	if s.enqueuer == nil {
		return "", errors.New("task queue is not configured")
	}

	date := s.tenants.Now().Format(time.DateOnly)
	payload, err := json.Marshal(SweepPayload{Date: date})
	if err != nil {
		return "", err
	}

	taskID := fmt.Sprintf("%s:%s", taskname.TenantLifecycleSweep, date)
	t := asynq.NewTask(taskname.TenantLifecycleSweep, payload)

	_, err = s.enqueuer.Enqueue(ctx, t,
		asynq.TaskID(taskID),
		asynq.Queue(task.QueueCritical),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		zap.L().Error("failed enqueue lifecycle sweep", zap.String("date", date), zap.Error(err))
		return "", err
	}

	zap.L().Info("enqueued lifecycle sweep",
		zap.String("task_id", taskID),
		zap.Bool("duplicate", err != nil),
	)
	return taskID, nil
}

// HandleSweepTask is the asynq handler of taskname.TenantLifecycleSweep.
func (s *Service) HandleSweepTask(ctx context.Context, t *asynq.Task) error {
	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			zap.L().Error("invalid sweep payload", zap.Error(err))
			return fmt.Errorf("invalid sweep payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	zap.L().Info("Processing lifecycle sweep", zap.String("date", payload.Date))

	run, err := s.Sweep(ctx)
	if err != nil {
		zap.L().Error("failed to process lifecycle sweep", zap.String("date", payload.Date), zap.Error(err))
		return err
	}

	zap.L().Info("Finished lifecycle sweep",
		zap.String("run_id", run.ID),
		zap.Int("deactivated", run.Deactivated),
	)
	return nil
}

// Sweep deactivates every active auto_disable tenant whose expiry date has
// passed. A failure on one tenant does not stop the others; the run is then
// marked failed and the joined error returned so the task is retried.
func (s *Service) Sweep(ctx context.Context) (*SweepRun, error) {
	now := s.tenants.Now()
	run := &SweepRun{
		ID:        s.node.Generate().String(),
		Status:    RunRunning,
		StartedAt: &now,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to record sweep run: %w", err)
	}

	expired, err := s.tenants.ExpiredAutoDisable(ctx)
	if err != nil {
		s.finish(ctx, run, nil, err)
		return run, err
	}
	run.Matched = len(expired)

	var (
		errs []error
		ids  []string
	)
	for _, t := range expired {
		updated, err := s.tenants.DeactivateFrom(ctx, t.ID, ExpiredReason, tenant.SourceSweep)
		if err != nil {
			zap.L().Error("failed to deactivate expired tenant", zap.String("tenant_id", t.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("tenant %s: %w", t.ID, err))
			continue
		}
		if !updated.IsActive {
			run.Deactivated++
			ids = append(ids, t.ID)
		}
	}

	err = errors.Join(errs...)
	s.finish(ctx, run, ids, err)
	return run, err
}

func (s *Service) finish(ctx context.Context, run *SweepRun, ids []string, runErr error) {
	completed := s.tenants.Now()
	run.CompletedAt = &completed
	run.Status = RunSuccess
	if runErr != nil {
		run.Status = RunFailed
		run.ErrorMsg = runErr.Error()
	}
	if len(ids) > 0 {
		if raw, err := json.Marshal(map[string]any{"tenant_ids": ids}); err == nil {
			run.Metadata = datatypes.JSON(raw)
		}
	}

	if err := s.db.WithContext(ctx).Model(&SweepRun{}).Where("id = ?", run.ID).Updates(map[string]any{
		"status":       run.Status,
		"matched":      run.Matched,
		"deactivated":  run.Deactivated,
		"error_msg":    run.ErrorMsg,
		"completed_at": completed,
		"metadata":     run.Metadata,
	}).Error; err != nil {
		zap.L().Error("failed to update sweep run", zap.String("run_id", run.ID), zap.Error(err))
	}

	zap.L().Info("lifecycle sweep finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("matched", run.Matched),
		zap.Int("deactivated", run.Deactivated),
		zap.Strings("tenant_ids", ids),
	)
}

// Runs lists the most recent sweep runs.
func (s *Service) Runs(ctx context.Context, limit int) ([]*SweepRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []*SweepRun
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
