package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cesworld/pkg/db/option"
	"cesworld/pkg/db/pagination"
	"cesworld/pkg/errutil"
	"cesworld/pkg/repository"
	"cesworld/pkg/task"
	"cesworld/pkg/taskname"
	"cesworld/services/membership"
	"cesworld/services/reward"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Daily lists the tasks enqueued by the scheduler every night.
var Daily = []string{taskname.LoyaltyBirthdayRun, taskname.RewardExpiryRun}

type BirthdayRunner interface {
	RunBirthdayRewards(ctx context.Context, now time.Time) (membership.BirthdayResult, error)
}

type RewardExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	node      *snowflake.Node
	enqueuer  task.Enqueuer
	birthdays BirthdayRunner
	rewards   RewardExpirer
	now       func() time.Time

	job repository.Repository[Job]
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Enqueuer task.Enqueuer
	Members  *membership.Service
	Rewards  *reward.Service
}

func NewService(p Params) *Service {
	return newService(p.DB, p.Node, p.Enqueuer, p.Members, p.Rewards)
}

func newService(db *gorm.DB, node *snowflake.Node, enq task.Enqueuer, birthdays BirthdayRunner, rewards RewardExpirer) *Service {
	return &Service{
		node:      node,
		enqueuer:  enq,
		birthdays: birthdays,
		rewards:   rewards,
		now:       time.Now,
		job:       repository.ProvideStore[Job](db),
	}
}

func known(name string) bool {
	for _, n := range Daily {
		if n == name {
			return true
		}
	}
	return false
}

// Enqueue creates a pending Job record and sends the task to the low queue.
// The asynq task id is derived from the name and date so replicas enqueueing
// the same daily run collapse into one task.
func (s *Service) Enqueue(ctx context.Context, name string, scheduledFor time.Time) (*Job, error) {
	if !known(name) {
		return nil, errutil.NotFound(fmt.Sprintf("unknown job %q", name), nil)
	}

	job := &Job{
		ID:           s.node.Generate().String(),
		Name:         name,
		Status:       StatusPending,
		ScheduledFor: scheduledFor.UTC(),
	}
	if err := s.job.Create(ctx, job); err != nil {
		zap.L().Error("failed to create job", zap.String("name", name), zap.Error(err))
		return nil, errutil.Internal("failed to create job", err)
	}

	payload, _ := json.Marshal(jobPayload{JobID: job.ID, ScheduledFor: job.ScheduledFor})
	t := asynq.NewTask(name, payload)

	_, err := s.enqueuer.Enqueue(ctx, t,
		asynq.Queue(taskname.QueueLow),
		asynq.TaskID(fmt.Sprintf("%s:%s", name, job.ScheduledFor.Format("2006-01-02"))),
		asynq.MaxRetry(3),
	)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			msg = "already enqueued for this date"
		}
		s.finish(ctx, job, StatusFailed, msg, nil)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return job, errutil.Conflict(fmt.Sprintf("%s already enqueued for %s", name, job.ScheduledFor.Format("2006-01-02")), err)
		}
		zap.L().Error("failed to enqueue job", zap.String("name", name), zap.Error(err))
		return job, errutil.Internal("failed to enqueue job", err)
	}

	zap.L().Info("enqueued job",
		zap.String("name", name),
		zap.String("job_id", job.ID),
		zap.Time("scheduled_for", job.ScheduledFor),
	)
	return job, nil
}

// EnqueueDaily enqueues every daily task; failures are logged per task.
func (s *Service) EnqueueDaily(ctx context.Context, scheduledFor time.Time) error {
	var errs []error
	for _, name := range Daily {
		if _, err := s.Enqueue(ctx, name, scheduledFor); err != nil {
			zap.L().Error("failed enqueue daily job", zap.String("name", name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(taskname.LoyaltyBirthdayRun, s.handle(s.runBirthday))
	mux.HandleFunc(taskname.RewardExpiryRun, s.handle(s.runExpiry))
}

type runFunc func(ctx context.Context, scheduledFor time.Time) (any, error)

func (s *Service) runBirthday(ctx context.Context, scheduledFor time.Time) (any, error) {
	return s.birthdays.RunBirthdayRewards(ctx, scheduledFor)
}

func (s *Service) runExpiry(ctx context.Context, scheduledFor time.Time) (any, error) {
	n, err := s.rewards.ExpireDue(ctx, s.now())
	return map[string]int64{"expired": n}, err
}

// handle wraps a run so every execution is recorded on its Job row.
func (s *Service) handle(run runFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload jobPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			zap.L().Error("invalid job payload", zap.String("task_type", t.Type()), zap.Error(err))
			return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
		}

		job, err := s.job.FindOne(ctx, &Job{ID: payload.JobID})
		if err != nil {
			return err
		}
		if job == nil {
			// enqueued by hand or the record was lost; keep a trail anyway
			job = &Job{ID: s.node.Generate().String(), Name: t.Type(), ScheduledFor: payload.ScheduledFor}
			if err := s.job.Create(ctx, job); err != nil {
				return err
			}
		}

		started := s.now().UTC()
		if err := s.job.Update(ctx, job.ID, map[string]any{"status": StatusRunning, "started_at": started}); err != nil {
			return err
		}
		job.Status, job.StartedAt = StatusRunning, &started

		zapLog := zap.L().With(zap.String("task_type", t.Type()), zap.String("job_id", job.ID))
		zapLog.Info("job started")

		scheduledFor := payload.ScheduledFor
		if scheduledFor.IsZero() {
			scheduledFor = started
		}

		result, err := run(ctx, scheduledFor)
		if err != nil {
			zapLog.Error("job failed", zap.Error(err))
			s.finish(ctx, job, StatusFailed, err.Error(), result)
			return err
		}

		s.finish(ctx, job, StatusSuccess, "", result)
		zapLog.Info("job finished", zap.Duration("duration", time.Since(started)))
		return nil
	}
}

func (s *Service) finish(ctx context.Context, job *Job, status, errMsg string, result any) {
	completed := s.now().UTC()
	fields := map[string]any{
		"status":       status,
		"error_msg":    errMsg,
		"completed_at": completed,
	}
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			fields["metadata"] = datatypes.JSON(b)
			job.Metadata = b
		}
	}
	if err := s.job.Update(context.WithoutCancel(ctx), job.ID, fields); err != nil {
		zap.L().Error("failed to record job outcome", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	job.Status, job.ErrorMsg, job.CompletedAt = status, errMsg, &completed
}

type Filter struct {
	Name   string `form:"name"`
	Status string `form:"status"`
	pagination.Pagination
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Job, pagination.PageInfo, error) {
	rows, err := s.job.Find(ctx, &Job{Name: f.Name, Status: f.Status}, option.ApplyPagination(f.Pagination))
	if err != nil {
		zap.L().Error("failed to list jobs", zap.Error(err))
		return nil, pagination.PageInfo{}, errutil.Internal("failed to list jobs", err)
	}
	data, page := pagination.Page(rows, f.Pagination, func(j *Job) string { return j.ID })
	return data, page, nil
}
