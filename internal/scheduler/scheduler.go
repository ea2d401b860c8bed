package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgsync/internal/clock"
	invitationdomain "github.com/smallbiznis/orgsync/internal/invitation/domain"
	obsmetrics "github.com/smallbiznis/orgsync/internal/observability/metrics"
	"github.com/smallbiznis/orgsync/internal/outbox"
	"github.com/smallbiznis/orgsync/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Expirer is the part of the invitation service the scheduler drives.
type Expirer interface {
	ExpireBatch(ctx context.Context, now time.Time) (invitationdomain.ExpireResult, error)
}

// Purger drops relayed outbox rows.
type Purger interface {
	PurgePublished(ctx context.Context, olderThan time.Time) (int64, error)
}

type Params struct {
	fx.In

	Log           *zap.Logger
	InvitationSvc invitationdomain.Service
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        Config            `optional:"true"`
	Relay         *outbox.Relay     `optional:"true"`
	Locker        *ratelimit.Locker `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	expirer Expirer
	purger  Purger
	locker  *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.InvitationSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		expirer: p.InvitationSvc,
	}
	if p.Relay != nil {
		s.purger = p.Relay
	}
	if s.cfg.LockEnabled {
		if p.Locker == nil {
			return nil, fmt.Errorf("%w: lock enabled without redis", ErrInvalidConfig)
		}
		s.locker = p.Locker
	}
	return s, nil
}

// runJob runs fn under the job timeout and, when locking is on, only if this
// replica wins the job lock. A timeout is logged and counted but not returned.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	schedMetrics := obsmetrics.Scheduler()

	release, acquired := s.acquire(parent, name)
	if !acquired {
		return nil
	}
	defer release()

	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics.IncJobRun(name)

	err := safeRun(ctx, fn)
	if err != nil && errors.Is(err, errJobPanic) {
		log.Error("job panicked", zap.Error(err))
	}
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

var errJobPanic = errors.New("job panic")

// safeRun turns a panic inside fn into an error so one broken job cannot take
// down the scheduler loop.
func safeRun(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errJobPanic, r)
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) acquire(ctx context.Context, job string) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	key := s.cfg.LockPrefix + job
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		obsmetrics.Scheduler().IncJobSkipped(job, obsmetrics.SchedulerSkipReasonLockFailed)
		s.log.Warn("scheduler lock failed", zap.String("job", job), zap.Error(err))
		return nil, false
	}
	if !ok {
		obsmetrics.Scheduler().IncJobSkipped(job, obsmetrics.SchedulerSkipReasonLockHeld)
		s.log.Debug("scheduler lock held elsewhere", zap.String("job", job))
		return nil, false
	}
	return func() {
		// The parent may already be cancelled; release on a fresh context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", job), zap.Error(err))
		}
	}, true
}

// RunOnce runs every enabled job a single time. Job failures are joined into
// the returned error after being logged and counted.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobExpireInvitations, s.isJobEnabled(JobExpireInvitations), func(ctx context.Context) error {
			return s.runJob(ctx, JobExpireInvitations, s.cfg.JobTimeout, s.ExpireInvitationsJob)
		}},
		{JobPurgeOutbox, s.purger != nil && s.cfg.OutboxRetention > 0 && s.isJobEnabled(JobPurgeOutbox), func(ctx context.Context) error {
			return s.runJob(ctx, JobPurgeOutbox, s.cfg.JobTimeout, s.PurgeOutboxJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()

	for {
		if runLag := s.clock.Now().Sub(nextRun); runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) ExpireInvitationsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpireInvitations)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	result, err := s.expirer.ExpireBatch(ctx, s.clock.Now())
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.invitations.expire.failed", err)
		return err
	}
	run.AddProcessed(len(result.ExpiredIDs))
	obsmetrics.Scheduler().AddBatchProcessed(JobExpireInvitations, "invitation", len(result.ExpiredIDs))
	if len(result.ExpiredIDs) > 0 {
		s.logger(ctx).Info("scheduler.invitations.expired",
			zap.Int("count", len(result.ExpiredIDs)),
			zap.String("event_id", result.EventID),
		)
	}
	return nil
}

func (s *Scheduler) PurgeOutboxJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPurgeOutbox)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	purged, err := s.purger.PurgePublished(ctx, s.clock.Now().Add(-s.cfg.OutboxRetention))
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.outbox.purge.failed", err)
		return err
	}
	run.AddProcessed(int(purged))
	obsmetrics.Scheduler().AddBatchProcessed(JobPurgeOutbox, "outbox_event", int(purged))
	return nil
}
