package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/lock"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	"github.com/smallbiznis/creatorpay/internal/outbox"
	payoutdomain "github.com/smallbiznis/creatorpay/internal/payout/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobCalculatePayouts    = "calculate_payouts"
	JobPendingPayoutRetry  = "pending_payout_retries"
	JobOutboxPublish       = "outbox_publish"
	JobOutboxCleanup       = "outbox_cleanup"
	leaderLockKey          = "creatorpay:scheduler:leader"
	maxOutboxBatchesPerRun = 50
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

// LeaderLocker is satisfied by lock.Locker.
type LeaderLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Finance   *config.FinanceConfigHolder
	Payouts   payoutdomain.Service
	Processor *outbox.Processor
	Publisher outbox.Publisher
	Locker    *lock.Locker `optional:"true"`
	Config    Config       `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	finance   *config.FinanceConfigHolder
	payouts   payoutdomain.Service
	processor *outbox.Processor
	publisher outbox.Publisher
	locker    LeaderLocker

	lastCleanup time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Finance == nil || p.Payouts == nil || p.Processor == nil || p.Publisher == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		finance:   p.Finance,
		payouts:   p.Payouts,
		processor: p.Processor,
		publisher: p.Publisher,
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	if s.cfg.LeaderLock && s.locker == nil {
		s.log.Warn("leader lock requested but redis is not configured; running without it")
	}
	return s, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
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
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
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

	// A deadline is a soft stop; the next tick resumes the work.
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

// RunOnce runs every enabled job once. With the leader lock on, a tick on an
// instance that does not hold the lock is skipped.
func (s *Scheduler) RunOnce(parent context.Context) error {
	if s.cfg.LeaderLock && s.locker != nil {
		token, ok, err := s.locker.TryLock(parent, leaderLockKey, s.cfg.LeaderLockTTL)
		if err != nil {
			return fmt.Errorf("acquire leader lock: %w", err)
		}
		if !ok {
			s.log.Debug("scheduler tick skipped, not leader")
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.Background(), leaderLockKey, token); err != nil {
				s.log.Warn("release leader lock failed", zap.Error(err))
			}
		}()
	}

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobCalculatePayouts, s.CalculatePayoutsJob},
		{JobPendingPayoutRetry, s.PendingPayoutRetriesJob},
		{JobOutboxPublish, s.OutboxPublishJob},
		{JobOutboxCleanup, s.OutboxCleanupJob},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
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
	// Empty means every job runs (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

// CalculatePayoutsJob claims eligible funds for every creator. Per-creator
// failures are counted and logged; they do not fail the job.
func (s *Scheduler) CalculatePayoutsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobCalculatePayouts)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	res, err := s.payouts.CalculateAllPayouts(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.payouts.calculate.failed", JobCalculatePayouts, err)
		return err
	}

	schedMetrics := obsmetrics.Scheduler()
	run.AddProcessed(res.Created)
	schedMetrics.AddBatchProcessed(JobCalculatePayouts, "payout", res.Created)
	for _, be := range res.Errors {
		run.IncError()
		schedMetrics.IncBatchDeferred(JobCalculatePayouts, "creator_error")
		s.logger(ctx).Warn("scheduler.payouts.creator.failed",
			zap.String("creator_id", be.CreatorID),
			zap.String("error", be.Error),
		)
	}
	return nil
}

// PendingPayoutRetriesJob surfaces PENDING payouts whose backoff has elapsed.
// The transfer itself happens outside this service, which reports back
// through MarkSent or MarkFailed.
func (s *Scheduler) PendingPayoutRetriesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPendingPayoutRetry)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	due, err := s.payouts.GetPendingRetry(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.payouts.retry.failed", JobPendingPayoutRetry, err)
		return err
	}
	for _, p := range due {
		s.logger(ctx).Info("payout.retry.due",
			zap.String("payout_id", p.ID.String()),
			zap.String("creator_id", p.CreatorID),
			zap.Int("retry_count", p.RetryCount),
			zap.Int64("payout_amount", p.PayoutAmount),
		)
	}
	run.AddProcessed(len(due))
	obsmetrics.Scheduler().AddBatchProcessed(JobPendingPayoutRetry, "payout", len(due))
	return nil
}

// OutboxPublishJob drains pending events batch by batch until a batch comes
// back short or nothing in it was delivered.
func (s *Scheduler) OutboxPublishJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobOutboxPublish)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	policy := s.finance.Get().Outbox
	schedMetrics := obsmetrics.Scheduler()

	for i := 0; i < maxOutboxBatchesPerRun; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.processor.ProcessEvents(ctx, s.publisher, policy.BatchSize, policy.MaxRetries)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.outbox.publish.failed", JobOutboxPublish, err)
			return err
		}
		run.AddProcessed(res.Published)
		schedMetrics.AddBatchProcessed(JobOutboxPublish, "outbox_event", res.Published)
		if res.Failed > 0 {
			schedMetrics.IncBatchDeferred(JobOutboxPublish, "publish_failed")
		}
		if res.Published == 0 || res.Published+res.Failed < policy.BatchSize {
			return nil
		}
	}
	return nil
}

// OutboxCleanupJob prunes published events past retention, at most once per
// CleanupInterval.
func (s *Scheduler) OutboxCleanupJob(ctx context.Context) error {
	now := s.clock.Now()
	if !s.lastCleanup.IsZero() && now.Sub(s.lastCleanup) < s.cfg.CleanupInterval {
		return nil
	}

	ctx, run, owner := s.ensureJobRun(ctx, JobOutboxCleanup)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	removed, err := s.processor.CleanupPublishedEvents(ctx, s.finance.Get().Outbox.RetentionDays)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.outbox.cleanup.failed", JobOutboxCleanup, err)
		return err
	}
	s.lastCleanup = now
	run.AddProcessed(int(removed))
	obsmetrics.Scheduler().AddBatchProcessed(JobOutboxCleanup, "outbox_event", int(removed))
	return nil
}
