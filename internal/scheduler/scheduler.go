// Package scheduler drives the periodic billing jobs: overdue detection,
// reminder dispatch, recurring generation, scheduled fires and late fees.
// Jobs are explicit methods so tests can drive a single pass with a fake
// clock instead of waiting on the ticker.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/atelierhq/atelier/internal/clock"
	invoicedomain "github.com/atelierhq/atelier/internal/invoice/domain"
	"github.com/atelierhq/atelier/internal/latefee"
	obsmetrics "github.com/atelierhq/atelier/internal/observability/metrics"
	recurringdomain "github.com/atelierhq/atelier/internal/recurring/domain"
	reminderdomain "github.com/atelierhq/atelier/internal/reminder/domain"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	InvoiceSvc   invoicedomain.Service
	ReminderSvc  reminderdomain.Service
	RecurringSvc recurringdomain.Service
	LateFeeSvc   latefee.Service
	Metrics      *obsmetrics.SchedulerMetrics `optional:"true"`
	Config       Config                       `optional:"true"`
}

type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	invoiceSvc   invoicedomain.Service
	reminderSvc  reminderdomain.Service
	recurringSvc recurringdomain.Service
	lateFeeSvc   latefee.Service
	metrics      *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.InvoiceSvc == nil || p.ReminderSvc == nil || p.RecurringSvc == nil || p.LateFeeSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		invoiceSvc:   p.InvoiceSvc,
		reminderSvc:  p.ReminderSvc,
		recurringSvc: p.RecurringSvc,
		lateFeeSvc:   p.LateFeeSvc,
		metrics:      p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (processed, failed int, err error)) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	s.metrics.IncJobRun(name)

	processed, failed, err := fn(ctx)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	s.metrics.AddBatchProcessed(name, processed)

	log.Info("job finished",
		zap.Int("processed", processed),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)),
	)

	if err == nil {
		return nil
	}

	// A deadline hit is a soft timeout; the next tick resumes where the
	// idempotency markers left off.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	s.metrics.IncJobError(name)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes a single pass of every enabled job. Jobs run in a fixed
// order so an invoice flipped overdue in this pass is seen by the late fee
// job in the same pass.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"check_overdue", s.CheckOverdueJob},
		{"reminders", s.RemindersJob},
		{"recurring_generate", s.RecurringGenerateJob},
		{"scheduled_fire", s.ScheduledFireJob},
		{"late_fees", s.LateFeesJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, job.Run(parent))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs means every job runs (monolith mode).
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

func (s *Scheduler) CheckOverdueJob(ctx context.Context) error {
	return s.runJob(ctx, "check_overdue", func(ctx context.Context) (int, int, error) {
		result, err := s.invoiceSvc.CheckOverdue(ctx)
		return result.Processed, result.Failed, errors.Join(err, joinErrors(result.Errors))
	})
}

func (s *Scheduler) RemindersJob(ctx context.Context) error {
	return s.runJob(ctx, "reminders", func(ctx context.Context) (int, int, error) {
		result, err := s.reminderSvc.DispatchDue(ctx)
		return result.Sent + result.Skipped, result.Failed, errors.Join(err, joinErrors(result.Errors))
	})
}

func (s *Scheduler) RecurringGenerateJob(ctx context.Context) error {
	return s.runJob(ctx, "recurring_generate", func(ctx context.Context) (int, int, error) {
		result, err := s.recurringSvc.GenerateDue(ctx)
		return result.Generated, result.Failed, errors.Join(err, joinErrors(result.Errors))
	})
}

func (s *Scheduler) ScheduledFireJob(ctx context.Context) error {
	return s.runJob(ctx, "scheduled_fire", func(ctx context.Context) (int, int, error) {
		result, err := s.recurringSvc.FireDue(ctx)
		return result.Generated, result.Failed, errors.Join(err, joinErrors(result.Errors))
	})
}

func (s *Scheduler) LateFeesJob(ctx context.Context) error {
	return s.runJob(ctx, "late_fees", func(ctx context.Context) (int, int, error) {
		result, err := s.lateFeeSvc.ProcessAll(ctx)
		return result.Applied, result.Failed, errors.Join(err, joinErrors(result.Errors))
	})
}

func joinErrors(messages []string) error {
	var err error
	for _, message := range messages {
		err = errors.Join(err, errors.New(message))
	}
	return err
}
