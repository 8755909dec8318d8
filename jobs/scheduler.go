package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cppla/rewardhub/services"
)

// ScratchRunner is the batch the scheduler triggers.
type ScratchRunner interface {
	Run(ctx context.Context) (*services.RunReport, error)
}

// Scheduler runs the daily scratch-card batch on a cron schedule with a seconds field.
type Scheduler struct {
	cron     *cron.Cron
	runner   ScratchRunner
	cronExpr string
	timeout  time.Duration
	log      *zap.Logger
}

// NewScheduler evaluates cronExpr in loc, which should be the reward timezone so "just after
// midnight" means the reference midnight.
func NewScheduler(runner ScratchRunner, cronExpr string, loc *time.Location, timeout time.Duration, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		runner:   runner,
		cronExpr: cronExpr,
		timeout:  timeout,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cronExpr, s.issueScratchCards); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("scratch card scheduler started", zap.String("cron", s.cronExpr))
	return nil
}

// Stop waits for a running batch to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scratch card scheduler stopped")
}

func (s *Scheduler) issueScratchCards() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, services.ErrIssuanceInProgress):
		s.log.Warn("scratch card issuance already running, tick skipped")
	case err != nil:
		s.log.Error("scheduled scratch card issuance failed", zap.Error(err))
	default:
		s.log.Info("scheduled scratch card issuance done",
			zap.String("run_id", report.RunID),
			zap.String("status", report.Status),
			zap.Int("created", report.Created),
		)
	}
}
