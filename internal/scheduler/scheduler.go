package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepTimeout = time.Minute

// ChoreReopener reopens completed recurring chores whose next cycle started.
type ChoreReopener interface {
	ReopenRecurringChores(ctx context.Context) (int, error)
}

type Scheduler struct {
	log  *zap.Logger
	cron *cron.Cron
	svc  ChoreReopener
}

// New schedules the recurring chore sweep on the given cron spec. Standard
// five-field expressions and descriptors such as "@every 5m" are accepted.
func New(logger *zap.Logger, svc ChoreReopener, spec string) (*Scheduler, error) {
	cl := cronLogger{log: logger.Sugar()}
	s := &Scheduler{
		log: logger,
		svc: svc,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}

	if _, err := s.cron.AddFunc(spec, s.sweepChores); err != nil {
		return nil, fmt.Errorf("schedule chore sweep %q: %w", spec, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.log.Info("starting scheduler")
	s.cron.Start()
}

// Stop prevents new runs and waits for a running sweep to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) sweepChores() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := s.svc.ReopenRecurringChores(ctx)
	if err != nil {
		s.log.Error("chore sweep failed", zap.Int("reopened", n), zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("reopened recurring chores", zap.Int("count", n))
	}
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
