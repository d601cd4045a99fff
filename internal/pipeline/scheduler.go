package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"stock-forecaster/internal/logger"
)

// Cycler is the part of the orchestrator the scheduler drives.
type Cycler interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

// cronLogger routes cron's own messages into the structured logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug(context.Background(), "cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.ErrorWithErr(context.Background(), "cron: "+msg, err, keysAndValues...)
}

// Scheduler fires a cycle on a cron expression evaluated in UTC. A trigger
// that arrives while the previous cycle still runs is dropped.
type Scheduler struct {
	cycler Cycler
	expr   string
	cron   *cron.Cron

	mu      sync.Mutex
	running bool
}

func NewScheduler(cycler Cycler, expr string) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)
	s := &Scheduler{cycler: cycler, expr: expr, cron: c}
	if _, err := c.AddFunc(expr, s.trigger); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return s, nil
}

func (s *Scheduler) trigger() {
	ctx := context.Background()
	logger.Info(ctx, "Scheduled cycle triggered", "schedule", s.expr)
	report, err := s.cycler.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			logger.Warn(ctx, "Skipping scheduled cycle, previous cycle still running")
			return
		}
		logger.ErrorWithErr(ctx, "Scheduled cycle failed to start", err)
		return
	}
	logger.Info(ctx, "Scheduled cycle finished",
		"run_id", report.RunID,
		"date", report.Date.Format("2006-01-02"),
		"failed", report.Failed(),
	)
}

// Start begins firing cycles in the background.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	s.cron.Start()
	s.running = true
	logger.Info(context.Background(), "Scheduler started", "schedule", s.expr, "next", s.Next())
	return nil
}

// Next is the next trigger time, zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop halts the trigger and waits for an active cycle until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Info(ctx, "Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for active cycle: %w", ctx.Err())
	}
}
