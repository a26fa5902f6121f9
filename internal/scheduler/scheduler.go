package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Reaper deletes rows that can no longer be used and reports how many went.
type Reaper interface {
	Reap(ctx context.Context) (int64, error)
}

// ReapRecorder receives the outcome of every successful run.
type ReapRecorder interface {
	Reaped(kind string, n int64)
}

type Job struct {
	Kind   string
	Reaper Reaper
}

type Scheduler struct {
	cron     *cron.Cron
	jobs     []Job
	recorder ReapRecorder
	timeout  time.Duration
}

// New schedules every job on spec, which accepts standard cron syntax and descriptors
// such as "@every 15m".
func New(spec string, recorder ReapRecorder, jobs ...Job) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:     jobs,
		recorder: recorder,
		timeout:  time.Minute,
	}

	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule cleanup %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce runs every job immediately. A failing job does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, job := range s.jobs {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		n, err := job.Reaper.Reap(runCtx)
		cancel()

		if err != nil {
			slog.Error("cleanup failed", "kind", job.Kind, "error", err)
			continue
		}
		if s.recorder != nil {
			s.recorder.Reaped(job.Kind, n)
		}
		if n > 0 {
			slog.Info("cleanup removed rows", "kind", job.Kind, "count", n)
		}
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running one to finish, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
