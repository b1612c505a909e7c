package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named unit of periodic maintenance work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs maintenance jobs, such as the import session sweep, on cron
// schedules.
type Scheduler struct {
	jobs   []Job
	logger *zap.Logger

	cron       *cron.Cron
	entryIDs   map[string]cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	runCtx     context.Context
	cancelFunc context.CancelFunc
	active     sync.WaitGroup
}

// NewScheduler creates a new scheduler instance
func NewScheduler(logger *zap.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		jobs:     jobs,
		logger:   logger.Named("scheduler"),
		entryIDs: make(map[string]cron.EntryID),
	}
}

// Start validates every schedule and begins running the jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if len(s.jobs) == 0 {
		s.logger.Info("no maintenance jobs configured")
		return nil
	}

	c := cron.New(cron.WithParser(parser))
	entryIDs := make(map[string]cron.EntryID, len(s.jobs))
	for _, job := range s.jobs {
		if err := ValidateCronSchedule(job.Schedule); err != nil {
			return fmt.Errorf("invalid cron schedule '%s' for %s: %w", job.Schedule, job.Name, err)
		}
		entryID, err := c.AddFunc(job.Schedule, func() {
			s.run(job)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
		entryIDs[job.Name] = entryID
	}

	s.cron = c
	s.entryIDs = entryIDs
	s.runCtx, s.cancelFunc = context.WithCancel(ctx)
	s.cron.Start()
	s.isRunning = true

	for _, job := range s.jobs {
		next, _ := NextRunTime(job.Schedule, time.Now())
		s.logger.Info("job scheduled",
			zap.String("job", job.Name),
			zap.String("schedule", job.Schedule),
			zap.String("description", DescribeSchedule(job.Schedule)),
			zap.Time("next_run", next))
	}

	// Monitor for context cancellation
	runCtx := s.runCtx
	go func() {
		<-runCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	c, cancel := s.cron, s.cancelFunc
	s.isRunning = false
	s.cancelFunc = nil
	s.mu.Unlock()

	// Stop accepting new jobs and wait for running jobs to complete
	cancel()
	<-c.Stop().Done()
	s.active.Wait()

	s.logger.Info("scheduler stopped")
}

// RunNow triggers an immediate run of the named job.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return fmt.Errorf("scheduler is not running")
	}
	for _, job := range s.jobs {
		if job.Name == name {
			s.active.Add(1)
			go func() {
				defer s.active.Done()
				s.run(job)
			}()
			return nil
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

// IsRunning returns whether the scheduler is active
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the named job will run next.
func (s *Scheduler) GetNextRunTime(name string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	entryID, ok := s.entryIDs[name]
	if !ok {
		return nil
	}
	for _, entry := range s.cron.Entries() {
		if entry.ID == entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

func (s *Scheduler) run(job Job) {
	s.mu.RLock()
	ctx := s.runCtx
	s.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	s.logger.Debug("job finished",
		zap.String("job", job.Name),
		zap.Duration("duration", time.Since(start)))
}
