package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"

	"github.com/mrlokans/tagnotes/internal/services"
)

// SweepReporter is told how much a sweep removed.
type SweepReporter interface {
	LogCleanup(action string, removed int64, err error)
}

// SweepImportSessionsTask fails sessions whose run died without reaching a
// terminal state and purges staged payloads past their retention.
type SweepImportSessionsTask struct {
	StaleAfterSeconds       int64 `json:"stale_after_seconds"`
	PayloadRetentionSeconds int64 `json:"payload_retention_seconds"`
}

// NewSweepImportSessionsTask builds a sweep task from durations.
func NewSweepImportSessionsTask(staleAfter, payloadRetention time.Duration) SweepImportSessionsTask {
	return SweepImportSessionsTask{
		StaleAfterSeconds:       int64(staleAfter / time.Second),
		PayloadRetentionSeconds: int64(payloadRetention / time.Second),
	}
}

// Config returns the queue configuration for session sweep tasks.
func (t SweepImportSessionsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sweep_import_sessions",
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SweepResult counts what a sweep changed.
type SweepResult struct {
	StaleSessions  int64
	PurgedPayloads int64
}

// SweepImportSessions runs one sweep. A zero payloadRetention keeps payloads.
func SweepImportSessions(ctx context.Context, sweeper services.SessionSweeper, staleAfter, payloadRetention time.Duration) (SweepResult, error) {
	var result SweepResult
	if sweeper == nil {
		return result, fmt.Errorf("session sweeper not configured")
	}
	if staleAfter <= 0 {
		return result, fmt.Errorf("stale threshold must be positive, got %s", staleAfter)
	}

	now := time.Now()
	stale, err := sweeper.FailStaleSessions(ctx, now.Add(-staleAfter))
	if err != nil {
		return result, fmt.Errorf("fail stale sessions: %w", err)
	}
	result.StaleSessions = stale

	if payloadRetention > 0 {
		purged, err := sweeper.PurgePayloads(ctx, now.Add(-payloadRetention))
		if err != nil {
			return result, fmt.Errorf("purge staged payloads: %w", err)
		}
		result.PurgedPayloads = purged
	}
	return result, nil
}

// SweepImportSessionsProcessor creates a processor function for SweepImportSessionsTask.
func SweepImportSessionsProcessor(sweeper services.SessionSweeper, reporter SweepReporter, logger *zap.Logger) backlite.QueueProcessor[SweepImportSessionsTask] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, task SweepImportSessionsTask) error {
		result, err := SweepImportSessions(ctx, sweeper,
			time.Duration(task.StaleAfterSeconds)*time.Second,
			time.Duration(task.PayloadRetentionSeconds)*time.Second)
		if reporter != nil && (err != nil || result.StaleSessions > 0 || result.PurgedPayloads > 0) {
			reporter.LogCleanup("session_sweep", result.StaleSessions+result.PurgedPayloads, err)
		}
		if err != nil {
			return err
		}

		logger.Info("swept import sessions",
			zap.Int64("stale_sessions", result.StaleSessions),
			zap.Int64("purged_payloads", result.PurgedPayloads))
		return nil
	}
}

// NewSweepImportSessionsQueue creates a backlite queue for session sweep tasks.
func NewSweepImportSessionsQueue(sweeper services.SessionSweeper, reporter SweepReporter, logger *zap.Logger) backlite.Queue {
	return backlite.NewQueue(SweepImportSessionsProcessor(sweeper, reporter, logger))
}
