package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"

	"github.com/mrlokans/tagnotes/internal/importers"
)

// ImportRecoverer applies a recovery action to an import session.
type ImportRecoverer interface {
	Recover(ctx context.Context, req importers.RecoveryRequest) (*importers.ImportResult, error)
}

// ResumeImportTask continues an interrupted import in the background.
type ResumeImportTask struct {
	SessionID      string                   `json:"session_id"`
	UserID         uint                     `json:"user_id"`
	Action         importers.RecoveryAction `json:"action"`
	SkipErrors     bool                     `json:"skip_errors,omitempty"`
	StartFromIndex *int                     `json:"start_from_index,omitempty"`
}

// NewResumeImportTask builds a task from a recovery request.
func NewResumeImportTask(req importers.RecoveryRequest) ResumeImportTask {
	return ResumeImportTask{
		SessionID:      req.SessionID,
		UserID:         req.UserID,
		Action:         req.Action,
		SkipErrors:     req.SkipErrors,
		StartFromIndex: req.StartFromIndex,
	}
}

// Config returns the queue configuration for import resume tasks.
// The session records its own failure, so backlite never retries a run.
func (t ResumeImportTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "resume_import",
		MaxAttempts: 1,
		Backoff:     time.Minute,
		Timeout:     time.Hour,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ResumeImportProcessor creates a processor function for ResumeImportTask.
func ResumeImportProcessor(recoverer ImportRecoverer, logger *zap.Logger) backlite.QueueProcessor[ResumeImportTask] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, task ResumeImportTask) error {
		if recoverer == nil {
			return fmt.Errorf("import coordinator not configured")
		}

		action := task.Action
		if action == "" {
			action = importers.ActionResume
		}
		log := logger.With(zap.String("session_id", task.SessionID), zap.String("action", string(action)))

		result, err := recoverer.Recover(ctx, importers.RecoveryRequest{
			Action:         action,
			SessionID:      task.SessionID,
			SkipErrors:     task.SkipErrors,
			StartFromIndex: task.StartFromIndex,
			UserID:         task.UserID,
		})
		if err != nil {
			var failure *importers.FailureError
			if errors.As(err, &failure) && failure.Response != nil {
				log.Warn("background recovery stopped",
					zap.String("code", failure.Response.Code),
					zap.Bool("can_resume", failure.Response.CanResume))
			}
			return fmt.Errorf("recover session %s: %w", task.SessionID, err)
		}

		log.Info("background recovery finished",
			zap.String("status", string(result.Status)),
			zap.Int("imported", result.Imported),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
		return nil
	}
}

// NewResumeImportQueue creates a backlite queue for import resume tasks.
func NewResumeImportQueue(recoverer ImportRecoverer, logger *zap.Logger) backlite.Queue {
	return backlite.NewQueue(ResumeImportProcessor(recoverer, logger))
}
