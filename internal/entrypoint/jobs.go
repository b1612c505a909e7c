package entrypoint

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"

	"github.com/mrlokans/tagnotes/internal/scheduler"
	"github.com/mrlokans/tagnotes/internal/tasks"
)

// AuditCleanupSchedule runs the audit retention cleanup daily at 03:00.
const AuditCleanupSchedule = "0 3 * * *"

// Enqueuer hands a task to the background queue.
type Enqueuer interface {
	Enqueue(task backlite.Task) (string, error)
}

// MaintenanceJobs returns the periodic jobs of the server. With a queue the
// jobs only enqueue tasks; without one they run inline.
func MaintenanceJobs(app *App, queue Enqueuer) []scheduler.Job {
	cfg := app.Config
	var jobs []scheduler.Job

	if cfg.Import.SweepEnabled {
		jobs = append(jobs, scheduler.Job{
			Name:     "sweep_import_sessions",
			Schedule: cfg.Import.SweepSchedule,
			Run: func(ctx context.Context) error {
				if queue != nil {
					_, err := queue.Enqueue(tasks.NewSweepImportSessionsTask(cfg.Import.StaleAfter, cfg.Import.PayloadRetention))
					return err
				}
				result, err := tasks.SweepImportSessions(ctx, app.Sessions, cfg.Import.StaleAfter, cfg.Import.PayloadRetention)
				if err != nil || result.StaleSessions > 0 || result.PurgedPayloads > 0 {
					app.Audit.LogCleanup("sweep_import_sessions", result.StaleSessions+result.PurgedPayloads, err)
				}
				return err
			},
		})
	}

	if cfg.Audit.RetentionDays > 0 {
		jobs = append(jobs, scheduler.Job{
			Name:     "cleanup_audit_events",
			Schedule: AuditCleanupSchedule,
			Run: func(ctx context.Context) error {
				if queue != nil {
					_, err := queue.Enqueue(tasks.CleanupAuditEventsTask{RetentionDays: cfg.Audit.RetentionDays})
					return err
				}
				deleted, err := app.Audit.DeleteOldEvents(time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour)
				if err != nil {
					return fmt.Errorf("delete old audit events: %w", err)
				}
				app.Logger.Info("audit events cleaned up", zap.Int64("deleted", deleted))
				return nil
			},
		})
	}

	return jobs
}
