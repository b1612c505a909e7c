package http

import (
	"context"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/exporters"
	"github.com/mrlokans/tagnotes/internal/importers"
)

// This file consolidates the interfaces used by HTTP controllers.
// Each controller depends only on the operations it calls.

// ImportService runs and inspects bulk imports.
type ImportService interface {
	Import(ctx context.Context, userID uint, raw []byte) (*importers.ImportResult, error)
	Recover(ctx context.Context, req importers.RecoveryRequest) (*importers.ImportResult, error)
	Session(ctx context.Context, userID uint, sessionID string) (*importers.SessionReport, error)
	Errors(ctx context.Context, userID uint, sessionID string) ([]importers.ErrorLogEntry, error)
	Resumable(ctx context.Context, userID uint, limit int) ([]importers.ResumeInfo, error)
}

// RecordExporter builds export bundles.
type RecordExporter interface {
	Export(userID uint, version importers.Version) (*exporters.Bundle, error)
}

// NormalizationSettingsStore reads and updates per-user normalization rules.
type NormalizationSettingsStore interface {
	GetNormalizationSettings(userID uint) (*entities.NormalizationSettings, error)
	SetNormalizationSettings(userID uint, caseSensitive, removeAccents bool) (*entities.NormalizationSettings, error)
}

// UserGetter resolves the owner named by a request.
type UserGetter interface {
	GetUserByID(id uint) (*entities.User, error)
}

// AuditLog records and lists audit events.
type AuditLog interface {
	LogExport(userID uint, version string, records int, err error)
	LogSettings(userID uint, action, description string)
	GetEvents(userID uint, limit, offset int) ([]entities.AuditEvent, int64, error)
	GetEventsByType(eventType entities.AuditEventType, userID uint, limit, offset int) ([]entities.AuditEvent, int64, error)
	SessionHistory(sessionID string) ([]entities.AuditEvent, error)
}

// TaskQueue enqueues background tasks and reports their status.
type TaskQueue interface {
	Enqueue(task backlite.Task) (string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// SweepSettings configures the maintenance tasks that can be run on demand.
type SweepSettings struct {
	StaleAfter         time.Duration
	PayloadRetention   time.Duration
	AuditRetentionDays int
}
