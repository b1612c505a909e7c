package http

import "go.uber.org/zap"

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Importer ImportService
	Exporter RecordExporter
	Settings NormalizationSettingsStore
	Users    UserGetter
	Database Pinger

	// DefaultUserID owns requests that carry no X-User-ID header.
	DefaultUserID uint

	// MaxBodyBytes bounds import request bodies.
	MaxBodyBytes int64

	// Audit log (optional)
	Audit AuditLog

	// Task queue (optional); enables async recovery and /api/tasks
	Tasks TaskQueue
	Sweep SweepSettings

	// Application info
	Version string

	Logger *zap.Logger
}
