package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/tagnotes/internal/audit"
	"github.com/mrlokans/tagnotes/internal/database"
	"github.com/mrlokans/tagnotes/internal/database/records"
	"github.com/mrlokans/tagnotes/internal/database/sessions"
	"github.com/mrlokans/tagnotes/internal/database/settings"
	"github.com/mrlokans/tagnotes/internal/database/users"
	"github.com/mrlokans/tagnotes/internal/entrypoint"
	"github.com/mrlokans/tagnotes/internal/exporters"
	"github.com/mrlokans/tagnotes/internal/http"
	"github.com/mrlokans/tagnotes/internal/importers"
	"github.com/mrlokans/tagnotes/internal/services"
	"github.com/mrlokans/tagnotes/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

// RecordStore/RecordReader implementations
var _ services.RecordStore = (*records.Repository)(nil)
var _ services.RecordReader = (*records.Repository)(nil)

// SessionStore/SessionSweeper implementations
var _ services.SessionStore = (*sessions.Repository)(nil)
var _ services.SessionSweeper = (*sessions.Repository)(nil)

// Normalization settings implementations
var _ services.NormalizationRulesProvider = (*settings.Repository)(nil)
var _ http.NormalizationSettingsStore = (*settings.Repository)(nil)

// UserGetter implementations
var _ http.UserGetter = (*users.Repository)(nil)

// Pinger implementations
var _ http.Pinger = (*database.Database)(nil)

// =============================================================================
// Import Pipeline
// =============================================================================

// ImportService implementations
var _ http.ImportService = (*importers.Coordinator)(nil)
var _ tasks.ImportRecoverer = (*importers.Coordinator)(nil)

// RecordExporter implementations
var _ http.RecordExporter = (*exporters.Exporter)(nil)

// =============================================================================
// Audit
// =============================================================================

var _ importers.AuditRecorder = (*audit.Service)(nil)
var _ http.AuditLog = (*audit.Service)(nil)
var _ tasks.SweepReporter = (*audit.Service)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)

// =============================================================================
// Background Tasks
// =============================================================================

var _ http.TaskQueue = (*tasks.Client)(nil)
var _ entrypoint.Enqueuer = (*tasks.Client)(nil)
