// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - RecordStore / RecordReader: Transactional record writes and reads (internal/services/interfaces.go)
//   - SessionStore: Import session lifecycle and error log (internal/services/interfaces.go)
//   - SessionSweeper: Cleanup of abandoned sessions (internal/services/interfaces.go)
//   - NormalizationRulesProvider: Per-user tag rules (internal/services/interfaces.go)
//
// ## Import Pipeline Interfaces
//
//   - ImportService: What the HTTP layer calls on the coordinator (internal/http/stores.go)
//   - ImportRecoverer: What background tasks call on the coordinator (internal/tasks/resume_import.go)
//   - AuditRecorder: Import lifecycle events (internal/importers/coordinator.go)
//
// ## Background Work Interfaces
//
//   - TaskQueue / Enqueuer: Enqueue and inspect backlite tasks (internal/http/stores.go, internal/entrypoint/jobs.go)
//   - SweepReporter / AuditEventCleaner: Maintenance task collaborators (internal/tasks/)
//
// # Adding a New Bundle Version
//
//  1. Add the constant in internal/importers/bundle.go and accept it in Version.Valid
//
//  2. Teach Validator.validateRecord the new record schema
//
//  3. Map the new shape to CanonicalRecord in Migrator.Migrate
//
//  4. Emit it from exporters.Exporter.Export if it can be exported
//
// # Adding a New Database Domain
//
//  1. Create sub-package: internal/database/<domain>/
//
//  2. Define repository:
//
//     type Repository struct { db *gorm.DB }
//
//     func NewRepository(db *gorm.DB) *Repository
//
//  3. Register the entity in database.Models
//
//  4. Add compile-time check in checks.go:
//
//     var _ services.SomeStore = (*Repository)(nil)
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for examples.
package interfaces
