// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, migrations, default user seeding
//	├── records/         # Record storage, chunk transactions and savepoints
//	├── sessions/        # Import sessions, error logs, staged payloads, sweeps
//	├── settings/        # Per-user tag normalization rules
//	├── users/           # Record owners
//	└── audit/           # Audit trail
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.NewDatabase("./tagnotes.db", "warn")
//
//	recordsRepo := records.NewRepository(db.DB)
//	sessionsRepo := sessions.NewRepository(db.DB)
//
//	err = recordsRepo.RunInTx(ctx, func(tx services.RecordTx) error { ... })
//	session, err := sessionsRepo.GetSession(ctx, sessionID)
//
// # Interface Implementations
//
//   - records.Repository: implements services.RecordStore and services.RecordReader
//   - sessions.Repository: implements services.SessionStore and services.SessionSweeper
//   - settings.Repository: implements services.NormalizationRulesProvider
//
// # Duplicate Detection
//
// records carries a composite unique index on (user_id, dedup_key). The dedup
// key is a fixed-length digest of the normalized tag set, so a duplicate lookup
// is a single B-tree probe, and the index is the final arbiter when two imports
// for the same owner race.
package database
