// Package importers provides the bulk import pipeline for versioned record bundles.
//
// # Architecture
//
// An import run follows a fixed flow:
//
//	raw JSON → Validator → Migrator → limits → Session → ChunkIterator → ChunkProcessor → SessionTracker
//
// The Validator accepts exactly two bundle versions ("1.0" and "2.0") and reports
// every violated field path. The Migrator turns both into CanonicalRecord values
// whose position in the input is their record index. The Coordinator then cuts the
// records into fixed-size chunks and processes them strictly one after another.
//
// # Failure Model
//
// Failures come in two tiers:
//
//   - Record-level: a record that cannot be stored is logged in the session's
//     error log and the chunk continues in the same transaction.
//   - Chunk-level: any other storage error rolls the whole chunk back. The session
//     is marked failed and keeps LastProcessedIndex at the end of the last committed
//     chunk, so a resumed run starts at LastProcessedIndex+1.
//
// Records whose normalized tag set already exists for the owner are skipped
// without an error entry. The (owner, dedup key) unique index is the final
// arbiter when two runs of the same owner race.
//
// # Recovery
//
// Coordinator.Recover accepts four actions:
//
//   - resume: restart a paused or failed session, optionally skipping the
//     records that caused the last rollback or starting further ahead
//   - retry: restart a failed session from LastProcessedIndex+1
//   - pause: stop a running session before its next chunk
//   - cancel: stop a session for good
//
// Resumed runs read the records staged when the session was created, so the
// client does not upload the bundle again.
//
// # Example Usage
//
//	coordinator := importers.NewCoordinator(importers.Dependencies{
//		Records:  records.NewRepository(db),
//		Sessions: sessions.NewRepository(db),
//		Rules:    settings.NewRepository(db),
//	}, importers.Options{ChunkSize: 500, MaxRecords: 50000})
//
//	result, err := coordinator.Import(ctx, userID, body)
//	var failure *importers.FailureError
//	if errors.As(err, &failure) && failure.Response.CanResume {
//		result, err = coordinator.Recover(ctx, importers.RecoveryRequest{
//			Action:    importers.ActionResume,
//			SessionID: failure.Response.SessionID,
//		})
//	}
package importers
