package services

import (
	"context"
	"errors"
	"time"

	"github.com/mrlokans/tagnotes/internal/entities"
)

var (
	// ErrDuplicateRecord is returned when a record with the same owner and
	// normalized tag set already exists.
	ErrDuplicateRecord = errors.New("duplicate record")

	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrPayloadNotFound is returned when a session has no staged records.
	ErrPayloadNotFound = errors.New("import payload not found")

	// ErrStaleAdvance is returned when a chunk does not continue from the
	// session's last committed index.
	ErrStaleAdvance = errors.New("chunk does not continue from the last committed record")

	// ErrStatusConflict is returned when a status transition loses a race or
	// starts from an unexpected status.
	ErrStatusConflict = errors.New("import session status conflict")

	// ErrInvariantViolation is returned when a mutation would break the
	// processed/imported/failed counter invariants.
	ErrInvariantViolation = errors.New("import session counters out of range")
)

// RecordTx is record storage scoped to one chunk transaction.
type RecordTx interface {
	ExistsByDedupKey(userID uint, dedupKey string) (bool, error)
	// Insert stores a record. A unique violation on (owner, dedup key) is
	// reported as ErrDuplicateRecord and leaves the transaction usable.
	Insert(record *entities.Record) error
}

// RecordStore opens one transaction per chunk. The transaction commits when fn
// returns nil and rolls back otherwise.
type RecordStore interface {
	RunInTx(ctx context.Context, fn func(tx RecordTx) error) error
}

// RecordReader provides read-only access to a user's records.
type RecordReader interface {
	ListRecords(userID uint) ([]entities.Record, error)
	CountRecords(userID uint) (int64, error)
}

// NormalizationRulesProvider returns the tag normalization rules of a user.
type NormalizationRulesProvider interface {
	GetNormalizationSettings(userID uint) (*entities.NormalizationSettings, error)
}

// ChunkAdvance is a committed chunk folded into its session.
type ChunkAdvance struct {
	ChunkNumber int
	StartIndex  int
	EndIndex    int
	Processed   int
	Imported    int
	Skipped     int
	Failed      int
	Entries     []entities.ImportErrorEntry
}

// SessionStore persists import sessions, their error logs and staged payloads.
type SessionStore interface {
	CreateSession(ctx context.Context, session *entities.ImportSession) error
	GetSession(ctx context.Context, sessionID string) (*entities.ImportSession, error)
	// TransitionStatus moves a session to `to` only if its current status is one of `from`.
	TransitionStatus(ctx context.Context, sessionID string, from []entities.ImportSessionStatus, to entities.ImportSessionStatus, lastError string) error
	// AdvanceSession applies a committed chunk. Re-submitting an already applied
	// chunk is a no-op.
	AdvanceSession(ctx context.Context, sessionID string, adv ChunkAdvance) (*entities.ImportSession, error)
	AppendErrors(ctx context.Context, sessionID string, entries []entities.ImportErrorEntry) error
	ListErrors(ctx context.Context, sessionID string) ([]entities.ImportErrorEntry, error)
	ListResumable(ctx context.Context, userID uint, limit int) ([]entities.ImportSession, error)

	SavePayload(ctx context.Context, payload *entities.ImportPayload) error
	LoadPayload(ctx context.Context, sessionID string) (*entities.ImportPayload, error)
	DeletePayload(ctx context.Context, sessionID string) error
}

// SessionSweeper cleans up after crashed or abandoned import runs.
type SessionSweeper interface {
	FailStaleSessions(ctx context.Context, idleSince time.Time) (int64, error)
	PurgePayloads(ctx context.Context, olderThan time.Time) (int64, error)
}
