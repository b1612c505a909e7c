package importers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/services"
)

// Machine-readable error codes surfaced in error log entries and responses.
const (
	CodeInvalidJSON           = "INVALID_JSON"
	CodeSchemaValidation      = "SCHEMA_VALIDATION_FAILED"
	CodeUnsupportedVersion    = "UNSUPPORTED_VERSION"
	CodeMissingField          = "MISSING_FIELD"
	CodeInvalidType           = "INVALID_TYPE"
	CodeInvalidDate           = "INVALID_DATE_FORMAT"
	CodeTooManyRecords        = "TOO_MANY_RECORDS"
	CodeEmptyContent          = "EMPTY_CONTENT"
	CodeContentTooLong        = "CONTENT_TOO_LONG"
	CodeDuplicateRecord       = "DUPLICATE_RECORD"
	CodeNormalizationMismatch = "NORMALIZATION_MISMATCH"
	CodeChunkFailed           = "CHUNK_FAILED"
	CodeInterrupted           = "IMPORT_INTERRUPTED"
	CodeSkippedOnResume       = "SKIPPED_ON_RESUME"
	CodeSessionState          = "INVALID_SESSION_STATE"
	CodeSessionNotFound       = "SESSION_NOT_FOUND"
	CodeInvalidAction         = "INVALID_RECOVERY_ACTION"
	CodePayloadExpired        = "PAYLOAD_EXPIRED"
	CodeCancelled             = "IMPORT_CANCELLED"
	CodePaused                = "IMPORT_PAUSED"
	CodeInternal              = "INTERNAL_ERROR"
)

var (
	// ErrImportCancelled is returned when a run stops because its session was cancelled.
	ErrImportCancelled = errors.New("import cancelled")

	// ErrImportPaused is returned when a run stops because its session was paused.
	ErrImportPaused = errors.New("import paused")

	// ErrInvalidAction is returned for recovery requests with an unknown action.
	ErrInvalidAction = errors.New("invalid recovery action")
)

// FieldError is one violated field of the input bundle.
type FieldError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	if f.Path == "" {
		return f.Message
	}
	return f.Path + ": " + f.Message
}

// SchemaValidationError rejects a bundle before anything is persisted.
type SchemaValidationError struct {
	Fields []FieldError
}

func (e *SchemaValidationError) Error() string {
	msgs := make([]string, 0, 3)
	for i, f := range e.Fields {
		if i == 3 {
			msgs = append(msgs, fmt.Sprintf("and %d more", len(e.Fields)-3))
			break
		}
		msgs = append(msgs, f.String())
	}
	return fmt.Sprintf("schema validation failed: %s", strings.Join(msgs, "; "))
}

func (e *SchemaValidationError) ErrorCode() string {
	return CodeSchemaValidation
}

// LimitExceededError rejects a bundle with more records than allowed.
type LimitExceededError struct {
	Limit  int
	Actual int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("too many records: %d exceeds the limit of %d", e.Actual, e.Limit)
}

func (e *LimitExceededError) ErrorCode() string {
	return CodeTooManyRecords
}

// RecordError is a failure of a single record inside a chunk. It is logged
// and the chunk continues.
type RecordError struct {
	Index  int
	Code   string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
}

func (e *RecordError) ErrorCode() string {
	return e.Code
}

// ChunkRollbackInfo describes a chunk whose transaction was rolled back.
type ChunkRollbackInfo struct {
	ChunkNumber       int    `json:"chunkNumber"`
	Size              int    `json:"size"`
	StartIndex        int    `json:"startIndex"`
	EndIndex          int    `json:"endIndex"`
	Reason            string `json:"reason"`
	// RecordsAffected counts every record of the chunk, since none of its
	// writes survive the rollback.
	RecordsAffected   int    `json:"recordsAffected"`
	FailedRecordIndex int    `json:"failedRecordIndex"`
}

// ChunkFatalError aborts a chunk and halts the run. None of the chunk's
// records count as processed.
type ChunkFatalError struct {
	Rollback ChunkRollbackInfo
	Err      error
}

func (e *ChunkFatalError) Error() string {
	return fmt.Sprintf("chunk %d (records %d-%d) rolled back: %v",
		e.Rollback.ChunkNumber, e.Rollback.StartIndex, e.Rollback.EndIndex, e.Err)
}

func (e *ChunkFatalError) Unwrap() error {
	return e.Err
}

func (e *ChunkFatalError) ErrorCode() string {
	return CodeChunkFailed
}

// SessionStateError rejects an action that does not fit the session's status.
type SessionStateError struct {
	SessionID string
	Status    entities.ImportSessionStatus
	Action    string
	Reason    string
	// Code overrides CodeSessionState.
	Code string
}

func (e *SessionStateError) Error() string {
	msg := fmt.Sprintf("cannot %s session %s in status %s", e.Action, e.SessionID, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *SessionStateError) ErrorCode() string {
	if e.Code != "" {
		return e.Code
	}
	return CodeSessionState
}

// FailureError carries the structured response for a failed or stopped run.
type FailureError struct {
	Response *FailureResponse
	Err      error
}

func (e *FailureError) Error() string {
	return e.Err.Error()
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the machine-readable code of err, or CodeInternal.
func ErrorCode(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	switch {
	case errors.Is(err, ErrImportCancelled):
		return CodeCancelled
	case errors.Is(err, ErrImportPaused):
		return CodePaused
	case errors.Is(err, ErrInvalidAction):
		return CodeInvalidAction
	case errors.Is(err, services.ErrSessionNotFound):
		return CodeSessionNotFound
	}
	return CodeInternal
}
