package entities

import (
	"time"

	"gorm.io/datatypes"
)

type ImportSessionStatus string

const (
	ImportStatusInitializing ImportSessionStatus = "initializing"
	ImportStatusInProgress   ImportSessionStatus = "in-progress"
	ImportStatusPaused       ImportSessionStatus = "paused"
	ImportStatusCompleted    ImportSessionStatus = "completed"
	ImportStatusFailed       ImportSessionStatus = "failed"
	ImportStatusCancelled    ImportSessionStatus = "cancelled"
)

// IsResumable reports whether a session in this status can be restarted.
func (s ImportSessionStatus) IsResumable() bool {
	return s == ImportStatusPaused || s == ImportStatusFailed
}

// IsTerminal reports whether no recovery action can move the session further.
func (s ImportSessionStatus) IsTerminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusCancelled
}

// ImportSession is the durable progress record of one import run.
type ImportSession struct {
	ID            uint                `gorm:"primaryKey" json:"id"`
	SessionID     string              `gorm:"uniqueIndex;size:36" json:"session_id"`
	UserID        uint                `gorm:"index" json:"user_id"`
	Status        ImportSessionStatus `gorm:"index;size:20;default:'initializing'" json:"status"`
	SourceVersion string              `gorm:"size:8" json:"source_version"`

	TotalRecords       int  `json:"total_records"`
	ProcessedRecords   int  `json:"processed_records"`
	ImportedRecords    int  `json:"imported_records"`
	SkippedRecords     int  `json:"skipped_records"`
	FailedRecords      int  `json:"failed_records"`
	LastChunk          int  `json:"last_chunk"`
	LastProcessedIndex *int `json:"last_processed_index"`
	ChunkSize          int  `json:"chunk_size"`

	// Normalization rules pinned when the session was created.
	CaseSensitive        bool `json:"case_sensitive"`
	RemoveAccents        bool `json:"remove_accents"`
	NormalizationVersion int  `json:"normalization_version"`

	LastError string            `gorm:"type:text" json:"last_error,omitempty"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (ImportSession) TableName() string {
	return "import_sessions"
}

// NextIndex is the first record index that has not been committed yet.
func (s *ImportSession) NextIndex() int {
	if s.LastProcessedIndex == nil {
		return 0
	}
	return *s.LastProcessedIndex + 1
}

// RemainingRecords is the number of records not yet committed.
func (s *ImportSession) RemainingRecords() int {
	remaining := s.TotalRecords - s.ProcessedRecords
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ImportPayload stages the migrated records of a session so that a resumed
// run can continue without the client uploading the bundle again.
type ImportPayload struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	SessionID   string         `gorm:"uniqueIndex;size:36" json:"session_id"`
	Version     string         `gorm:"size:8" json:"version"`
	RecordCount int            `json:"record_count"`
	Records     datatypes.JSON `json:"-"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (ImportPayload) TableName() string {
	return "import_payloads"
}
