package entities

import "time"

type ErrorSeverity string

const (
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
	SeverityInfo    ErrorSeverity = "info"
)

type RepairSuggestionType string

const (
	SuggestionDuplicateUpdate  RepairSuggestionType = "duplicate_update"
	SuggestionDateFormat       RepairSuggestionType = "date_format"
	SuggestionRemoveEmpty      RepairSuggestionType = "remove_empty"
	SuggestionSplitBatch       RepairSuggestionType = "split_batch"
	SuggestionNormalizeContent RepairSuggestionType = "normalize_content"
	SuggestionRetry            RepairSuggestionType = "retry"
	SuggestionContactSupport   RepairSuggestionType = "contact_support"
)

// RepairSuggestion tells the caller how an error can be fixed.
type RepairSuggestion struct {
	Type        RepairSuggestionType `gorm:"size:30" json:"type"`
	Description string               `gorm:"type:text" json:"description"`
	Action      string               `gorm:"type:text" json:"action,omitempty"`
}

// IsZero reports whether no suggestion was attached.
func (s RepairSuggestion) IsZero() bool {
	return s.Type == ""
}

// ImportErrorEntry is one row of a session's append-only error log.
// Rows are ordered by Seq within a session and are never updated.
type ImportErrorEntry struct {
	ID              uint             `gorm:"primaryKey" json:"-"`
	SessionID       string           `gorm:"size:36;not null;uniqueIndex:idx_import_errors_session_seq,priority:1" json:"-"`
	Seq             int              `gorm:"not null;uniqueIndex:idx_import_errors_session_seq,priority:2" json:"-"`
	RecordIndex     int              `json:"recordIndex"`
	ChunkNumber     int              `json:"chunk"`
	ErrorCode       string           `gorm:"size:50;index" json:"errorCode"`
	Message         string           `gorm:"type:text" json:"message"`
	ContentSnapshot string           `gorm:"type:text" json:"content,omitempty"`
	Severity        ErrorSeverity    `gorm:"size:10" json:"severity"`
	Suggestion      RepairSuggestion `gorm:"embedded;embeddedPrefix:suggestion_" json:"suggestion"`
	Timestamp       time.Time        `json:"timestamp"`
}

func (ImportErrorEntry) TableName() string {
	return "import_error_entries"
}
