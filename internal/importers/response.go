package importers

import (
	"fmt"
	"time"

	"github.com/mrlokans/tagnotes/internal/entities"
)

// ImportResult is returned when a run reaches the end of its records, or
// when a recovery action finishes without running.
type ImportResult struct {
	SessionID string                       `json:"sessionId"`
	Status    entities.ImportSessionStatus `json:"status"`
	Imported  int                          `json:"imported"`
	Skipped   int                          `json:"skipped"`
	Failed    int                          `json:"failed"`
	Errors    []string                     `json:"errors"`
}

// ErrorSummary aggregates an error log.
type ErrorSummary struct {
	Message          string         `json:"message"`
	TotalErrors      int            `json:"totalErrors"`
	ErrorsByType     map[string]int `json:"errorsByType"`
	ErrorsBySeverity map[string]int `json:"errorsBySeverity"`
}

// ErrorLogEntry is the client view of one error log row.
type ErrorLogEntry struct {
	RecordIndex int                        `json:"recordIndex"`
	ChunkNumber int                        `json:"chunk,omitempty"`
	ErrorCode   string                     `json:"errorCode"`
	Message     string                     `json:"message"`
	Content     string                     `json:"content,omitempty"`
	Severity    entities.ErrorSeverity     `json:"severity"`
	Suggestion  *entities.RepairSuggestion `json:"suggestion,omitempty"`
	Timestamp   time.Time                  `json:"timestamp"`
}

// FailureResponse describes a failed, rejected or stopped run.
type FailureResponse struct {
	Success           bool                        `json:"success"`
	SessionID         string                      `json:"sessionId,omitempty"`
	Code              string                      `json:"code"`
	CanResume         bool                        `json:"canResume"`
	ErrorSummary      ErrorSummary                `json:"errorSummary"`
	Errors            []ErrorLogEntry             `json:"errors"`
	RepairSuggestions []entities.RepairSuggestion `json:"repairSuggestions"`
	ResumeInfo        *ResumeInfo                 `json:"resumeInfo,omitempty"`
	Rollback          *ChunkRollbackInfo          `json:"rollback,omitempty"`
}

// SessionReport is the full state of a session with its error log.
type SessionReport struct {
	SessionID            string                       `json:"sessionId"`
	Status               entities.ImportSessionStatus `json:"status"`
	SourceVersion        string                       `json:"sourceVersion"`
	TotalRecords         int                          `json:"totalRecords"`
	ProcessedRecords     int                          `json:"processedRecords"`
	ImportedRecords      int                          `json:"importedRecords"`
	SkippedRecords       int                          `json:"skippedRecords"`
	FailedRecords        int                          `json:"failedRecords"`
	LastProcessedIndex   *int                         `json:"lastProcessedIndex"`
	ChunkSize            int                          `json:"chunkSize"`
	CaseSensitive        bool                         `json:"caseSensitive"`
	RemoveAccents        bool                         `json:"removeAccents"`
	NormalizationVersion int                          `json:"normalizationVersion"`
	LastError            string                       `json:"lastError,omitempty"`
	StartedAt            time.Time                    `json:"startedAt"`
	UpdatedAt            time.Time                    `json:"updatedAt"`
	CompletedAt          *time.Time                   `json:"completedAt,omitempty"`
	CanResume            bool                         `json:"canResume"`
	ResumeInfo           *ResumeInfo                  `json:"resumeInfo,omitempty"`
	ErrorSummary         ErrorSummary                 `json:"errorSummary"`
	Errors               []ErrorLogEntry              `json:"errors"`
}

// NewErrorLogEntries converts stored rows to their client view.
func NewErrorLogEntries(rows []entities.ImportErrorEntry) []ErrorLogEntry {
	entries := make([]ErrorLogEntry, 0, len(rows))
	for _, row := range rows {
		entry := ErrorLogEntry{
			RecordIndex: row.RecordIndex,
			ChunkNumber: row.ChunkNumber,
			ErrorCode:   row.ErrorCode,
			Message:     row.Message,
			Content:     row.ContentSnapshot,
			Severity:    row.Severity,
			Timestamp:   row.Timestamp,
		}
		if !row.Suggestion.IsZero() {
			suggestion := row.Suggestion
			entry.Suggestion = &suggestion
		}
		entries = append(entries, entry)
	}
	return entries
}

// Summarize counts entries by code and severity.
func Summarize(rows []entities.ImportErrorEntry, headline string) ErrorSummary {
	summary := ErrorSummary{
		Message:          headline,
		TotalErrors:      len(rows),
		ErrorsByType:     make(map[string]int),
		ErrorsBySeverity: make(map[string]int),
	}
	for _, row := range rows {
		summary.ErrorsByType[row.ErrorCode]++
		summary.ErrorsBySeverity[string(row.Severity)]++
	}
	return summary
}

// collectSuggestions returns one suggestion per type in order of first
// appearance, falling back to fallback when the log carries none.
func collectSuggestions(rows []entities.ImportErrorEntry, fallback entities.RepairSuggestion) []entities.RepairSuggestion {
	seen := make(map[entities.RepairSuggestionType]bool)
	var suggestions []entities.RepairSuggestion
	add := func(s entities.RepairSuggestion) {
		if s.IsZero() || seen[s.Type] {
			return
		}
		seen[s.Type] = true
		suggestions = append(suggestions, s)
	}
	add(fallback)
	for _, row := range rows {
		add(row.Suggestion)
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions, suggestSupport)
	}
	return suggestions
}

// errorMessages renders error and warning entries as short strings.
func errorMessages(rows []entities.ImportErrorEntry) []string {
	messages := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Severity == entities.SeverityInfo {
			continue
		}
		if row.RecordIndex < 0 {
			messages = append(messages, row.Message)
			continue
		}
		messages = append(messages, fmt.Sprintf("record %d: %s", row.RecordIndex, row.Message))
	}
	return messages
}

// NewSessionReport assembles the report of a session.
func NewSessionReport(s *entities.ImportSession, rows []entities.ImportErrorEntry) *SessionReport {
	report := &SessionReport{
		SessionID:            s.SessionID,
		Status:               s.Status,
		SourceVersion:        s.SourceVersion,
		TotalRecords:         s.TotalRecords,
		ProcessedRecords:     s.ProcessedRecords,
		ImportedRecords:      s.ImportedRecords,
		SkippedRecords:       s.SkippedRecords,
		FailedRecords:        s.FailedRecords,
		LastProcessedIndex:   s.LastProcessedIndex,
		ChunkSize:            s.ChunkSize,
		CaseSensitive:        s.CaseSensitive,
		RemoveAccents:        s.RemoveAccents,
		NormalizationVersion: s.NormalizationVersion,
		LastError:            s.LastError,
		StartedAt:            s.StartedAt,
		UpdatedAt:            s.UpdatedAt,
		CompletedAt:          s.CompletedAt,
		CanResume:            s.Status.IsResumable(),
		ErrorSummary:         Summarize(rows, s.LastError),
		Errors:               NewErrorLogEntries(rows),
	}
	if report.CanResume {
		report.ResumeInfo = NewResumeInfo(s)
	}
	return report
}
