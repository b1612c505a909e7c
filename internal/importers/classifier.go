package importers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/services"
)

// suggestionPattern maps a lower-case message fragment to a suggestion.
type suggestionPattern struct {
	pattern    string
	suggestion entities.RepairSuggestion
}

var (
	suggestDuplicate = entities.RepairSuggestion{
		Type:        entities.SuggestionDuplicateUpdate,
		Description: "A record with the same tags already exists",
		Action:      "Update the existing record instead of importing it again, or change the content",
	}
	suggestDateFormat = entities.RepairSuggestion{
		Type:        entities.SuggestionDateFormat,
		Description: "Timestamp is not a valid ISO-8601 value",
		Action:      "Use a format such as 2024-01-01T00:00:00Z or 2024-01-01",
	}
	suggestRemoveEmpty = entities.RepairSuggestion{
		Type:        entities.SuggestionRemoveEmpty,
		Description: "Record content is empty or contains only whitespace",
		Action:      "Remove empty records from the bundle",
	}
	suggestSplitBatch = entities.RepairSuggestion{
		Type:        entities.SuggestionSplitBatch,
		Description: "The import is larger than allowed",
		Action:      "Split the bundle into smaller files and import them one by one",
	}
	suggestNormalize = entities.RepairSuggestion{
		Type:        entities.SuggestionNormalizeContent,
		Description: "Record content does not fit the tag normalization rules",
		Action:      "Shorten the content or align the bundle with your normalization settings",
	}
	suggestRetry = entities.RepairSuggestion{
		Type:        entities.SuggestionRetry,
		Description: "A temporary failure interrupted the import",
		Action:      "Resume the session; committed records are not imported twice",
	}
	suggestSupport = entities.RepairSuggestion{
		Type:        entities.SuggestionContactSupport,
		Description: "An unexpected error occurred",
		Action:      "Contact support and quote the session ID",
	}
)

// classifierPatterns are matched case-insensitively with strings.Contains.
// The first match wins, so specific fragments come before general ones.
var classifierPatterns = []suggestionPattern{
	{"unique constraint", suggestDuplicate},
	{"duplicate", suggestDuplicate},
	{"violates unique", suggestDuplicate},

	{"parsing time", suggestDateFormat},
	{"timestamp", suggestDateFormat},
	{"invalid date", suggestDateFormat},

	{"empty content", suggestRemoveEmpty},
	{"content is empty", suggestRemoveEmpty},
	{"whitespace", suggestRemoveEmpty},

	{"too many records", suggestSplitBatch},
	{"too large", suggestSplitBatch},
	{"exceeds the limit", suggestSplitBatch},

	{"normaliz", suggestNormalize},
	{"too long", suggestNormalize},

	{"database is locked", suggestRetry},
	{"busy", suggestRetry},
	{"deadlock", suggestRetry},
	{"connection refused", suggestRetry},
	{"connection reset", suggestRetry},
	{"broken pipe", suggestRetry},
	{"i/o", suggestRetry},
	{"timeout", suggestRetry},
	{"deadline exceeded", suggestRetry},
	{"context canceled", suggestRetry},
	{"temporar", suggestRetry},
	{"interrupted", suggestRetry},
}

// codeSuggestions maps error codes to suggestions.
var codeSuggestions = map[string]entities.RepairSuggestion{
	CodeDuplicateRecord:       suggestDuplicate,
	CodeInvalidDate:           suggestDateFormat,
	CodeEmptyContent:          suggestRemoveEmpty,
	CodeTooManyRecords:        suggestSplitBatch,
	CodeContentTooLong:        suggestNormalize,
	CodeNormalizationMismatch: suggestNormalize,
	CodeChunkFailed:           suggestRetry,
	CodeInterrupted:           suggestRetry,
	CodePaused:                suggestRetry,
}

// Classifier maps failures to repair suggestions. Every input resolves to
// exactly one suggestion; unknown failures resolve to contact_support.
type Classifier struct {
	patterns []suggestionPattern
}

func NewClassifier() *Classifier {
	return &Classifier{patterns: classifierPatterns}
}

// Classify returns the repair suggestion for err.
func (c *Classifier) Classify(err error) entities.RepairSuggestion {
	if err == nil {
		return suggestSupport
	}

	var (
		schemaErr *SchemaValidationError
		limitErr  *LimitExceededError
		recordErr *RecordError
		stateErr  *SessionStateError
	)
	switch {
	case errors.As(err, &schemaErr) && len(schemaErr.Fields) > 0:
		return c.ForField(schemaErr.Fields[0])
	case errors.As(err, &limitErr):
		s := suggestSplitBatch
		s.Action = fmt.Sprintf("Split the bundle into files of at most %d records", limitErr.Limit)
		return s
	case errors.As(err, &recordErr):
		return c.ForCode(recordErr.Code)
	case errors.As(err, &stateErr):
		s := suggestSupport
		s.Description = fmt.Sprintf("Action %q is not allowed while the session is %s", stateErr.Action, stateErr.Status)
		s.Action = "Check the session status before issuing a recovery action"
		return s
	case errors.Is(err, services.ErrSessionNotFound):
		s := suggestSupport
		s.Description = "The import session does not exist or belongs to another user"
		s.Action = "Check the session ID, or list resumable sessions"
		return s
	case errors.Is(err, ErrInvalidAction):
		s := suggestSupport
		s.Description = "The recovery request is incomplete or names an unknown action"
		s.Action = "Send a sessionId and one of resume, retry, cancel or pause"
		return s
	case errors.Is(err, services.ErrDuplicateRecord):
		return suggestDuplicate
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, services.ErrStatusConflict), errors.Is(err, services.ErrStaleAdvance):
		return suggestRetry
	}

	msg := strings.ToLower(err.Error())
	for _, p := range c.patterns {
		if strings.Contains(msg, p.pattern) {
			return p.suggestion
		}
	}
	return suggestSupport
}

// ForCode returns the suggestion for a machine-readable error code.
func (c *Classifier) ForCode(code string) entities.RepairSuggestion {
	if s, ok := codeSuggestions[code]; ok {
		return s
	}
	return suggestSupport
}

// ForField returns the suggestion for one schema violation.
func (c *Classifier) ForField(f FieldError) entities.RepairSuggestion {
	if s, ok := codeSuggestions[f.Code]; ok {
		return s
	}
	if strings.HasSuffix(f.Path, ".content") {
		return suggestRemoveEmpty
	}
	if strings.HasSuffix(f.Path, "At") {
		return suggestDateFormat
	}
	s := suggestSupport
	s.Description = "The bundle does not match a supported schema"
	s.Action = fmt.Sprintf(`Export the bundle again with version %q or %q`, Version1, Version2)
	return s
}
