package importers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/services"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name string
		err  error
		want entities.RepairSuggestionType
	}{
		{"duplicate sentinel", fmt.Errorf("insert: %w", services.ErrDuplicateRecord), entities.SuggestionDuplicateUpdate},
		{"unique constraint message", errors.New("UNIQUE constraint failed: records.user_id, records.dedup_key"), entities.SuggestionDuplicateUpdate},
		{"timestamp parse", errors.New(`parsing time "x" as "2006-01-02"`), entities.SuggestionDateFormat},
		{"schema date field", &SchemaValidationError{Fields: []FieldError{{Path: "records.3.createdAt", Code: CodeInvalidDate}}}, entities.SuggestionDateFormat},
		{"schema empty content", &SchemaValidationError{Fields: []FieldError{{Path: "records.0.content", Code: CodeEmptyContent}}}, entities.SuggestionRemoveEmpty},
		{"schema missing content", &SchemaValidationError{Fields: []FieldError{{Path: "records.0.content", Code: CodeMissingField}}}, entities.SuggestionRemoveEmpty},
		{"schema bad version", &SchemaValidationError{Fields: []FieldError{{Path: "version", Code: CodeUnsupportedVersion}}}, entities.SuggestionContactSupport},
		{"record whitespace", &RecordError{Index: 1, Code: CodeEmptyContent, Reason: "content is empty"}, entities.SuggestionRemoveEmpty},
		{"limit", &LimitExceededError{Limit: 10, Actual: 11}, entities.SuggestionSplitBatch},
		{"too long", &RecordError{Code: CodeContentTooLong}, entities.SuggestionNormalizeContent},
		{"normalization message", errors.New("tag normalization mismatch"), entities.SuggestionNormalizeContent},
		{"locked database", errors.New("database is locked"), entities.SuggestionRetry},
		{"io error", errDiskIO, entities.SuggestionRetry},
		{"chunk fatal wraps io", &ChunkFatalError{Err: errDiskIO}, entities.SuggestionRetry},
		{"deadline", fmt.Errorf("chunk: %w", context.DeadlineExceeded), entities.SuggestionRetry},
		{"status conflict", services.ErrStatusConflict, entities.SuggestionRetry},
		{"session state", &SessionStateError{SessionID: "s", Status: entities.ImportStatusCompleted, Action: "resume"}, entities.SuggestionContactSupport},
		{"missing session", fmt.Errorf("load: %w", services.ErrSessionNotFound), entities.SuggestionContactSupport},
		{"invalid action", fmt.Errorf("%w: %q", ErrInvalidAction, "rewind"), entities.SuggestionContactSupport},
		{"body too large", errors.New("request body too large"), entities.SuggestionSplitBatch},
		{"unknown", errors.New("something odd"), entities.SuggestionContactSupport},
		{"nil", nil, entities.SuggestionContactSupport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.err)
			assert.Equal(t, tt.want, got.Type)
			assert.NotEmpty(t, got.Description)
			assert.NotEmpty(t, got.Action)
		})
	}
}

func TestClassify_LimitMentionsLimit(t *testing.T) {
	got := NewClassifier().Classify(&LimitExceededError{Limit: 50000, Actual: 50001})
	assert.Contains(t, got.Action, "50000")
}

func TestForCode_IsTotal(t *testing.T) {
	c := NewClassifier()
	codes := []string{
		CodeInvalidJSON, CodeSchemaValidation, CodeUnsupportedVersion, CodeMissingField,
		CodeInvalidType, CodeInvalidDate, CodeTooManyRecords, CodeEmptyContent,
		CodeContentTooLong, CodeDuplicateRecord, CodeNormalizationMismatch, CodeChunkFailed,
		CodeInterrupted, CodeSkippedOnResume, CodeSessionState, CodeSessionNotFound,
		CodeInvalidAction, CodePayloadExpired, CodeCancelled, CodePaused, CodeInternal, "NOT_A_CODE",
	}
	for _, code := range codes {
		s := c.ForCode(code)
		assert.False(t, s.IsZero(), code)
	}
	assert.Equal(t, entities.SuggestionDuplicateUpdate, c.ForCode(CodeDuplicateRecord).Type)
	assert.Equal(t, entities.SuggestionContactSupport, c.ForCode("NOT_A_CODE").Type)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeTooManyRecords, ErrorCode(&LimitExceededError{}))
	assert.Equal(t, CodeChunkFailed, ErrorCode(&FailureError{Err: &ChunkFatalError{Err: errDiskIO}}))
	assert.Equal(t, CodeCancelled, ErrorCode(fmt.Errorf("%w: s", ErrImportCancelled)))
	assert.Equal(t, CodeSessionState, ErrorCode(&SessionStateError{}))
	assert.Equal(t, CodeSessionNotFound, ErrorCode(fmt.Errorf("load: %w", services.ErrSessionNotFound)))
	assert.Equal(t, CodeInternal, ErrorCode(errors.New("boom")))
}

func TestNewFailureResponse(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantType entities.RepairSuggestionType
	}{
		{"session state", &SessionStateError{SessionID: "s", Status: entities.ImportStatusCompleted, Action: "resume"}, CodeSessionState, entities.SuggestionContactSupport},
		{"missing session", services.ErrSessionNotFound, CodeSessionNotFound, entities.SuggestionContactSupport},
		{"invalid action", ErrInvalidAction, CodeInvalidAction, entities.SuggestionContactSupport},
		{"limit", &LimitExceededError{Limit: 10, Actual: 11}, CodeTooManyRecords, entities.SuggestionSplitBatch},
		{"unknown", errors.New("settings table missing"), CodeInternal, entities.SuggestionContactSupport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewFailureResponse(tt.err)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Code)
			if assert.NotEmpty(t, resp.RepairSuggestions) {
				assert.Equal(t, tt.wantType, resp.RepairSuggestions[0].Type)
			}
			assert.Equal(t, 1, resp.ErrorSummary.TotalErrors)
			assert.Equal(t, tt.err.Error(), resp.ErrorSummary.Message)
		})
	}
}
