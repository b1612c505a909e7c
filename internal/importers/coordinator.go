package importers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/logging"
	"github.com/mrlokans/tagnotes/internal/services"
	"github.com/mrlokans/tagnotes/internal/tagging"
	"github.com/mrlokans/tagnotes/internal/utils"
)

// RecoveryAction is what a recovery request asks for.
type RecoveryAction string

const (
	ActionResume RecoveryAction = "resume"
	ActionRetry  RecoveryAction = "retry"
	ActionCancel RecoveryAction = "cancel"
	ActionPause  RecoveryAction = "pause"
)

// RecoveryRequest acts on an existing session. UserID 0 skips the ownership check.
type RecoveryRequest struct {
	Action         RecoveryAction `json:"action" binding:"required"`
	SessionID      string         `json:"sessionId" binding:"required"`
	SkipErrors     bool           `json:"skipErrors,omitempty"`
	StartFromIndex *int           `json:"startFromIndex,omitempty"`
	UserID         uint           `json:"-"`
}

// AuditRecorder receives import lifecycle events.
type AuditRecorder interface {
	LogImport(userID uint, sessionID, description string, imported, skipped, failed int, err error)
	LogRecovery(userID uint, sessionID, action string, err error)
}

// Options bounds the size of an import.
type Options struct {
	ChunkSize  int
	MaxRecords int
}

// Dependencies are the collaborators of a Coordinator. Audit is optional.
type Dependencies struct {
	Records  services.RecordStore
	Sessions services.SessionStore
	Rules    services.NormalizationRulesProvider
	Audit    AuditRecorder
}

// Coordinator drives import runs: validate, migrate, enforce limits, then
// process chunks one after another, folding each into the session.
type Coordinator struct {
	validator  *Validator
	migrator   *Migrator
	classifier *Classifier
	processor  *ChunkProcessor
	tracker    *SessionTracker
	sessions   services.SessionStore
	rules      services.NormalizationRulesProvider
	audit      AuditRecorder
	opts       Options

	// running holds the IDs of sessions with a run in this process.
	running sync.Map
}

func NewCoordinator(deps Dependencies, opts Options) *Coordinator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 500
	}
	classifier := NewClassifier()
	return &Coordinator{
		validator:  NewValidator(),
		migrator:   NewMigrator(),
		classifier: classifier,
		processor:  NewChunkProcessor(deps.Records, classifier),
		tracker:    NewSessionTracker(deps.Sessions),
		sessions:   deps.Sessions,
		rules:      deps.Rules,
		audit:      deps.Audit,
		opts:       opts,
	}
}

// Tracker exposes the session tracker for read access.
func (c *Coordinator) Tracker() *SessionTracker {
	return c.tracker
}

// Import runs a full import of raw for userID. Rejected bundles are never
// persisted. Failures after the session exists return *FailureError.
func (c *Coordinator) Import(ctx context.Context, userID uint, raw []byte) (*ImportResult, error) {
	ctx = logging.WithContext(ctx, logging.WithFields(ctx, zap.Uint("user_id", userID)))

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, c.reject(ctx, userID, &SchemaValidationError{Fields: []FieldError{{
			Code:    CodeInvalidJSON,
			Message: fmt.Sprintf("body is not valid JSON: %v", err),
		}}})
	}

	version, err := c.validator.Validate(payload)
	if err != nil {
		return nil, c.reject(ctx, userID, err)
	}
	records, _ := payload.(map[string]any)["records"].([]any)
	if c.opts.MaxRecords > 0 && len(records) > c.opts.MaxRecords {
		return nil, c.reject(ctx, userID, &LimitExceededError{Limit: c.opts.MaxRecords, Actual: len(records)})
	}
	bundle, err := c.migrator.Migrate(payload)
	if err != nil {
		return nil, c.reject(ctx, userID, err)
	}

	settings, err := c.rules.GetNormalizationSettings(userID)
	if err != nil {
		return nil, fmt.Errorf("load normalization settings: %w", err)
	}
	rules := tagging.RulesFromSettings(settings)

	session, err := c.tracker.Create(ctx, SessionParams{
		UserID:        userID,
		TotalRecords:  len(bundle.Records),
		ChunkSize:     c.opts.ChunkSize,
		SourceVersion: string(version),
		Rules:         rules,
		Metadata:      bundle.Metadata,
	})
	if err != nil {
		return nil, err
	}
	ctx = logging.WithContext(ctx, logging.WithFields(ctx, zap.String("session_id", session.SessionID)))

	staged, err := stagePayload(session.SessionID, bundle)
	if err == nil {
		err = c.sessions.SavePayload(ctx, staged)
	}
	if err != nil {
		// Without staged records the session could never be resumed.
		_ = c.tracker.Cancel(context.WithoutCancel(ctx), session.SessionID)
		return nil, c.failure(ctx, session.SessionID, CodeInternal, fmt.Errorf("stage records: %w", err), nil)
	}

	if err := c.tracker.Start(ctx, session.SessionID); err != nil {
		return nil, err
	}
	if bundle.Rules != nil && !bundle.Rules.Equivalent(rules) {
		warning := entities.ImportErrorEntry{
			RecordIndex: -1,
			ErrorCode:   CodeNormalizationMismatch,
			Message: fmt.Sprintf("bundle was exported with caseSensitive=%t removeAccents=%t, importing with caseSensitive=%t removeAccents=%t",
				bundle.Rules.CaseSensitive, bundle.Rules.RemoveAccents, rules.CaseSensitive, rules.RemoveAccents),
			Severity:   entities.SeverityWarning,
			Suggestion: c.classifier.ForCode(CodeNormalizationMismatch),
		}
		if err := c.tracker.Append(ctx, session.SessionID, []entities.ImportErrorEntry{warning}); err != nil {
			return nil, err
		}
	}

	return c.run(ctx, session, bundle.Records, session.NextIndex(), nil)
}

// Recover applies a recovery action to an existing session.
func (c *Coordinator) Recover(ctx context.Context, req RecoveryRequest) (*ImportResult, error) {
	session, err := c.owned(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithContext(ctx, logging.WithFields(ctx,
		zap.Uint("user_id", session.UserID),
		zap.String("session_id", session.SessionID),
		zap.String("action", string(req.Action))))

	result, err := c.recover(ctx, session, req)
	c.logRecovery(session, req.Action, err)
	return result, err
}

func (c *Coordinator) recover(ctx context.Context, session *entities.ImportSession, req RecoveryRequest) (*ImportResult, error) {
	switch req.Action {
	case ActionCancel:
		if err := c.tracker.Cancel(ctx, session.SessionID); err != nil {
			return nil, err
		}
		if err := c.sessions.DeletePayload(ctx, session.SessionID); err != nil {
			logging.FromContext(ctx).Warn("failed to delete staged records", zap.Error(err))
		}
		return c.summary(ctx, session.SessionID)

	case ActionPause:
		if err := c.tracker.Pause(ctx, session.SessionID); err != nil {
			return nil, err
		}
		return c.summary(ctx, session.SessionID)

	case ActionRetry:
		if session.Status != entities.ImportStatusFailed {
			return nil, &SessionStateError{SessionID: session.SessionID, Status: session.Status, Action: string(req.Action)}
		}
		return c.restart(ctx, session, session.NextIndex(), nil)

	case ActionResume:
		if !session.Status.IsResumable() {
			return nil, &SessionStateError{SessionID: session.SessionID, Status: session.Status, Action: string(req.Action)}
		}
		next := session.NextIndex()
		skip := make(map[int]string)
		if req.StartFromIndex != nil {
			from := *req.StartFromIndex
			if from < next || from > session.TotalRecords {
				return nil, &SessionStateError{
					SessionID: session.SessionID,
					Status:    session.Status,
					Action:    string(req.Action),
					Reason:    fmt.Sprintf("startFromIndex must be between %d and %d, got %d", next, session.TotalRecords, from),
				}
			}
			for i := next; i < from; i++ {
				skip[i] = fmt.Sprintf("skipped: resume requested from record %d", from)
			}
		}
		if req.SkipErrors {
			rows, err := c.tracker.Errors(ctx, session.SessionID)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				if row.ErrorCode == CodeChunkFailed && row.RecordIndex >= next {
					skip[row.RecordIndex] = "skipped on resume after it caused a chunk rollback"
				}
			}
		}
		return c.restart(ctx, session, next, skip)
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
}

// restart reloads the staged records of a session and continues its run.
func (c *Coordinator) restart(ctx context.Context, session *entities.ImportSession, start int, skip map[int]string) (*ImportResult, error) {
	if _, busy := c.running.LoadOrStore(session.SessionID, struct{}{}); busy {
		return nil, &SessionStateError{
			SessionID: session.SessionID,
			Status:    session.Status,
			Action:    "resume",
			Reason:    "its previous run has not finished its current chunk",
		}
	}
	handedOff := false
	defer func() {
		if !handedOff {
			c.running.Delete(session.SessionID)
		}
	}()

	payload, err := c.sessions.LoadPayload(ctx, session.SessionID)
	if errors.Is(err, services.ErrPayloadNotFound) {
		return nil, &SessionStateError{
			SessionID: session.SessionID,
			Status:    session.Status,
			Action:    "resume",
			Reason:    "staged records have expired, import the bundle again",
			Code:      CodePayloadExpired,
		}
	}
	if err != nil {
		return nil, err
	}
	records, err := unstagePayload(payload)
	if err != nil {
		return nil, err
	}
	if len(records) != session.TotalRecords {
		return nil, fmt.Errorf("%w: staged %d records for a session of %d",
			services.ErrInvariantViolation, len(records), session.TotalRecords)
	}

	if err := c.tracker.Start(ctx, session.SessionID); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("resuming import",
		zap.Int("start_index", start),
		zap.Int("skipped_records", len(skip)))
	handedOff = true
	return c.run(ctx, session, records, start, skip)
}

// run processes chunks from start to the end of records. Before each chunk it
// yields the processor and checks for cancellation, pause and the deadline of ctx.
func (c *Coordinator) run(ctx context.Context, session *entities.ImportSession, records []CanonicalRecord, start int, skip map[int]string) (*ImportResult, error) {
	id := session.SessionID
	logger := logging.FromContext(ctx)
	c.running.Store(id, struct{}{})
	defer c.running.Delete(id)

	extractor := tagging.NewExtractor(tagging.RulesFromSession(session))
	it := NewChunkIterator(records, session.ChunkSize, start)

	for {
		chunk, ok := it.Next()
		if !ok {
			break
		}
		runtime.Gosched()

		if err := ctx.Err(); err != nil {
			return nil, c.halt(ctx, id, CodeInterrupted, fmt.Errorf("import interrupted before chunk %d: %w", chunk.Number, err), nil)
		}
		current, err := c.tracker.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case entities.ImportStatusCancelled:
			if err := c.sessions.DeletePayload(ctx, id); err != nil {
				logger.Warn("failed to delete staged records", zap.Error(err))
			}
			return nil, c.failure(ctx, id, CodeCancelled, fmt.Errorf("%w: session %s", ErrImportCancelled, id), nil)
		case entities.ImportStatusPaused:
			return nil, c.failure(ctx, id, CodePaused, fmt.Errorf("%w: session %s", ErrImportPaused, id), nil)
		case entities.ImportStatusFailed:
			return nil, c.failedElsewhere(ctx, current)
		}

		result, err := c.processor.Process(ctx, ChunkJob{
			SessionID: id,
			UserID:    session.UserID,
			Extractor: extractor,
			Chunk:     chunk,
			Skip:      skip,
		})
		if err != nil {
			var fatal *ChunkFatalError
			if !errors.As(err, &fatal) {
				return nil, c.halt(ctx, id, CodeInternal, err, nil)
			}
			code := CodeChunkFailed
			if ctx.Err() != nil {
				code = CodeInterrupted
			}
			failed := records[fatal.Rollback.FailedRecordIndex]
			entry := entities.ImportErrorEntry{
				RecordIndex:     fatal.Rollback.FailedRecordIndex,
				ChunkNumber:     chunk.Number,
				ErrorCode:       code,
				Message:         fatal.Error(),
				ContentSnapshot: utils.Snippet(failed.Content, snapshotLength),
				Severity:        entities.SeverityError,
				Suggestion:      c.classifier.Classify(fatal),
			}
			rollback := fatal.Rollback
			return nil, c.halt(ctx, id, code, fatal, &rollback, entry)
		}

		if _, err := c.tracker.Advance(ctx, id, result); err != nil {
			// The chunk is committed; a resumed run will see its records as duplicates.
			if errors.Is(err, services.ErrStatusConflict) {
				if current, getErr := c.tracker.Get(ctx, id); getErr == nil && current.Status == entities.ImportStatusFailed {
					return nil, c.failedElsewhere(ctx, current)
				}
			}
			return nil, c.halt(ctx, id, CodeInternal, err, nil)
		}
	}

	if err := c.tracker.Complete(ctx, id); err != nil {
		var stateErr *SessionStateError
		if errors.As(err, &stateErr) && stateErr.Status == entities.ImportStatusPaused {
			return nil, c.failure(ctx, id, CodePaused, fmt.Errorf("%w: session %s", ErrImportPaused, id), nil)
		}
		if errors.As(err, &stateErr) && stateErr.Status == entities.ImportStatusCancelled {
			return nil, c.failure(ctx, id, CodeCancelled, fmt.Errorf("%w: session %s", ErrImportCancelled, id), nil)
		}
		return nil, c.halt(ctx, id, CodeInternal, err, nil)
	}
	if err := c.sessions.DeletePayload(ctx, id); err != nil {
		logger.Warn("failed to delete staged records", zap.Error(err))
	}

	result, err := c.summary(ctx, id)
	if err != nil {
		return nil, err
	}
	logger.Info("import completed",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	c.logImport(session.UserID, id, result, nil)
	return result, nil
}

// failedElsewhere stops a run whose session was marked failed by someone
// else, such as the stale session sweeper. The session is left as it is.
func (c *Coordinator) failedElsewhere(ctx context.Context, session *entities.ImportSession) error {
	cause := fmt.Errorf("import interrupted: session %s was marked failed", session.SessionID)
	if session.LastError != "" {
		cause = fmt.Errorf("%w (%s)", cause, session.LastError)
	}
	logging.FromContext(ctx).Warn("import session failed while running", zap.String("reason", session.LastError))
	return c.failure(ctx, session.SessionID, CodeInterrupted, cause, nil)
}

// halt marks the session failed with entries appended to its log and returns
// the failure. It keeps working after ctx is cancelled so that an interrupted
// run still leaves a resumable session behind.
func (c *Coordinator) halt(ctx context.Context, sessionID, code string, cause error, rollback *ChunkRollbackInfo, entries ...entities.ImportErrorEntry) error {
	ctx = context.WithoutCancel(ctx)
	logger := logging.FromContext(ctx)
	if len(entries) == 0 {
		entries = []entities.ImportErrorEntry{{
			RecordIndex: -1,
			ErrorCode:   code,
			Message:     cause.Error(),
			Severity:    entities.SeverityError,
			Suggestion:  c.classifier.Classify(cause),
		}}
	}
	if err := c.tracker.Fail(ctx, sessionID, cause.Error(), entries); err != nil {
		logger.Error("failed to mark import session failed", zap.Error(err))
	}
	logger.Warn("import halted", zap.String("code", code), zap.Error(cause))

	if session, err := c.tracker.Get(ctx, sessionID); err == nil {
		c.logImport(session.UserID, sessionID, &ImportResult{
			Imported: session.ImportedRecords,
			Skipped:  session.SkippedRecords,
			Failed:   session.FailedRecords,
		}, cause)
	}
	return c.failure(ctx, sessionID, code, cause, rollback)
}

// failure assembles the structured response for a persisted session.
func (c *Coordinator) failure(ctx context.Context, sessionID, code string, cause error, rollback *ChunkRollbackInfo) *FailureError {
	ctx = context.WithoutCancel(ctx)
	resp := &FailureResponse{
		SessionID: sessionID,
		Code:      code,
		Rollback:  rollback,
	}

	rows, err := c.tracker.Errors(ctx, sessionID)
	if err != nil {
		logging.FromContext(ctx).Warn("failed to load error log", zap.Error(err))
	}
	if session, err := c.tracker.Get(ctx, sessionID); err == nil {
		resp.CanResume = session.Status.IsResumable()
		if resp.CanResume {
			resp.ResumeInfo = NewResumeInfo(session)
		}
	}
	resp.ErrorSummary = Summarize(rows, cause.Error())
	resp.Errors = NewErrorLogEntries(rows)
	resp.RepairSuggestions = collectSuggestions(rows, c.classifier.Classify(cause))
	return &FailureError{Response: resp, Err: cause}
}

// reject answers a bundle that failed before a session was created.
func (c *Coordinator) reject(ctx context.Context, userID uint, cause error) *FailureError {
	resp := newFailureResponse(cause, c.classifier)
	logging.FromContext(ctx).Info("import rejected",
		zap.String("code", resp.Code),
		zap.Int("violations", len(resp.Errors)))
	c.logImport(userID, "", &ImportResult{}, cause)
	return &FailureError{Response: resp, Err: cause}
}

// NewFailureResponse builds the response for an error that has no session
// log behind it, such as a rejected request or a missing session. The code is
// derived from cause and at least one repair suggestion is always present.
func NewFailureResponse(cause error) *FailureResponse {
	return newFailureResponse(cause, NewClassifier())
}

func newFailureResponse(cause error, classifier *Classifier) *FailureResponse {
	rows := rejectionEntries(cause, classifier)
	return &FailureResponse{
		Code:              ErrorCode(cause),
		ErrorSummary:      Summarize(rows, cause.Error()),
		Errors:            NewErrorLogEntries(rows),
		RepairSuggestions: collectSuggestions(rows, classifier.Classify(cause)),
	}
}

// rejectionEntries turns a rejection into log-shaped entries. They are
// returned to the caller only.
func rejectionEntries(cause error, classifier *Classifier) []entities.ImportErrorEntry {
	var schemaErr *SchemaValidationError
	if !errors.As(cause, &schemaErr) {
		return []entities.ImportErrorEntry{{
			RecordIndex: -1,
			ErrorCode:   ErrorCode(cause),
			Message:     cause.Error(),
			Severity:    entities.SeverityError,
			Suggestion:  classifier.Classify(cause),
		}}
	}
	rows := make([]entities.ImportErrorEntry, 0, len(schemaErr.Fields))
	for _, f := range schemaErr.Fields {
		rows = append(rows, entities.ImportErrorEntry{
			RecordIndex: recordIndexOf(f.Path),
			ErrorCode:   f.Code,
			Message:     f.String(),
			Severity:    entities.SeverityError,
			Suggestion:  classifier.ForField(f),
		})
	}
	return rows
}

// recordIndexOf extracts N from a "records.N..." path, or returns -1.
func recordIndexOf(path string) int {
	rest, ok := strings.CutPrefix(path, "records.")
	if !ok {
		return -1
	}
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		rest = rest[:dot]
	}
	index, err := strconv.Atoi(rest)
	if err != nil {
		return -1
	}
	return index
}

// summary reports the current counters of a session as an ImportResult.
func (c *Coordinator) summary(ctx context.Context, sessionID string) (*ImportResult, error) {
	session, err := c.tracker.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := c.tracker.Errors(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &ImportResult{
		SessionID: session.SessionID,
		Status:    session.Status,
		Imported:  session.ImportedRecords,
		Skipped:   session.SkippedRecords,
		Failed:    session.FailedRecords,
		Errors:    errorMessages(rows),
	}, nil
}

// Session returns the full report of a session. userID 0 skips the ownership check.
func (c *Coordinator) Session(ctx context.Context, userID uint, sessionID string) (*SessionReport, error) {
	session, err := c.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := c.tracker.Errors(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return NewSessionReport(session, rows), nil
}

// Errors returns the error log of a session.
func (c *Coordinator) Errors(ctx context.Context, userID uint, sessionID string) ([]ErrorLogEntry, error) {
	if _, err := c.owned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	rows, err := c.tracker.Errors(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return NewErrorLogEntries(rows), nil
}

// Resumable lists the owner's most recent paused and failed sessions.
func (c *Coordinator) Resumable(ctx context.Context, userID uint, limit int) ([]ResumeInfo, error) {
	return c.tracker.Resumable(ctx, userID, limit)
}

func (c *Coordinator) owned(ctx context.Context, userID uint, sessionID string) (*entities.ImportSession, error) {
	session, err := c.tracker.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if userID != 0 && session.UserID != userID {
		return nil, services.ErrSessionNotFound
	}
	return session, nil
}

func (c *Coordinator) logImport(userID uint, sessionID string, result *ImportResult, err error) {
	if c.audit == nil {
		return
	}
	description := fmt.Sprintf("Imported %d records, skipped %d, failed %d", result.Imported, result.Skipped, result.Failed)
	if sessionID == "" {
		description = "Import rejected"
	}
	c.audit.LogImport(userID, sessionID, description, result.Imported, result.Skipped, result.Failed, err)
}

func (c *Coordinator) logRecovery(session *entities.ImportSession, action RecoveryAction, err error) {
	if c.audit == nil {
		return
	}
	// A run that stops on pause or cancel did what was asked.
	if errors.Is(err, ErrImportPaused) || errors.Is(err, ErrImportCancelled) {
		err = nil
	}
	c.audit.LogRecovery(session.UserID, session.SessionID, string(action), err)
}
