package importers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/logging"
	"github.com/mrlokans/tagnotes/internal/services"
	"github.com/mrlokans/tagnotes/internal/tagging"
)

// defaultResumableLimit caps the resumable session listing.
const defaultResumableLimit = 20

// transitions lists, per target status, the statuses a session may leave
// to reach it. Advancing within in-progress is not a status change.
var transitions = map[entities.ImportSessionStatus][]entities.ImportSessionStatus{
	entities.ImportStatusInProgress: {
		entities.ImportStatusInitializing,
		entities.ImportStatusPaused,
		entities.ImportStatusFailed,
	},
	entities.ImportStatusCompleted: {
		entities.ImportStatusInProgress,
	},
	entities.ImportStatusFailed: {
		entities.ImportStatusInitializing,
		entities.ImportStatusInProgress,
		entities.ImportStatusPaused,
	},
	entities.ImportStatusPaused: {
		entities.ImportStatusInitializing,
		entities.ImportStatusInProgress,
	},
	entities.ImportStatusCancelled: {
		entities.ImportStatusInitializing,
		entities.ImportStatusInProgress,
		entities.ImportStatusPaused,
		entities.ImportStatusFailed,
	},
}

// CanTransition reports whether a session in status from may move to to.
func CanTransition(from, to entities.ImportSessionStatus) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// ResumeInfo tells a caller where a resumed run would restart.
type ResumeInfo struct {
	SessionID          string                       `json:"sessionId"`
	Status             entities.ImportSessionStatus `json:"status,omitempty"`
	LastProcessedIndex *int                         `json:"lastProcessedIndex"`
	RemainingRecords   int                          `json:"remainingRecords"`
	EstimatedTime      string                       `json:"estimatedTime,omitempty"`
	UpdatedAt          time.Time                    `json:"updatedAt"`
}

// NewResumeInfo builds resume information for a session. The estimate
// extrapolates the throughput observed so far and is empty before the first
// committed chunk.
func NewResumeInfo(s *entities.ImportSession) *ResumeInfo {
	info := &ResumeInfo{
		SessionID:          s.SessionID,
		Status:             s.Status,
		LastProcessedIndex: s.LastProcessedIndex,
		RemainingRecords:   s.RemainingRecords(),
		UpdatedAt:          s.UpdatedAt,
	}
	elapsed := s.UpdatedAt.Sub(s.StartedAt)
	if s.ProcessedRecords > 0 && elapsed > 0 && info.RemainingRecords > 0 {
		perRecord := elapsed / time.Duration(s.ProcessedRecords)
		estimate := perRecord * time.Duration(info.RemainingRecords)
		info.EstimatedTime = estimate.Round(time.Second).String()
	}
	return info
}

// SessionTracker is the only writer of import sessions. It validates
// lifecycle transitions before handing them to the store.
type SessionTracker struct {
	store services.SessionStore
}

func NewSessionTracker(store services.SessionStore) *SessionTracker {
	return &SessionTracker{store: store}
}

// SessionParams describes a session to create.
type SessionParams struct {
	UserID        uint
	TotalRecords  int
	ChunkSize     int
	SourceVersion string
	Rules         tagging.Rules
	Metadata      map[string]any
}

// Create persists a new session in status initializing.
func (t *SessionTracker) Create(ctx context.Context, params SessionParams) (*entities.ImportSession, error) {
	session := &entities.ImportSession{
		SessionID:            uuid.NewString(),
		UserID:               params.UserID,
		Status:               entities.ImportStatusInitializing,
		SourceVersion:        params.SourceVersion,
		TotalRecords:         params.TotalRecords,
		ChunkSize:            params.ChunkSize,
		CaseSensitive:        params.Rules.CaseSensitive,
		RemoveAccents:        params.Rules.RemoveAccents,
		NormalizationVersion: params.Rules.Version,
		Metadata:             params.Metadata,
	}
	if err := t.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create import session: %w", err)
	}
	logging.FromContext(ctx).Info("import session created",
		zap.String("session_id", session.SessionID),
		zap.Uint("user_id", session.UserID),
		zap.Int("total_records", session.TotalRecords))
	return session, nil
}

func (t *SessionTracker) Get(ctx context.Context, sessionID string) (*entities.ImportSession, error) {
	return t.store.GetSession(ctx, sessionID)
}

func (t *SessionTracker) Errors(ctx context.Context, sessionID string) ([]entities.ImportErrorEntry, error) {
	return t.store.ListErrors(ctx, sessionID)
}

// Start moves a session to in-progress.
func (t *SessionTracker) Start(ctx context.Context, sessionID string) error {
	return t.transition(ctx, sessionID, "start", entities.ImportStatusInProgress, "")
}

// Advance folds a committed chunk into the session. Re-submitting a chunk
// that was already applied returns the session unchanged.
func (t *SessionTracker) Advance(ctx context.Context, sessionID string, result *ChunkResult) (*entities.ImportSession, error) {
	if result.Processed != result.Imported+result.Skipped+result.Failed {
		return nil, fmt.Errorf("%w: chunk %d outcomes do not add up to %d processed",
			services.ErrInvariantViolation, result.ChunkNumber, result.Processed)
	}
	session, err := t.store.AdvanceSession(ctx, sessionID, result.Advance())
	if err != nil {
		return nil, fmt.Errorf("advance session %s past chunk %d: %w", sessionID, result.ChunkNumber, err)
	}
	return session, nil
}

// Append adds entries to the session's error log.
func (t *SessionTracker) Append(ctx context.Context, sessionID string, entries []entities.ImportErrorEntry) error {
	return t.store.AppendErrors(ctx, sessionID, entries)
}

// Fail appends entries and marks the session failed. LastProcessedIndex is
// left at the last committed chunk.
func (t *SessionTracker) Fail(ctx context.Context, sessionID, reason string, entries []entities.ImportErrorEntry) error {
	if err := t.store.AppendErrors(ctx, sessionID, entries); err != nil {
		return fmt.Errorf("append failure entries: %w", err)
	}
	return t.transition(ctx, sessionID, "fail", entities.ImportStatusFailed, reason)
}

// Complete marks the session completed. The store refuses unless every
// record has been processed.
func (t *SessionTracker) Complete(ctx context.Context, sessionID string) error {
	return t.transition(ctx, sessionID, "complete", entities.ImportStatusCompleted, "")
}

// Pause asks a running session to stop before its next chunk.
func (t *SessionTracker) Pause(ctx context.Context, sessionID string) error {
	return t.transition(ctx, sessionID, "pause", entities.ImportStatusPaused, "")
}

// Cancel stops a session for good.
func (t *SessionTracker) Cancel(ctx context.Context, sessionID string) error {
	return t.transition(ctx, sessionID, "cancel", entities.ImportStatusCancelled, "")
}

// Resumable returns the owner's most recent paused and failed sessions.
func (t *SessionTracker) Resumable(ctx context.Context, userID uint, limit int) ([]ResumeInfo, error) {
	if limit <= 0 {
		limit = defaultResumableLimit
	}
	sessions, err := t.store.ListResumable(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list resumable sessions: %w", err)
	}
	infos := make([]ResumeInfo, 0, len(sessions))
	for i := range sessions {
		infos = append(infos, *NewResumeInfo(&sessions[i]))
	}
	return infos, nil
}

func (t *SessionTracker) transition(ctx context.Context, sessionID, action string, to entities.ImportSessionStatus, reason string) error {
	err := t.store.TransitionStatus(ctx, sessionID, transitions[to], to, reason)
	if err == nil {
		logging.FromContext(ctx).Debug("import session status changed",
			zap.String("session_id", sessionID),
			zap.String("status", string(to)))
		return nil
	}
	if !errors.Is(err, services.ErrStatusConflict) {
		return err
	}

	session, getErr := t.store.GetSession(ctx, sessionID)
	if getErr != nil {
		return getErr
	}
	stateErr := &SessionStateError{SessionID: sessionID, Status: session.Status, Action: action}
	if to == entities.ImportStatusCompleted && session.Status == entities.ImportStatusInProgress {
		stateErr.Reason = fmt.Sprintf("%d of %d records processed", session.ProcessedRecords, session.TotalRecords)
	}
	return stateErr
}
