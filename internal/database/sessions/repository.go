// Package sessions provides database operations for import session tracking.
//
// Sessions are mutated only through conditional updates: status changes are a
// compare-and-set on the current status, and chunk advances are applied only
// when they continue from the last committed record index. Error log rows are
// append-only and ordered by a per-session sequence number.
//
// # Interface Implementation
//
//	var _ services.SessionStore = (*Repository)(nil)
//	var _ services.SessionSweeper = (*Repository)(nil)
//
// # Usage
//
//	repo := sessions.NewRepository(db)
//	err := repo.CreateSession(ctx, &entities.ImportSession{SessionID: id, UserID: 1})
//	session, err := repo.AdvanceSession(ctx, id, services.ChunkAdvance{...})
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/services"
)

// errorBatchSize keeps multi-row inserts under SQLite's bound variable limit.
const errorBatchSize = 200

var (
	_ services.SessionStore   = (*Repository)(nil)
	_ services.SessionSweeper = (*Repository)(nil)
)

// Repository handles all import session database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new sessions repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateSession inserts a new session.
func (r *Repository) CreateSession(ctx context.Context, session *entities.ImportSession) error {
	now := time.Now()
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = entities.ImportStatusInitializing
	}
	if err := checkCounters(session); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(session).Error
}

// GetSession retrieves a session by its public ID.
func (r *Repository) GetSession(ctx context.Context, sessionID string) (*entities.ImportSession, error) {
	return getSession(r.db.WithContext(ctx), sessionID)
}

func getSession(db *gorm.DB, sessionID string) (*entities.ImportSession, error) {
	var session entities.ImportSession
	err := db.Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, services.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// TransitionStatus moves a session to status `to` if its current status is one
// of `from`. Completing a session additionally requires every record to be
// processed. Terminal statuses stamp CompletedAt.
func (r *Repository) TransitionStatus(ctx context.Context, sessionID string, from []entities.ImportSessionStatus, to entities.ImportSessionStatus, lastError string) error {
	now := time.Now()
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	switch to {
	case entities.ImportStatusCompleted, entities.ImportStatusCancelled, entities.ImportStatusFailed:
		updates["completed_at"] = now
	case entities.ImportStatusInProgress:
		updates["completed_at"] = nil
	}

	query := r.db.WithContext(ctx).Model(&entities.ImportSession{}).
		Where("session_id = ? AND status IN ?", sessionID, from)
	if to == entities.ImportStatusCompleted {
		query = query.Where("processed_records = total_records")
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetSession(ctx, sessionID); err != nil {
			return err
		}
		return services.ErrStatusConflict
	}
	return nil
}

// AdvanceSession folds a committed chunk into the session counters, appends
// its error entries and moves LastProcessedIndex to the chunk's end index.
// A chunk that ends at or before the current LastProcessedIndex has already
// been applied and is ignored.
func (r *Repository) AdvanceSession(ctx context.Context, sessionID string, adv services.ChunkAdvance) (*entities.ImportSession, error) {
	var updated *entities.ImportSession

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := getSession(tx, sessionID)
		if err != nil {
			return err
		}

		if session.LastProcessedIndex != nil && adv.EndIndex <= *session.LastProcessedIndex {
			updated = session
			return nil
		}
		// A pause or cancel issued while the chunk was running does not undo
		// the chunk's commit. A failed session keeps its last committed index,
		// so a resumed run sees the chunk's records as duplicates.
		switch session.Status {
		case entities.ImportStatusInitializing, entities.ImportStatusCompleted, entities.ImportStatusFailed:
			return fmt.Errorf("%w: session is %s", services.ErrStatusConflict, session.Status)
		}
		if adv.StartIndex != session.NextIndex() {
			return fmt.Errorf("%w: chunk starts at %d, expected %d",
				services.ErrStaleAdvance, adv.StartIndex, session.NextIndex())
		}
		if adv.Processed != adv.EndIndex-adv.StartIndex+1 {
			return fmt.Errorf("%w: chunk %d covers %d records but reports %d processed",
				services.ErrInvariantViolation, adv.ChunkNumber, adv.EndIndex-adv.StartIndex+1, adv.Processed)
		}

		next := *session
		next.ProcessedRecords += adv.Processed
		next.ImportedRecords += adv.Imported
		next.SkippedRecords += adv.Skipped
		next.FailedRecords += adv.Failed
		if err := checkCounters(&next); err != nil {
			return err
		}

		endIndex := adv.EndIndex
		now := time.Now()
		result := tx.Model(&entities.ImportSession{}).
			Where("session_id = ? AND processed_records = ?", sessionID, session.ProcessedRecords).
			Updates(map[string]any{
				"processed_records":    next.ProcessedRecords,
				"imported_records":     next.ImportedRecords,
				"skipped_records":      next.SkippedRecords,
				"failed_records":       next.FailedRecords,
				"last_processed_index": endIndex,
				"last_chunk":           adv.ChunkNumber,
				"updated_at":           now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return services.ErrStatusConflict
		}

		if err := appendErrors(tx, sessionID, adv.Entries); err != nil {
			return err
		}

		next.LastProcessedIndex = &endIndex
		next.LastChunk = adv.ChunkNumber
		next.UpdatedAt = now
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AppendErrors adds entries to the end of the session's error log.
func (r *Repository) AppendErrors(ctx context.Context, sessionID string, entries []entities.ImportErrorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return appendErrors(tx, sessionID, entries)
	})
}

func appendErrors(tx *gorm.DB, sessionID string, entries []entities.ImportErrorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var maxSeq int
	err := tx.Model(&entities.ImportErrorEntry{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return fmt.Errorf("read error log position: %w", err)
	}

	rows := make([]entities.ImportErrorEntry, len(entries))
	for i, entry := range entries {
		entry.ID = 0
		entry.SessionID = sessionID
		entry.Seq = maxSeq + i + 1
		if entry.Timestamp.IsZero() {
			entry.Timestamp = time.Now()
		}
		rows[i] = entry
	}
	if err := tx.CreateInBatches(&rows, errorBatchSize).Error; err != nil {
		return fmt.Errorf("append error log: %w", err)
	}
	return nil
}

// ListErrors returns the session's error log in append order.
func (r *Repository) ListErrors(ctx context.Context, sessionID string) ([]entities.ImportErrorEntry, error) {
	var entries []entities.ImportErrorEntry
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&entries).Error
	return entries, err
}

// ListResumable returns the user's paused and failed sessions, most recent first.
func (r *Repository) ListResumable(ctx context.Context, userID uint, limit int) ([]entities.ImportSession, error) {
	if limit <= 0 {
		limit = 20
	}
	var sessions []entities.ImportSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID,
			[]entities.ImportSessionStatus{entities.ImportStatusPaused, entities.ImportStatusFailed}).
		Order("updated_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// SavePayload stores or replaces the staged records of a session.
func (r *Repository) SavePayload(ctx context.Context, payload *entities.ImportPayload) error {
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "record_count", "records", "created_at"}),
	}).Create(payload).Error
}

// LoadPayload returns the staged records of a session.
func (r *Repository) LoadPayload(ctx context.Context, sessionID string) (*entities.ImportPayload, error) {
	var payload entities.ImportPayload
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&payload).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, services.ErrPayloadNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

// DeletePayload removes the staged records of a session.
func (r *Repository) DeletePayload(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&entities.ImportPayload{}).Error
}

// FailStaleSessions marks in-progress and initializing sessions that have not
// been updated since idleSince as failed. LastProcessedIndex is preserved, so
// the sessions stay resumable.
func (r *Repository) FailStaleSessions(ctx context.Context, idleSince time.Time) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&entities.ImportSession{}).
		Where("status IN ? AND updated_at < ?",
			[]entities.ImportSessionStatus{entities.ImportStatusInProgress, entities.ImportStatusInitializing}, idleSince).
		Updates(map[string]any{
			"status":       entities.ImportStatusFailed,
			"last_error":   "import was interrupted",
			"updated_at":   now,
			"completed_at": now,
		})
	return result.RowsAffected, result.Error
}

// PurgePayloads deletes staged payloads of finished sessions, and of any
// session whose payload is older than olderThan.
func (r *Repository) PurgePayloads(ctx context.Context, olderThan time.Time) (int64, error) {
	finished := r.db.Model(&entities.ImportSession{}).
		Select("session_id").
		Where("status IN ?", []entities.ImportSessionStatus{entities.ImportStatusCompleted, entities.ImportStatusCancelled})

	result := r.db.WithContext(ctx).
		Where("session_id IN (?) OR created_at < ?", finished, olderThan).
		Delete(&entities.ImportPayload{})
	return result.RowsAffected, result.Error
}

// checkCounters enforces processed <= total and imported + failed <= processed.
func checkCounters(s *entities.ImportSession) error {
	if s.ProcessedRecords < 0 || s.ImportedRecords < 0 || s.FailedRecords < 0 || s.SkippedRecords < 0 {
		return fmt.Errorf("%w: negative counter", services.ErrInvariantViolation)
	}
	if s.ProcessedRecords > s.TotalRecords {
		return fmt.Errorf("%w: processed %d > total %d",
			services.ErrInvariantViolation, s.ProcessedRecords, s.TotalRecords)
	}
	if s.ImportedRecords+s.FailedRecords > s.ProcessedRecords {
		return fmt.Errorf("%w: imported %d + failed %d > processed %d",
			services.ErrInvariantViolation, s.ImportedRecords, s.FailedRecords, s.ProcessedRecords)
	}
	return nil
}
