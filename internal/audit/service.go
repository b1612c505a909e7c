package audit

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mrlokans/tagnotes/internal/database/audit"
	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/utils"
)

const (
	entityImportSession = "import_session"
	maxMessageLength    = 500
)

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *audit.Repository
	logger  *zap.Logger
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger.Named("audit")}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.LogEvent(event); err != nil {
			s.logger.Warn("failed to log audit event",
				zap.String("event_type", string(event.EventType)),
				zap.String("action", event.Action),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every background write has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// LogImport records the outcome of an import run. An empty sessionID marks a
// bundle rejected before a session was created.
func (s *Service) LogImport(userID uint, sessionID, description string, imported, skipped, failed int, err error) {
	action := "bulk_import"
	if sessionID == "" {
		action = "bulk_import_rejected"
	}
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventImport,
		Action:      action,
		Description: utils.Snippet(description, maxMessageLength),
		EntityType:  entityImportSession,
		EntityID:    sessionID,
		Metadata: encodeMetadata(map[string]any{
			"imported": imported,
			"skipped":  skipped,
			"failed":   failed,
		}),
		Status: entities.AuditStatusSuccess,
	}
	markFailed(event, err)
	s.LogAsync(event)
}

// LogRecovery records a recovery action on a session.
func (s *Service) LogRecovery(userID uint, sessionID, action string, err error) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventRecovery,
		Action:      "session_" + action,
		Description: "Recovery action " + action,
		EntityType:  entityImportSession,
		EntityID:    sessionID,
		Status:      entities.AuditStatusSuccess,
	}
	markFailed(event, err)
	s.LogAsync(event)
}

// LogExport records an export event.
func (s *Service) LogExport(userID uint, version string, records int, err error) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventExport,
		Action:      "bundle_export",
		Description: "Exported records as version " + version,
		Metadata:    encodeMetadata(map[string]any{"version": version, "records": records}),
		Status:      entities.AuditStatusSuccess,
	}
	markFailed(event, err)
	s.LogAsync(event)
}

// LogSettings records a settings change event.
func (s *Service) LogSettings(userID uint, action, description string) {
	event := &entities.AuditEvent{
		UserID:      userID,
		EventType:   entities.AuditEventSettings,
		Action:      action,
		Description: utils.Snippet(description, maxMessageLength),
		Status:      entities.AuditStatusSuccess,
	}
	s.LogAsync(event)
}

// LogCleanup records a maintenance sweep.
func (s *Service) LogCleanup(action string, removed int64, err error) {
	event := &entities.AuditEvent{
		EventType: entities.AuditEventCleanup,
		Action:    action,
		Metadata:  encodeMetadata(map[string]any{"removed": removed}),
		Status:    entities.AuditStatusSuccess,
	}
	markFailed(event, err)
	s.LogAsync(event)
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(userID uint, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(userID, limit, offset)
}

// GetEventsByType retrieves audit events filtered by type.
func (s *Service) GetEventsByType(eventType entities.AuditEventType, userID uint, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEventsByType(eventType, userID, limit, offset)
}

// SessionHistory returns the events recorded for an import session.
func (s *Service) SessionHistory(sessionID string) ([]entities.AuditEvent, error) {
	return s.repo.GetEventsForEntity(entityImportSession, sessionID)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(cutoff)
}

func markFailed(event *entities.AuditEvent, err error) {
	if err == nil {
		return
	}
	event.Status = entities.AuditStatusFailed
	event.ErrorMsg = utils.Snippet(err.Error(), maxMessageLength)
}

func encodeMetadata(metadata map[string]any) string {
	data, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(data)
}
