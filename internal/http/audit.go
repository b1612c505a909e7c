package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/services"
)

type AuditController struct {
	audit    AuditLog
	importer ImportService
}

func NewAuditController(audit AuditLog, importer ImportService) *AuditController {
	return &AuditController{
		audit:    audit,
		importer: importer,
	}
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit?type=import&limit=25&offset=0
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	userID := GetUserID(c)
	limit, offset := parsePagination(c, 25, 100)
	eventType := c.Query("type")

	var events []entities.AuditEvent
	var total int64
	var err error

	if eventType != "" {
		events, total, err = ac.audit.GetEventsByType(entities.AuditEventType(eventType), userID, limit, offset)
	} else {
		events, total, err = ac.audit.GetEvents(userID, limit, offset)
	}
	if err != nil {
		respondInternalError(c, err, "load audit events")
		return
	}

	totalPages := (int(total) + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:       events,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    int64(offset+len(events)) < total,
		TotalPages: totalPages,
	})
}

// SessionHistory returns the audit trail of one import session.
// GET /api/import/sessions/:id/history
func (ac *AuditController) SessionHistory(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := ac.importer.Session(c.Request.Context(), GetUserID(c), sessionID); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			respondFailure(c, http.StatusNotFound, "", services.ErrSessionNotFound)
			return
		}
		respondInternalError(c, err, "load import session")
		return
	}

	events, err := ac.audit.SessionHistory(sessionID)
	if err != nil {
		respondInternalError(c, err, "load session history")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"events":    events,
	})
}
