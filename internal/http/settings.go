package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// NormalizationSettingsResponse is the client view of a user's rules.
type NormalizationSettingsResponse struct {
	CaseSensitive bool `json:"caseSensitive"`
	RemoveAccents bool `json:"removeAccents"`
	Version       int  `json:"version"`
}

// UpdateNormalizationRequest replaces a user's rules. Both fields are required
// so that a partial body cannot silently reset a rule.
type UpdateNormalizationRequest struct {
	CaseSensitive *bool `json:"caseSensitive" binding:"required"`
	RemoveAccents *bool `json:"removeAccents" binding:"required"`
}

// SettingsController manages per-user tag normalization rules.
type SettingsController struct {
	store NormalizationSettingsStore
	audit AuditLog
}

func NewSettingsController(store NormalizationSettingsStore, audit AuditLog) *SettingsController {
	return &SettingsController{
		store: store,
		audit: audit,
	}
}

// GetNormalization handles GET /api/settings/normalization
func (sc *SettingsController) GetNormalization(c *gin.Context) {
	settings, err := sc.store.GetNormalizationSettings(GetUserID(c))
	if err != nil {
		respondInternalError(c, err, "load normalization settings")
		return
	}
	c.JSON(http.StatusOK, NormalizationSettingsResponse{
		CaseSensitive: settings.CaseSensitive,
		RemoveAccents: settings.RemoveAccents,
		Version:       settings.Version,
	})
}

// UpdateNormalization handles PUT /api/settings/normalization
// Changing a rule bumps the version. Sessions already started keep the rules
// they were created with.
func (sc *SettingsController) UpdateNormalization(c *gin.Context) {
	var req UpdateNormalizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "caseSensitive and removeAccents are required")
		return
	}

	userID := GetUserID(c)
	settings, err := sc.store.SetNormalizationSettings(userID, *req.CaseSensitive, *req.RemoveAccents)
	if err != nil {
		respondInternalError(c, err, "save normalization settings")
		return
	}

	if sc.audit != nil {
		sc.audit.LogSettings(userID, "normalization_update",
			fmt.Sprintf("caseSensitive=%t removeAccents=%t version=%d",
				settings.CaseSensitive, settings.RemoveAccents, settings.Version))
	}

	c.JSON(http.StatusOK, NormalizationSettingsResponse{
		CaseSensitive: settings.CaseSensitive,
		RemoveAccents: settings.RemoveAccents,
		Version:       settings.Version,
	})
}
