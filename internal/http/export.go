package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/tagnotes/internal/exporters"
	"github.com/mrlokans/tagnotes/internal/importers"
)

// ExportController serves a user's records as an import bundle.
type ExportController struct {
	exporter RecordExporter
	users    UserGetter
	audit    AuditLog
}

func NewExportController(exporter RecordExporter, users UserGetter, audit AuditLog) *ExportController {
	return &ExportController{
		exporter: exporter,
		users:    users,
		audit:    audit,
	}
}

// Export handles GET /api/export?version=2.0
// With ?download=true the bundle is sent as an attachment.
func (ec *ExportController) Export(c *gin.Context) {
	version := importers.Version(c.DefaultQuery("version", string(importers.Version2)))
	if !version.Valid() {
		respondError(c, http.StatusBadRequest, importers.CodeUnsupportedVersion,
			fmt.Sprintf("unsupported export version %q", version))
		return
	}

	userID := GetUserID(c)
	bundle, err := ec.exporter.Export(userID, version)
	if ec.audit != nil {
		records := 0
		if bundle != nil {
			records = len(bundle.Records)
		}
		ec.audit.LogExport(userID, string(version), records, err)
	}
	if err != nil {
		respondInternalError(c, err, "export records")
		return
	}

	if c.Query("download") == "true" {
		username := "records"
		if ec.users != nil {
			if user, err := ec.users.GetUserByID(userID); err == nil {
				username = user.Username
			}
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exporters.FileName(username, time.Now())))
	}
	c.JSON(http.StatusOK, bundle)
}
