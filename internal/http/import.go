package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/importers"
	"github.com/mrlokans/tagnotes/internal/logging"
	"github.com/mrlokans/tagnotes/internal/services"
	"github.com/mrlokans/tagnotes/internal/tasks"
)

const codeRequestTooLarge = "REQUEST_TOO_LARGE"

// ImportController exposes bulk import, recovery and session inspection.
type ImportController struct {
	importer     ImportService
	tasks        TaskQueue
	maxBodyBytes int64
}

func NewImportController(importer ImportService, queue TaskQueue, maxBodyBytes int64) *ImportController {
	return &ImportController{
		importer:     importer,
		tasks:        queue,
		maxBodyBytes: maxBodyBytes,
	}
}

// Import handles POST /api/import
// The body is a record bundle. The response is the import result, or a
// failure response with resume information.
func (ic *ImportController) Import(c *gin.Context) {
	body := c.Request.Body
	if ic.maxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, ic.maxBodyBytes)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondFailure(c, http.StatusRequestEntityTooLarge, codeRequestTooLarge,
				fmt.Errorf("request body too large: limit is %d bytes", tooLarge.Limit))
			return
		}
		respondFailure(c, http.StatusBadRequest, importers.CodeInvalidJSON,
			fmt.Errorf("failed to read request body: %w", err))
		return
	}

	result, err := ic.importer.Import(c.Request.Context(), GetUserID(c), raw)
	if err != nil {
		ic.respondImportError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Recover handles POST /api/import/recovery
// With ?async=true, resume and retry run in the task queue and 202 is returned.
func (ic *ImportController) Recover(c *gin.Context) {
	var req importers.RecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFailure(c, http.StatusBadRequest, "", fmt.Errorf("%w: %v", importers.ErrInvalidAction, err))
		return
	}
	req.UserID = GetUserID(c)

	if c.Query("async") == "true" && (req.Action == importers.ActionResume || req.Action == importers.ActionRetry) {
		ic.enqueueRecovery(c, req)
		return
	}

	result, err := ic.importer.Recover(c.Request.Context(), req)
	if err != nil {
		ic.respondImportError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (ic *ImportController) enqueueRecovery(c *gin.Context, req importers.RecoveryRequest) {
	if ic.tasks == nil {
		respondFailure(c, http.StatusServiceUnavailable, importers.CodeInternal,
			errors.New("task queue is disabled; retry without async=true"))
		return
	}
	// Check ownership and status before queueing.
	report, err := ic.importer.Session(c.Request.Context(), req.UserID, req.SessionID)
	if err != nil {
		ic.respondImportError(c, err)
		return
	}
	if !report.CanResume || (req.Action == importers.ActionRetry && report.Status != entities.ImportStatusFailed) {
		ic.respondImportError(c, &importers.SessionStateError{
			SessionID: report.SessionID,
			Status:    report.Status,
			Action:    string(req.Action),
		})
		return
	}

	taskID, err := ic.tasks.Enqueue(tasks.NewResumeImportTask(req))
	if err != nil {
		ic.respondImportError(c, fmt.Errorf("enqueue recovery: %w", err))
		return
	}
	logging.FromContext(c.Request.Context()).Info("recovery enqueued",
		zap.String("session_id", req.SessionID),
		zap.String("task_id", taskID))

	respondAccepted(c, "recovery enqueued", gin.H{
		"task_id":   taskID,
		"sessionId": req.SessionID,
		"action":    req.Action,
	})
}

// Session handles GET /api/import/sessions/:id
func (ic *ImportController) Session(c *gin.Context) {
	report, err := ic.importer.Session(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		ic.respondImportError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Errors handles GET /api/import/sessions/:id/errors
func (ic *ImportController) Errors(c *gin.Context) {
	entries, err := ic.importer.Errors(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		ic.respondImportError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": c.Param("id"),
		"errors":    entries,
		"total":     len(entries),
	})
}

// Resumable handles GET /api/import/sessions/resumable
func (ic *ImportController) Resumable(c *gin.Context) {
	limit, _ := parsePagination(c, 20, 100)
	sessions, err := ic.importer.Resumable(c.Request.Context(), GetUserID(c), limit)
	if err != nil {
		ic.respondImportError(c, fmt.Errorf("list resumable sessions: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (ic *ImportController) respondImportError(c *gin.Context, err error) {
	var failure *importers.FailureError
	if errors.As(err, &failure) && failure.Response != nil {
		status := failureStatus(failure.Response.Code)
		if status >= http.StatusInternalServerError {
			logging.FromContext(c.Request.Context()).Error("import failed",
				zap.String("session_id", failure.Response.SessionID),
				zap.String("code", failure.Response.Code),
				zap.Error(err))
		}
		c.JSON(status, failure.Response)
		return
	}

	var stateErr *importers.SessionStateError
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		respondFailure(c, http.StatusNotFound, "", services.ErrSessionNotFound)
	case errors.Is(err, importers.ErrInvalidAction):
		respondFailure(c, http.StatusBadRequest, "", err)
	case errors.As(err, &stateErr):
		respondFailure(c, http.StatusConflict, "", stateErr)
	default:
		// The cause is logged, not exposed.
		logging.FromContext(c.Request.Context()).Error("internal error",
			zap.String("context", "import"), zap.Error(err))
		respondFailure(c, http.StatusInternalServerError, importers.CodeInternal, errInternal)
	}
}

var errInternal = errors.New("internal server error")

// respondFailure answers with a FailureResponse built from err. A non-empty
// code replaces the code derived from err.
func respondFailure(c *gin.Context, status int, code string, err error) {
	resp := importers.NewFailureResponse(err)
	if code != "" {
		resp.Code = code
	}
	c.JSON(status, resp)
}

// failureStatus maps a failure code to its HTTP status.
func failureStatus(code string) int {
	switch code {
	case importers.CodeInvalidJSON, importers.CodeSchemaValidation, importers.CodeUnsupportedVersion,
		importers.CodeTooManyRecords:
		return http.StatusBadRequest
	case importers.CodeCancelled, importers.CodePaused, importers.CodeSessionState, importers.CodePayloadExpired:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
