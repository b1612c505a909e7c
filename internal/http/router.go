package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger.Named("http")))

	health := NewHealthController(cfg.Database, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	api := router.Group("/api")
	api.Use(UserMiddleware(cfg.Users, cfg.DefaultUserID))

	// Import endpoints
	importController := NewImportController(cfg.Importer, cfg.Tasks, cfg.MaxBodyBytes)
	api.POST("/import", importController.Import)
	api.POST("/import/recovery", importController.Recover)
	api.GET("/import/sessions/resumable", importController.Resumable)
	api.GET("/import/sessions/:id", importController.Session)
	api.GET("/import/sessions/:id/errors", importController.Errors)

	// Export endpoint
	exportController := NewExportController(cfg.Exporter, cfg.Users, cfg.Audit)
	api.GET("/export", exportController.Export)

	// Normalization settings
	settingsController := NewSettingsController(cfg.Settings, cfg.Audit)
	api.GET("/settings/normalization", settingsController.GetNormalization)
	api.PUT("/settings/normalization", settingsController.UpdateNormalization)

	// Audit endpoints
	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit, cfg.Importer)
		api.GET("/audit", auditController.GetAuditEvents)
		api.GET("/import/sessions/:id/history", auditController.SessionHistory)
	}

	// Task management endpoints
	if cfg.Tasks != nil {
		tasksController := NewTasksController(cfg.Tasks, cfg.Sweep)
		api.GET("/tasks/types", tasksController.ListTaskTypes)
		api.GET("/tasks/:id", tasksController.GetTaskStatus)
		api.POST("/tasks/:type/run", tasksController.RunTask)
	}

	return router
}
