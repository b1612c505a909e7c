package entrypoint

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mrlokans/tagnotes/internal/audit"
	"github.com/mrlokans/tagnotes/internal/config"
	"github.com/mrlokans/tagnotes/internal/database"
	auditRepo "github.com/mrlokans/tagnotes/internal/database/audit"
	"github.com/mrlokans/tagnotes/internal/database/records"
	"github.com/mrlokans/tagnotes/internal/database/sessions"
	"github.com/mrlokans/tagnotes/internal/database/settings"
	"github.com/mrlokans/tagnotes/internal/database/users"
	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/exporters"
	"github.com/mrlokans/tagnotes/internal/importers"
)

// App holds the storage and services shared by the server and the CLI.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB       *database.Database
	Users    *users.Repository
	Records  *records.Repository
	Sessions *sessions.Repository
	Settings *settings.Repository

	Audit       *audit.Service
	Coordinator *importers.Coordinator
	Exporter    *exporters.Exporter

	// Owner is the default user.
	Owner *entities.User
}

// NewApp opens the database and wires the import pipeline. Call Close when done.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.NewDatabase(cfg.Database.Path, cfg.Database.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	owner, err := db.DefaultUser()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load default user: %w", err)
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Users:    users.NewRepository(db.DB),
		Records:  records.NewRepository(db.DB),
		Sessions: sessions.NewRepository(db.DB),
		Settings: settings.NewRepository(db.DB),
		Owner:    owner,
	}
	app.Audit = audit.NewService(auditRepo.NewRepository(db.DB), logger)
	app.Coordinator = importers.NewCoordinator(importers.Dependencies{
		Records:  app.Records,
		Sessions: app.Sessions,
		Rules:    app.Settings,
		Audit:    app.Audit,
	}, importers.Options{
		ChunkSize:  cfg.Import.ChunkSize,
		MaxRecords: cfg.Import.MaxRecords,
	})
	app.Exporter = exporters.NewExporter(app.Records, app.Settings)

	return app, nil
}

// ResolveUser returns the user with the given name, or the default user when
// username is empty.
func (a *App) ResolveUser(username string) (*entities.User, error) {
	if username == "" || username == a.Owner.Username {
		return a.Owner, nil
	}
	user, err := a.Users.GetUserByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("unknown user %q: %w", username, err)
	}
	return user, nil
}

// Close waits for pending audit writes and closes the database.
func (a *App) Close() error {
	a.Audit.Wait()
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
