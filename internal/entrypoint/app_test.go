package entrypoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrlokans/tagnotes/internal/config"
	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/tasks"
)

type recordingQueue struct {
	tasks []backlite.Task
}

func (q *recordingQueue) Enqueue(task backlite.Task) (string, error) {
	q.tasks = append(q.tasks, task)
	return "task-1", nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.Database{
			Path:     filepath.Join(t.TempDir(), "app.db"),
			LogLevel: "silent",
		},
		Import: config.Import{
			ChunkSize:        2,
			MaxRecords:       10,
			MaxBodyBytes:     1 << 20,
			StaleAfter:       time.Minute,
			PayloadRetention: time.Hour,
			SweepEnabled:     true,
			SweepSchedule:    "*/5 * * * *",
		},
		Audit: config.Audit{RetentionDays: 30},
	}
}

func setupTestApp(t *testing.T) *App {
	t.Helper()
	app, err := NewApp(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestNewApp(t *testing.T) {
	app := setupTestApp(t)

	assert.Equal(t, entities.DefaultUsername, app.Owner.Username)
	assert.NoError(t, app.DB.Ping())

	result, err := app.Coordinator.Import(context.Background(), app.Owner.ID,
		[]byte(`{"version":"2.0","records":[{"content":"hello #go","createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-02T00:00:00Z"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	bundle, err := app.Exporter.Export(app.Owner.ID, "")
	require.NoError(t, err)
	assert.Len(t, bundle.Records, 1)
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Import.ChunkSize = 0

	_, err := NewApp(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMPORT_CHUNK_SIZE")
}

func TestResolveUser(t *testing.T) {
	app := setupTestApp(t)
	alice, err := app.Users.CreateUser("alice", "")
	require.NoError(t, err)

	user, err := app.ResolveUser("")
	require.NoError(t, err)
	assert.Equal(t, app.Owner.ID, user.ID)

	user, err = app.ResolveUser("alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)

	_, err = app.ResolveUser("nobody")
	assert.Error(t, err)
}

func TestMaintenanceJobs_Queued(t *testing.T) {
	app := setupTestApp(t)
	queue := &recordingQueue{}

	jobs := MaintenanceJobs(app, queue)
	require.Len(t, jobs, 2)
	assert.Equal(t, "sweep_import_sessions", jobs[0].Name)
	assert.Equal(t, AuditCleanupSchedule, jobs[1].Schedule)

	for _, job := range jobs {
		require.NoError(t, job.Run(context.Background()))
	}
	require.Len(t, queue.tasks, 2)

	sweep, ok := queue.tasks[0].(tasks.SweepImportSessionsTask)
	require.True(t, ok)
	assert.Equal(t, int64(60), sweep.StaleAfterSeconds)
	assert.Equal(t, int64(3600), sweep.PayloadRetentionSeconds)

	cleanup, ok := queue.tasks[1].(tasks.CleanupAuditEventsTask)
	require.True(t, ok)
	assert.Equal(t, 30, cleanup.RetentionDays)
}

func TestMaintenanceJobs_Inline(t *testing.T) {
	app := setupTestApp(t)

	jobs := MaintenanceJobs(app, nil)
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.NoError(t, job.Run(context.Background()), job.Name)
	}
}

func TestMaintenanceJobs_Disabled(t *testing.T) {
	app := setupTestApp(t)
	app.Config.Import.SweepEnabled = false
	app.Config.Audit.RetentionDays = 0

	assert.Empty(t, MaintenanceJobs(app, nil))
}
