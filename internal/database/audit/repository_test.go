package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/tagnotes/internal/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.AuditEvent{})
	require.NoError(t, err)

	return db
}

func TestRepository_LogEvent(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	event := &entities.AuditEvent{
		UserID:      1,
		EventType:   entities.AuditEventImport,
		Action:      "bulk_import",
		Description: "Imported 10 records",
		EntityType:  "import_session",
		EntityID:    "5b7c",
		Status:      entities.AuditStatusSuccess,
	}

	err := repo.LogEvent(event)
	require.NoError(t, err)
	assert.NotZero(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestRepository_GetEvents(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	for i := 0; i < 12; i++ {
		require.NoError(t, repo.LogEvent(&entities.AuditEvent{
			UserID:    1,
			EventType: entities.AuditEventImport,
			Action:    "bulk_import",
			Status:    entities.AuditStatusSuccess,
			CreatedAt: time.Now().Add(time.Duration(-i) * time.Hour),
		}))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.LogEvent(&entities.AuditEvent{
			UserID:    2,
			EventType: entities.AuditEventExport,
			Action:    "records_export",
			Status:    entities.AuditStatusSuccess,
		}))
	}

	t.Run("all users", func(t *testing.T) {
		events, total, err := repo.GetEvents(0, 50, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(15), total)
		assert.Len(t, events, 15)
	})

	t.Run("pagination for one user", func(t *testing.T) {
		page1, total, err := repo.GetEvents(1, 5, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(12), total)
		assert.Len(t, page1, 5)

		page2, _, err := repo.GetEvents(1, 5, 5)
		require.NoError(t, err)
		assert.Len(t, page2, 5)
		assert.NotEqual(t, page1[0].ID, page2[0].ID)
		assert.True(t, page1[0].CreatedAt.After(page2[0].CreatedAt))
	})

	t.Run("by type", func(t *testing.T) {
		events, total, err := repo.GetEventsByType(entities.AuditEventExport, 0, 50, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		for _, e := range events {
			assert.Equal(t, entities.AuditEventExport, e.EventType)
		}
	})
}

func TestRepository_GetEventsForEntity(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	now := time.Now()

	for i, action := range []string{"bulk_import", "session_resume", "session_cancel"} {
		require.NoError(t, repo.LogEvent(&entities.AuditEvent{
			UserID:     1,
			EventType:  entities.AuditEventRecovery,
			Action:     action,
			EntityType: "import_session",
			EntityID:   "abc",
			Status:     entities.AuditStatusSuccess,
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		EntityType: "import_session",
		EntityID:   "other",
		Action:     "bulk_import",
	}))

	events, err := repo.GetEventsForEntity("import_session", "abc")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "bulk_import", events[0].Action)
	assert.Equal(t, "session_cancel", events[2].Action)
}

func TestRepository_DeleteOldEvents(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	now := time.Now()

	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		UserID:    1,
		EventType: entities.AuditEventImport,
		Action:    "old_import",
		CreatedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, repo.LogEvent(&entities.AuditEvent{
		UserID:    1,
		EventType: entities.AuditEventImport,
		Action:    "new_import",
		CreatedAt: now.Add(-1 * time.Hour),
	}))

	deleted, err := repo.DeleteOldEvents(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, total, err := repo.GetEvents(0, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "new_import", events[0].Action)
}
