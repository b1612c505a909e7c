package sessions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/services"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&entities.ImportSession{},
		&entities.ImportErrorEntry{},
		&entities.ImportPayload{},
	))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return db
}

func createInProgress(t *testing.T, repo *Repository, id string, total int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateSession(ctx, &entities.ImportSession{
		SessionID:    id,
		UserID:       1,
		TotalRecords: total,
		ChunkSize:    500,
	}))
	require.NoError(t, repo.TransitionStatus(ctx, id,
		[]entities.ImportSessionStatus{entities.ImportStatusInitializing}, entities.ImportStatusInProgress, ""))
}

func TestCreateAndGetSession(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	t.Run("defaults to initializing", func(t *testing.T) {
		require.NoError(t, repo.CreateSession(ctx, &entities.ImportSession{
			SessionID:    "s-1",
			UserID:       1,
			TotalRecords: 10,
			Metadata:     datatypes.JSONMap{"source": "test"},
		}))

		session, err := repo.GetSession(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, entities.ImportStatusInitializing, session.Status)
		assert.Nil(t, session.LastProcessedIndex)
		assert.Equal(t, 0, session.NextIndex())
		assert.Equal(t, "test", session.Metadata["source"])
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := repo.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, services.ErrSessionNotFound)
	})

	t.Run("rejects counters beyond the total", func(t *testing.T) {
		err := repo.CreateSession(ctx, &entities.ImportSession{
			SessionID:        "s-2",
			TotalRecords:     1,
			ProcessedRecords: 2,
		})
		assert.ErrorIs(t, err, services.ErrInvariantViolation)
	})
}

func TestTransitionStatus(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	createInProgress(t, repo, "s-1", 2)

	t.Run("conflicts when the current status is not expected", func(t *testing.T) {
		err := repo.TransitionStatus(ctx, "s-1",
			[]entities.ImportSessionStatus{entities.ImportStatusPaused}, entities.ImportStatusInProgress, "")
		assert.ErrorIs(t, err, services.ErrStatusConflict)
	})

	t.Run("completion requires every record processed", func(t *testing.T) {
		err := repo.TransitionStatus(ctx, "s-1",
			[]entities.ImportSessionStatus{entities.ImportStatusInProgress}, entities.ImportStatusCompleted, "")
		assert.ErrorIs(t, err, services.ErrStatusConflict)
	})

	t.Run("failure records the reason and completion time", func(t *testing.T) {
		err := repo.TransitionStatus(ctx, "s-1",
			[]entities.ImportSessionStatus{entities.ImportStatusInProgress}, entities.ImportStatusFailed, "chunk 1 rolled back")
		require.NoError(t, err)

		session, err := repo.GetSession(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, entities.ImportStatusFailed, session.Status)
		assert.Equal(t, "chunk 1 rolled back", session.LastError)
		assert.NotNil(t, session.CompletedAt)
	})

	t.Run("unknown session", func(t *testing.T) {
		err := repo.TransitionStatus(ctx, "missing",
			[]entities.ImportSessionStatus{entities.ImportStatusFailed}, entities.ImportStatusCancelled, "")
		assert.ErrorIs(t, err, services.ErrSessionNotFound)
	})
}

func TestAdvanceSession(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	createInProgress(t, repo, "s-1", 1200)

	first := services.ChunkAdvance{
		ChunkNumber: 1,
		StartIndex:  0,
		EndIndex:    499,
		Processed:   500,
		Imported:    497,
		Skipped:     1,
		Failed:      2,
		Entries: []entities.ImportErrorEntry{
			{RecordIndex: 3, ChunkNumber: 1, ErrorCode: "EMPTY_CONTENT", Severity: entities.SeverityError},
			{RecordIndex: 9, ChunkNumber: 1, ErrorCode: "EMPTY_CONTENT", Severity: entities.SeverityError},
		},
	}

	t.Run("applies the first chunk", func(t *testing.T) {
		session, err := repo.AdvanceSession(ctx, "s-1", first)
		require.NoError(t, err)
		require.NotNil(t, session.LastProcessedIndex)
		assert.Equal(t, 499, *session.LastProcessedIndex)
		assert.Equal(t, 500, session.ProcessedRecords)
		assert.Equal(t, 497, session.ImportedRecords)
		assert.Equal(t, 2, session.FailedRecords)
		assert.Equal(t, 700, session.RemainingRecords())
	})

	t.Run("re-submitting the same chunk does not double count", func(t *testing.T) {
		session, err := repo.AdvanceSession(ctx, "s-1", first)
		require.NoError(t, err)
		assert.Equal(t, 500, session.ProcessedRecords)

		entries, err := repo.ListErrors(ctx, "s-1")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("rejects a chunk that skips ahead", func(t *testing.T) {
		_, err := repo.AdvanceSession(ctx, "s-1", services.ChunkAdvance{
			ChunkNumber: 3, StartIndex: 1000, EndIndex: 1199, Processed: 200,
		})
		assert.ErrorIs(t, err, services.ErrStaleAdvance)
	})

	t.Run("rejects counters that break the invariants", func(t *testing.T) {
		_, err := repo.AdvanceSession(ctx, "s-1", services.ChunkAdvance{
			ChunkNumber: 2, StartIndex: 500, EndIndex: 999, Processed: 500, Imported: 450, Failed: 101,
		})
		assert.ErrorIs(t, err, services.ErrInvariantViolation)
	})

	t.Run("rejects a processed count that does not match the chunk bounds", func(t *testing.T) {
		_, err := repo.AdvanceSession(ctx, "s-1", services.ChunkAdvance{
			ChunkNumber: 2, StartIndex: 500, EndIndex: 999, Processed: 10,
		})
		assert.ErrorIs(t, err, services.ErrInvariantViolation)
	})

	t.Run("appends later entries after earlier ones", func(t *testing.T) {
		_, err := repo.AdvanceSession(ctx, "s-1", services.ChunkAdvance{
			ChunkNumber: 2, StartIndex: 500, EndIndex: 999, Processed: 500, Imported: 499, Failed: 1,
			Entries: []entities.ImportErrorEntry{{RecordIndex: 600, ChunkNumber: 2, ErrorCode: "CONTENT_TOO_LONG"}},
		})
		require.NoError(t, err)

		entries, err := repo.ListErrors(ctx, "s-1")
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{entries[0].Seq, entries[1].Seq, entries[2].Seq})
		assert.Equal(t, 600, entries[2].RecordIndex)
		assert.False(t, entries[2].Timestamp.IsZero())
	})

	t.Run("commits a chunk that finished after a pause request", func(t *testing.T) {
		require.NoError(t, repo.TransitionStatus(ctx, "s-1",
			[]entities.ImportSessionStatus{entities.ImportStatusInProgress}, entities.ImportStatusPaused, ""))

		session, err := repo.AdvanceSession(ctx, "s-1", services.ChunkAdvance{
			ChunkNumber: 3, StartIndex: 1000, EndIndex: 1199, Processed: 200, Imported: 200,
		})
		require.NoError(t, err)
		assert.Equal(t, 1200, session.ProcessedRecords)
		assert.Equal(t, entities.ImportStatusPaused, session.Status)
	})
}

func TestAdvanceSession_RejectsFailedSession(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	createInProgress(t, repo, "s-1", 1000)

	_, err := repo.AdvanceSession(ctx, "s-1", services.ChunkAdvance{
		ChunkNumber: 1, StartIndex: 0, EndIndex: 499, Processed: 500, Imported: 500,
	})
	require.NoError(t, err)
	require.NoError(t, repo.TransitionStatus(ctx, "s-1",
		[]entities.ImportSessionStatus{entities.ImportStatusInProgress}, entities.ImportStatusFailed, "stale"))

	_, err = repo.AdvanceSession(ctx, "s-1", services.ChunkAdvance{
		ChunkNumber: 2, StartIndex: 500, EndIndex: 999, Processed: 500, Imported: 500,
	})
	assert.ErrorIs(t, err, services.ErrStatusConflict)

	session, err := repo.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 499, *session.LastProcessedIndex)
	assert.Equal(t, 500, session.ProcessedRecords)
}

func TestListResumable(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	createInProgress(t, repo, "running", 10)
	createInProgress(t, repo, "failed", 10)
	createInProgress(t, repo, "paused", 10)
	require.NoError(t, repo.TransitionStatus(ctx, "failed",
		[]entities.ImportSessionStatus{entities.ImportStatusInProgress}, entities.ImportStatusFailed, "boom"))
	require.NoError(t, repo.TransitionStatus(ctx, "paused",
		[]entities.ImportSessionStatus{entities.ImportStatusInProgress}, entities.ImportStatusPaused, ""))

	sessions, err := repo.ListResumable(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	ids := []string{sessions[0].SessionID, sessions[1].SessionID}
	assert.ElementsMatch(t, []string{"failed", "paused"}, ids)

	other, err := repo.ListResumable(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestPayloads(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	t.Run("save replaces existing payload", func(t *testing.T) {
		require.NoError(t, repo.SavePayload(ctx, &entities.ImportPayload{
			SessionID: "s-1", Version: "1.0", RecordCount: 1, Records: datatypes.JSON(`[{"content":"a"}]`),
		}))
		require.NoError(t, repo.SavePayload(ctx, &entities.ImportPayload{
			SessionID: "s-1", Version: "2.0", RecordCount: 2, Records: datatypes.JSON(`[{"content":"a"},{"content":"b"}]`),
		}))

		payload, err := repo.LoadPayload(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, "2.0", payload.Version)
		assert.Equal(t, 2, payload.RecordCount)
	})

	t.Run("delete removes payload", func(t *testing.T) {
		require.NoError(t, repo.DeletePayload(ctx, "s-1"))
		_, err := repo.LoadPayload(ctx, "s-1")
		assert.ErrorIs(t, err, services.ErrPayloadNotFound)
	})
}

func TestSweeps(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	createInProgress(t, repo, "stale", 10)
	createInProgress(t, repo, "fresh", 10)
	createInProgress(t, repo, "done", 0)
	require.NoError(t, repo.TransitionStatus(ctx, "done",
		[]entities.ImportSessionStatus{entities.ImportStatusInProgress}, entities.ImportStatusCompleted, ""))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&entities.ImportSession{}).
		Where("session_id = ?", "stale").
		Update("updated_at", past).Error)

	t.Run("fails idle in-progress sessions", func(t *testing.T) {
		count, err := repo.FailStaleSessions(ctx, time.Now().Add(-10*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		stale, err := repo.GetSession(ctx, "stale")
		require.NoError(t, err)
		assert.Equal(t, entities.ImportStatusFailed, stale.Status)
		assert.True(t, stale.Status.IsResumable())

		fresh, err := repo.GetSession(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, entities.ImportStatusInProgress, fresh.Status)
	})

	t.Run("purges payloads of finished and expired sessions", func(t *testing.T) {
		for _, id := range []string{"stale", "fresh", "done"} {
			require.NoError(t, repo.SavePayload(ctx, &entities.ImportPayload{SessionID: id, Records: datatypes.JSON(`[]`)}))
		}
		require.NoError(t, db.Model(&entities.ImportPayload{}).
			Where("session_id = ?", "stale").
			Update("created_at", past).Error)

		count, err := repo.PurgePayloads(ctx, time.Now().Add(-30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		_, err = repo.LoadPayload(ctx, "fresh")
		assert.NoError(t, err)
	})
}
