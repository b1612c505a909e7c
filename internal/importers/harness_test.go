package importers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrlokans/tagnotes/internal/database"
	"github.com/mrlokans/tagnotes/internal/database/records"
	"github.com/mrlokans/tagnotes/internal/database/sessions"
	"github.com/mrlokans/tagnotes/internal/database/settings"
	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/services"
)

var errDiskIO = errors.New("disk I/O error")

// faultyStore wraps a RecordStore, recording committed inserts by record
// index and failing inserts of selected indexes.
type faultyStore struct {
	services.RecordStore

	mu         sync.Mutex
	txCount    int
	beforeTx   func(n int)
	failOnce   map[int]bool
	failAlways map[int]bool
	committed  []int
}

func newFaultyStore(inner services.RecordStore) *faultyStore {
	return &faultyStore{
		RecordStore: inner,
		failOnce:    make(map[int]bool),
		failAlways:  make(map[int]bool),
	}
}

func (s *faultyStore) RunInTx(ctx context.Context, fn func(tx services.RecordTx) error) error {
	s.mu.Lock()
	s.txCount++
	n := s.txCount
	hook := s.beforeTx
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}

	var pending []int
	err := s.RecordStore.RunInTx(ctx, func(tx services.RecordTx) error {
		pending = pending[:0]
		return fn(&faultyTx{RecordTx: tx, store: s, pending: &pending})
	})
	if err == nil {
		s.mu.Lock()
		s.committed = append(s.committed, pending...)
		s.mu.Unlock()
	}
	return err
}

func (s *faultyStore) shouldFail(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAlways[index] {
		return true
	}
	if s.failOnce[index] {
		delete(s.failOnce, index)
		return true
	}
	return false
}

// takeCommitted returns and resets the committed insert indexes.
func (s *faultyStore) takeCommitted() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.committed
	s.committed = nil
	sort.Ints(out)
	return out
}

type faultyTx struct {
	services.RecordTx
	store   *faultyStore
	pending *[]int
}

func (t *faultyTx) Insert(record *entities.Record) error {
	if t.store.shouldFail(record.SourceIndex) {
		return errDiskIO
	}
	if err := t.RecordTx.Insert(record); err != nil {
		return err
	}
	*t.pending = append(*t.pending, record.SourceIndex)
	return nil
}

type harness struct {
	db          *database.Database
	records     *records.Repository
	sessions    *sessions.Repository
	settings    *settings.Repository
	store       *faultyStore
	coordinator *Coordinator
	userID      uint
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "import.db"), "silent")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	user, err := db.DefaultUser()
	require.NoError(t, err)

	h := &harness{
		db:       db,
		records:  records.NewRepository(db.DB),
		sessions: sessions.NewRepository(db.DB),
		settings: settings.NewRepository(db.DB),
		userID:   user.ID,
	}
	h.store = newFaultyStore(h.records)
	h.coordinator = NewCoordinator(Dependencies{
		Records:  h.store,
		Sessions: h.sessions,
		Rules:    h.settings,
	}, opts)
	return h
}

func (h *harness) session(t *testing.T, id string) *entities.ImportSession {
	t.Helper()
	s, err := h.sessions.GetSession(context.Background(), id)
	require.NoError(t, err)
	requireCounters(t, s)
	return s
}

func (h *harness) recordCount(t *testing.T) int64 {
	t.Helper()
	n, err := h.records.CountRecords(h.userID)
	require.NoError(t, err)
	return n
}

// requireCounters checks the session counter invariants.
func requireCounters(t *testing.T, s *entities.ImportSession) {
	t.Helper()
	require.LessOrEqual(t, s.ProcessedRecords, s.TotalRecords)
	require.LessOrEqual(t, s.ImportedRecords+s.FailedRecords, s.ProcessedRecords)
	if s.LastProcessedIndex != nil {
		require.Equal(t, s.ProcessedRecords-1, *s.LastProcessedIndex)
	}
}

// bundleJSON builds a bundle of n records with distinct tag sets.
func bundleJSON(t *testing.T, version Version, n int) []byte {
	t.Helper()
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{
			"content":   fmt.Sprintf("note%d topic", i),
			"createdAt": "2024-01-01T00:00:00Z",
		}
		if version == Version2 {
			items[i]["updatedAt"] = "2024-02-01T00:00:00Z"
		}
	}
	return mustJSON(t, map[string]any{"version": version, "records": items})
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func indexRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func requireFailure(t *testing.T, err error) *FailureResponse {
	t.Helper()
	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	require.NotNil(t, failure.Response)
	require.NotEmpty(t, failure.Response.RepairSuggestions)
	require.False(t, failure.Response.Success)
	return failure.Response
}
