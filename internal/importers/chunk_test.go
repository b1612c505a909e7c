package importers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/services"
	"github.com/mrlokans/tagnotes/internal/tagging"
)

func canonical(contents ...string) []CanonicalRecord {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]CanonicalRecord, len(contents))
	for i, content := range contents {
		records[i] = CanonicalRecord{Index: i, Content: content, CreatedAt: ts, UpdatedAt: ts}
	}
	return records
}

func numbered(n int) []CanonicalRecord {
	contents := make([]string, n)
	for i := range contents {
		contents[i] = fmt.Sprintf("note%d topic", i)
	}
	return canonical(contents...)
}

func TestChunkIterator(t *testing.T) {
	t.Run("splits into fixed size chunks", func(t *testing.T) {
		it := NewChunkIterator(numbered(1200), 500, 0)
		var sizes, numbers, starts []int
		for {
			chunk, ok := it.Next()
			if !ok {
				break
			}
			sizes = append(sizes, len(chunk.Records))
			numbers = append(numbers, chunk.Number)
			starts = append(starts, chunk.StartIndex)
			assert.Equal(t, chunk.StartIndex, chunk.Records[0].Index)
			assert.Equal(t, chunk.EndIndex(), chunk.Records[len(chunk.Records)-1].Index)
		}
		assert.Equal(t, []int{500, 500, 200}, sizes)
		assert.Equal(t, []int{1, 2, 3}, numbers)
		assert.Equal(t, []int{0, 500, 1000}, starts)
		assert.Equal(t, 0, it.Remaining())
	})

	t.Run("keeps chunk boundaries when starting mid chunk", func(t *testing.T) {
		it := NewChunkIterator(numbered(1200), 500, 650)
		assert.Equal(t, 550, it.Remaining())

		first, ok := it.Next()
		require.True(t, ok)
		assert.Equal(t, 2, first.Number)
		assert.Equal(t, 650, first.StartIndex)
		assert.Equal(t, 999, first.EndIndex())

		second, ok := it.Next()
		require.True(t, ok)
		assert.Equal(t, 3, second.Number)
		assert.Equal(t, 1000, second.StartIndex)
		assert.Equal(t, 1199, second.EndIndex())

		_, ok = it.Next()
		assert.False(t, ok)
	})

	t.Run("empty input", func(t *testing.T) {
		_, ok := NewChunkIterator(nil, 500, 0).Next()
		assert.False(t, ok)
	})
}

func newProcessor(t *testing.T) (*harness, *ChunkProcessor) {
	h := newHarness(t, Options{ChunkSize: 500})
	return h, NewChunkProcessor(h.store, NewClassifier())
}

func job(h *harness, records []CanonicalRecord) ChunkJob {
	return ChunkJob{
		SessionID: "session-1",
		UserID:    h.userID,
		Extractor: tagging.NewExtractor(tagging.Rules{Version: 1}),
		Chunk:     Chunk{Number: 1, StartIndex: records[0].Index, Records: records},
	}
}

func TestProcess_InsertsAndSkipsDuplicates(t *testing.T) {
	h, p := newProcessor(t)
	ctx := context.Background()

	result, err := p.Process(ctx, job(h, canonical("a b c", "C B A", "b a c a", "d e")))
	require.NoError(t, err)

	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 2, result.Skipped, "same tag set in another order or case is a duplicate")
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Entries)
	assert.Equal(t, int64(2), h.recordCount(t))

	stored, err := h.records.ListRecords(h.userID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "a b c", stored[0].Content)
	assert.Equal(t, []string{"a", "b", "c"}, stored[0].TagList())
	assert.Equal(t, "a b c", stored[0].NormalizedTags)
	assert.Equal(t, "session-1", stored[0].SessionID)
	assert.Equal(t, 3, stored[1].SourceIndex)
}

func TestProcess_ExistingContentIsSkipped(t *testing.T) {
	h, p := newProcessor(t)
	ctx := context.Background()

	_, err := p.Process(ctx, job(h, canonical("a b c")))
	require.NoError(t, err)

	result, err := p.Process(ctx, job(h, canonical("a b c")))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Imported)
	assert.Empty(t, result.Entries)
}

func TestProcess_RecordErrorsDoNotAbortChunk(t *testing.T) {
	h, p := newProcessor(t)

	result, err := p.Process(context.Background(), job(h, canonical("first note", "   \t ", "second note")))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Entries, 1)

	entry := result.Entries[0]
	assert.Equal(t, 1, entry.RecordIndex)
	assert.Equal(t, 1, entry.ChunkNumber)
	assert.Equal(t, CodeEmptyContent, entry.ErrorCode)
	assert.Equal(t, entities.SeverityError, entry.Severity)
	assert.Equal(t, entities.SuggestionRemoveEmpty, entry.Suggestion.Type)
	assert.Equal(t, int64(2), h.recordCount(t))
}

func TestProcess_TagsLostToNormalization(t *testing.T) {
	h, p := newProcessor(t)
	j := job(h, canonical("\u0301 \u0300", "ok"))
	j.Extractor = tagging.NewExtractor(tagging.Rules{RemoveAccents: true, Version: 2})

	result, err := p.Process(context.Background(), j)
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, CodeNormalizationMismatch, result.Entries[0].ErrorCode)
	assert.Equal(t, 1, result.Imported)

	stored, err := h.records.ListRecords(h.userID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].NormalizationVersion)
}

func TestProcess_SkipListCountsAsFailed(t *testing.T) {
	h, p := newProcessor(t)
	j := job(h, canonical("a", "b", "c"))
	j.Skip = map[int]string{1: "skipped on resume"}

	result, err := p.Process(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, CodeSkippedOnResume, result.Entries[0].ErrorCode)
	assert.Equal(t, entities.SeverityWarning, result.Entries[0].Severity)
}

func TestProcess_FatalErrorRollsBackWholeChunk(t *testing.T) {
	h, p := newProcessor(t)
	records := numbered(10)
	h.store.failOnce[6] = true

	result, err := p.Process(context.Background(), job(h, records))
	require.Nil(t, result)

	var fatal *ChunkFatalError
	require.ErrorAs(t, err, &fatal)
	require.ErrorIs(t, err, errDiskIO)
	assert.Equal(t, ChunkRollbackInfo{
		ChunkNumber:       1,
		Size:              10,
		StartIndex:        0,
		EndIndex:          9,
		Reason:            fatal.Rollback.Reason,
		RecordsAffected:   10,
		FailedRecordIndex: 6,
	}, fatal.Rollback)
	assert.Contains(t, fatal.Rollback.Reason, "record 6")
	assert.Equal(t, int64(0), h.recordCount(t), "no record of a rolled back chunk survives")
	assert.Empty(t, h.store.takeCommitted())

	// The same chunk succeeds on retry.
	result, err = p.Process(context.Background(), job(h, records))
	require.NoError(t, err)
	assert.Equal(t, 10, result.Imported)
}

// racingStore hides existing records from the fast-path lookup, as a
// concurrent session of the same owner would.
type racingStore struct {
	services.RecordStore
}

func (s racingStore) RunInTx(ctx context.Context, fn func(tx services.RecordTx) error) error {
	return s.RecordStore.RunInTx(ctx, func(tx services.RecordTx) error {
		return fn(racingTx{tx})
	})
}

type racingTx struct {
	services.RecordTx
}

func (racingTx) ExistsByDedupKey(uint, string) (bool, error) {
	return false, nil
}

func TestProcess_UniqueIndexIsFinalArbiter(t *testing.T) {
	h, _ := newProcessor(t)
	p := NewChunkProcessor(racingStore{h.records}, NewClassifier())

	result, err := p.Process(context.Background(), job(h, canonical("x y", "y x", "z")))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Entries)
	assert.Equal(t, int64(2), h.recordCount(t))
}
