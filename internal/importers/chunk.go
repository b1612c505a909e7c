package importers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/logging"
	"github.com/mrlokans/tagnotes/internal/services"
	"github.com/mrlokans/tagnotes/internal/tagging"
	"github.com/mrlokans/tagnotes/internal/utils"
)

// snapshotLength bounds the content copied into error log entries.
const snapshotLength = 200

// Chunk is a contiguous slice of the record sequence processed as one
// transaction. Number is 1-based and derived from the chunk size, so a chunk
// keeps its number across resumed runs.
type Chunk struct {
	Number     int
	StartIndex int
	Records    []CanonicalRecord
}

// EndIndex is the index of the chunk's last record.
func (c Chunk) EndIndex() int {
	return c.StartIndex + len(c.Records) - 1
}

// ChunkIterator hands out chunks one at a time in record order.
type ChunkIterator struct {
	records []CanonicalRecord
	size    int
	next    int
}

// NewChunkIterator iterates records from startIndex on. Chunk boundaries stay
// aligned to multiples of size, so a start inside a chunk yields a shorter
// first chunk.
func NewChunkIterator(records []CanonicalRecord, size, startIndex int) *ChunkIterator {
	if size <= 0 {
		size = 1
	}
	if startIndex < 0 {
		startIndex = 0
	}
	return &ChunkIterator{records: records, size: size, next: startIndex}
}

// Next returns the next chunk, or false when the sequence is exhausted.
func (it *ChunkIterator) Next() (Chunk, bool) {
	if it.next >= len(it.records) {
		return Chunk{}, false
	}
	start := it.next
	end := (start/it.size + 1) * it.size
	if end > len(it.records) {
		end = len(it.records)
	}
	it.next = end
	return Chunk{
		Number:     start/it.size + 1,
		StartIndex: start,
		Records:    it.records[start:end],
	}, true
}

// Remaining is the number of records not yet handed out.
func (it *ChunkIterator) Remaining() int {
	if it.next >= len(it.records) {
		return 0
	}
	return len(it.records) - it.next
}

// ChunkJob is everything ChunkProcessor needs to persist one chunk.
type ChunkJob struct {
	SessionID string
	UserID    uint
	Extractor *tagging.Extractor
	Chunk     Chunk
	// Skip lists record indexes that are counted as failed without being
	// written, with the reason logged for each.
	Skip map[int]string
}

// ChunkResult holds the per-record outcomes of a committed chunk.
type ChunkResult struct {
	ChunkNumber int
	StartIndex  int
	EndIndex    int
	Processed   int
	Imported    int
	Skipped     int
	Failed      int
	Entries     []entities.ImportErrorEntry
}

// Advance converts the result into a session advance.
func (r *ChunkResult) Advance() services.ChunkAdvance {
	return services.ChunkAdvance{
		ChunkNumber: r.ChunkNumber,
		StartIndex:  r.StartIndex,
		EndIndex:    r.EndIndex,
		Processed:   r.Processed,
		Imported:    r.Imported,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		Entries:     r.Entries,
	}
}

// ChunkProcessor persists chunks. Records of a chunk are written strictly in
// order inside a single transaction.
type ChunkProcessor struct {
	store      services.RecordStore
	classifier *Classifier
	now        func() time.Time
}

func NewChunkProcessor(store services.RecordStore, classifier *Classifier) *ChunkProcessor {
	return &ChunkProcessor{
		store:      store,
		classifier: classifier,
		now:        time.Now,
	}
}

// Process writes the chunk of job. Duplicates are skipped and record-level
// failures are logged without aborting the transaction. Any other storage
// error rolls the whole chunk back and is returned as *ChunkFatalError.
func (p *ChunkProcessor) Process(ctx context.Context, job ChunkJob) (*ChunkResult, error) {
	chunk := job.Chunk
	logger := logging.FromContext(ctx).With(
		zap.Int("chunk", chunk.Number),
		zap.Int("start_index", chunk.StartIndex),
		zap.Int("end_index", chunk.EndIndex()),
	)

	var (
		result  *ChunkResult
		current = chunk.StartIndex
		touched int
	)
	err := p.store.RunInTx(ctx, func(tx services.RecordTx) error {
		result = &ChunkResult{
			ChunkNumber: chunk.Number,
			StartIndex:  chunk.StartIndex,
			EndIndex:    chunk.EndIndex(),
		}
		for i, rec := range chunk.Records {
			current = rec.Index
			touched = i + 1

			if reason, skip := job.Skip[rec.Index]; skip {
				result.Failed++
				result.Entries = append(result.Entries, p.entry(chunk.Number, rec, CodeSkippedOnResume, reason, entities.SeverityWarning))
				continue
			}

			analysis := job.Extractor.Analyze(rec.Content)
			if recErr := checkRecord(rec, analysis); recErr != nil {
				result.Failed++
				result.Entries = append(result.Entries, p.entry(chunk.Number, rec, recErr.Code, recErr.Reason, entities.SeverityError))
				continue
			}

			exists, err := tx.ExistsByDedupKey(job.UserID, analysis.Key)
			if err != nil {
				return err
			}
			if exists {
				result.Skipped++
				continue
			}

			if err := tx.Insert(p.toEntity(job, rec, analysis)); err != nil {
				if errors.Is(err, services.ErrDuplicateRecord) {
					// Lost a race with a concurrent session of the same owner.
					result.Skipped++
					continue
				}
				return fmt.Errorf("record %d: %w", rec.Index, err)
			}
			result.Imported++
		}
		return nil
	})
	if err != nil {
		rollback := ChunkRollbackInfo{
			ChunkNumber:       chunk.Number,
			Size:              len(chunk.Records),
			StartIndex:        chunk.StartIndex,
			EndIndex:          chunk.EndIndex(),
			Reason:            err.Error(),
			RecordsAffected:   len(chunk.Records),
			FailedRecordIndex: current,
		}
		logger.Warn("chunk rolled back",
			zap.Int("failed_record_index", current),
			zap.Int("records_reached", touched),
			zap.Error(err))
		return nil, &ChunkFatalError{Rollback: rollback, Err: err}
	}

	result.Processed = len(chunk.Records)
	logger.Debug("chunk committed",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// checkRecord catches content that validation lets through but that cannot
// be stored.
func checkRecord(rec CanonicalRecord, analysis tagging.Analysis) *RecordError {
	switch {
	case strings.TrimSpace(rec.Content) == "":
		return &RecordError{Index: rec.Index, Code: CodeEmptyContent, Reason: "content is empty or whitespace only"}
	case utf8.RuneCountInString(rec.Content) > entities.MaxContentLength:
		return &RecordError{
			Index:  rec.Index,
			Code:   CodeContentTooLong,
			Reason: fmt.Sprintf("content is too long (%d characters, max %d)", utf8.RuneCountInString(rec.Content), entities.MaxContentLength),
		}
	case analysis.Key == "":
		return &RecordError{Index: rec.Index, Code: CodeNormalizationMismatch, Reason: "content has no tags after normalization"}
	}
	return nil
}

func (p *ChunkProcessor) entry(chunk int, rec CanonicalRecord, code, message string, severity entities.ErrorSeverity) entities.ImportErrorEntry {
	return entities.ImportErrorEntry{
		RecordIndex:     rec.Index,
		ChunkNumber:     chunk,
		ErrorCode:       code,
		Message:         message,
		ContentSnapshot: utils.Snippet(rec.Content, snapshotLength),
		Severity:        severity,
		Suggestion:      p.classifier.ForCode(code),
		Timestamp:       p.now(),
	}
}

func (p *ChunkProcessor) toEntity(job ChunkJob, rec CanonicalRecord, analysis tagging.Analysis) *entities.Record {
	tags, _ := json.Marshal(analysis.Tags)
	return &entities.Record{
		UserID:               job.UserID,
		Content:              rec.Content,
		Tags:                 datatypes.JSON(tags),
		NormalizedTags:       strings.Join(analysis.Normalized, " "),
		DedupKey:             analysis.Key,
		NormalizationVersion: job.Extractor.Rules().Version,
		SessionID:            job.SessionID,
		SourceIndex:          rec.Index,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
	}
}
