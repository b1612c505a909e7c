// Package records provides database operations for user records.
//
// The repository implements services.RecordStore: each chunk of an import runs
// inside RunInTx, and every insert is wrapped in a savepoint so that a unique
// violation rolls back only that record.
//
// # Interface Implementation
//
//	var _ services.RecordStore = (*Repository)(nil)
//	var _ services.RecordReader = (*Repository)(nil)
//
// # Usage
//
//	repo := records.NewRepository(db)
//	err := repo.RunInTx(ctx, func(tx services.RecordTx) error {
//		return tx.Insert(record)
//	})
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/services"
)

var (
	_ services.RecordStore  = (*Repository)(nil)
	_ services.RecordReader = (*Repository)(nil)
)

// Repository handles all record database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new records repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RunInTx runs fn inside a single transaction.
func (r *Repository) RunInTx(ctx context.Context, fn func(tx services.RecordTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txRepository{db: tx})
	})
}

// ListRecords returns all records of a user in insertion order.
func (r *Repository) ListRecords(userID uint) ([]entities.Record, error) {
	var records []entities.Record
	err := r.db.Where("user_id = ?", userID).Order("id ASC").Find(&records).Error
	return records, err
}

// CountRecords returns the number of records a user owns.
func (r *Repository) CountRecords(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&entities.Record{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// GetByDedupKey returns the record of a user with the given dedup key.
func (r *Repository) GetByDedupKey(userID uint, dedupKey string) (*entities.Record, error) {
	var record entities.Record
	err := r.db.Where("user_id = ? AND dedup_key = ?", userID, dedupKey).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// txRepository is the transaction-scoped view handed to RunInTx callbacks.
type txRepository struct {
	db  *gorm.DB
	seq int
}

// ExistsByDedupKey uses the (user_id, dedup_key) unique index.
func (t *txRepository) ExistsByDedupKey(userID uint, dedupKey string) (bool, error) {
	var count int64
	err := t.db.Model(&entities.Record{}).
		Where("user_id = ? AND dedup_key = ?", userID, dedupKey).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup dedup key: %w", err)
	}
	return count > 0, nil
}

// Insert creates the record under a savepoint. A unique violation is rolled
// back to the savepoint and reported as services.ErrDuplicateRecord. The
// savepoint is released either way, so a chunk never stacks more than one.
func (t *txRepository) Insert(record *entities.Record) error {
	t.seq++
	savepoint := fmt.Sprintf("sp_record_%d", t.seq)

	if err := t.db.SavePoint(savepoint).Error; err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	if err := t.db.Create(record).Error; err != nil {
		if rbErr := t.db.RollbackTo(savepoint).Error; rbErr != nil {
			return fmt.Errorf("rollback to savepoint after %v: %w", err, rbErr)
		}
		if relErr := t.release(savepoint); relErr != nil {
			return relErr
		}
		if isUniqueViolation(err) {
			return services.ErrDuplicateRecord
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return t.release(savepoint)
}

// release drops the savepoint without undoing its writes. gorm has no
// helper for it.
func (t *txRepository) release(savepoint string) error {
	if err := t.db.Exec("RELEASE SAVEPOINT " + savepoint).Error; err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Connections opened without TranslateError report the raw driver message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
