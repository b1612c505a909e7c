package importers

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/tagging"
)

// Version is the schema version of an import bundle.
type Version string

const (
	Version1 Version = "1.0"
	Version2 Version = "2.0"
)

// Valid reports whether v is a recognized schema version.
func (v Version) Valid() bool {
	return v == Version1 || v == Version2
}

// CanonicalRecord is an import record after migration. Index is the record's
// position in the input and never changes.
type CanonicalRecord struct {
	Index     int       `json:"-"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Bundle is a validated and migrated import payload.
type Bundle struct {
	Version  Version
	Records  []CanonicalRecord
	Metadata map[string]any
	// Rules holds metadata.normalizationRules when the bundle carries them.
	Rules *tagging.Rules
}

// stagePayload encodes the migrated records of a session for resume.
func stagePayload(sessionID string, bundle *Bundle) (*entities.ImportPayload, error) {
	data, err := json.Marshal(bundle.Records)
	if err != nil {
		return nil, fmt.Errorf("encode staged records: %w", err)
	}
	return &entities.ImportPayload{
		SessionID:   sessionID,
		Version:     string(bundle.Version),
		RecordCount: len(bundle.Records),
		Records:     datatypes.JSON(data),
	}, nil
}

// unstagePayload restores staged records, reassigning indexes by position.
func unstagePayload(payload *entities.ImportPayload) ([]CanonicalRecord, error) {
	var records []CanonicalRecord
	if err := json.Unmarshal(payload.Records, &records); err != nil {
		return nil, fmt.Errorf("decode staged records: %w", err)
	}
	if len(records) != payload.RecordCount {
		return nil, fmt.Errorf("staged payload holds %d records, expected %d", len(records), payload.RecordCount)
	}
	for i := range records {
		records[i].Index = i
	}
	return records, nil
}
