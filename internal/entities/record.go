package entities

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// MaxContentLength is the upper bound on record content, in characters.
const MaxContentLength = 5000

// Record is a single piece of user content together with the tags derived from it.
// The pair (UserID, DedupKey) is unique: two records of one owner never share
// an identical normalized tag set.
type Record struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	UserID               uint           `gorm:"not null;uniqueIndex:idx_records_user_dedup,priority:1" json:"user_id"`
	Content              string         `gorm:"type:text;not null" json:"content"`
	Tags                 datatypes.JSON `json:"tags"`
	NormalizedTags       string         `gorm:"type:text" json:"normalized_tags"`
	DedupKey             string         `gorm:"size:64;not null;uniqueIndex:idx_records_user_dedup,priority:2" json:"-"`
	NormalizationVersion int            `json:"normalization_version"`
	SessionID            string         `gorm:"index;size:36" json:"session_id,omitempty"`
	SourceIndex          int            `json:"source_index"`

	// CreatedAt and UpdatedAt come from the imported payload, not from the database clock.
	CreatedAt  time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
	ImportedAt time.Time `gorm:"autoCreateTime" json:"imported_at"`
}

func (Record) TableName() string {
	return "records"
}

// TagList decodes the stored tag array. A malformed column yields nil.
func (r Record) TagList() []string {
	if len(r.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(r.Tags, &tags); err != nil {
		return nil
	}
	return tags
}
