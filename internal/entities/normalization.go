package entities

import "time"

// NormalizationSettings holds a user's tag normalization rules.
// Version is bumped on every change so that records and sessions can
// record which rules produced their normalized tags.
type NormalizationSettings struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"uniqueIndex" json:"user_id"`
	CaseSensitive bool      `gorm:"default:false" json:"case_sensitive"`
	RemoveAccents bool      `gorm:"default:false" json:"remove_accents"`
	Version       int       `gorm:"default:1" json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (NormalizationSettings) TableName() string {
	return "normalization_settings"
}
