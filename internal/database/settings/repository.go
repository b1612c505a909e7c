// Package settings provides database operations for per-user normalization rules.
//
// # Usage
//
//	repo := settings.NewRepository(db)
//	rules, err := repo.GetNormalizationSettings(userID)
//	rules, err = repo.SetNormalizationSettings(userID, true, false)
package settings

import (
	"errors"

	"gorm.io/gorm"

	"github.com/mrlokans/tagnotes/internal/entities"
	"github.com/mrlokans/tagnotes/internal/services"
)

var _ services.NormalizationRulesProvider = (*Repository)(nil)

// Repository handles all settings database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new settings repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetNormalizationSettings returns the user's rules, or the defaults
// (case-insensitive, accents kept, version 1) when none were saved.
func (r *Repository) GetNormalizationSettings(userID uint) (*entities.NormalizationSettings, error) {
	var settings entities.NormalizationSettings
	err := r.db.Where("user_id = ?", userID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &entities.NormalizationSettings{UserID: userID, Version: 1}, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// SetNormalizationSettings creates or updates the user's rules. The version is
// bumped only when a rule actually changes.
func (r *Repository) SetNormalizationSettings(userID uint, caseSensitive, removeAccents bool) (*entities.NormalizationSettings, error) {
	var settings entities.NormalizationSettings
	result := r.db.Where("user_id = ?", userID).First(&settings)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		settings = entities.NormalizationSettings{
			UserID:        userID,
			CaseSensitive: caseSensitive,
			RemoveAccents: removeAccents,
			Version:       1,
		}
		// The implicit defaults are version 1; any deviation starts at 2.
		if caseSensitive || removeAccents {
			settings.Version = 2
		}
		if err := r.db.Create(&settings).Error; err != nil {
			return nil, err
		}
		return &settings, nil
	} else if result.Error != nil {
		return nil, result.Error
	}

	if settings.CaseSensitive == caseSensitive && settings.RemoveAccents == removeAccents {
		return &settings, nil
	}

	settings.CaseSensitive = caseSensitive
	settings.RemoveAccents = removeAccents
	settings.Version++
	if err := r.db.Save(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}
