package services

import (
	"context"
	"errors"

	"manuscript-review-api/config"
	"manuscript-review-api/models"

	"gorm.io/gorm"
)

// ResearcherDirectory answers the one question the core asks of the
// externally managed researcher profiles.
type ResearcherDirectory interface {
	IsApproved(ctx context.Context, researcherID string) (bool, error)
}

// GormResearcherDirectory reads the researchers table maintained by the
// profile registration flow.
type GormResearcherDirectory struct {
	db *gorm.DB
}

func NewGormResearcherDirectory(db *gorm.DB) *GormResearcherDirectory {
	if db == nil {
		db = config.DB
	}
	return &GormResearcherDirectory{db: db}
}

// IsApproved reports whether an approved profile exists for researcherID.
func (d *GormResearcherDirectory) IsApproved(ctx context.Context, researcherID string) (bool, error) {
	var row models.Researcher
	err := d.db.WithContext(ctx).Select("id", "status").Where("id = ?", researcherID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return row.Status == models.ApplicationApproved, nil
}
