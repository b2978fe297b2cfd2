package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every table owned by the review core.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Researcher{},
		&APIKey{},
		&KeyUsageEvent{},
		&WorkflowOwnership{},
		&Submission{},
		&SubmissionRound{},
		&Job{},
	)
}
