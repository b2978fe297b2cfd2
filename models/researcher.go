package models

import "time"

// ApplicationStatus is shared by researcher profiles and their applications.
type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationApproved  ApplicationStatus = "approved"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationSuspended ApplicationStatus = "suspended"
)

// Researcher is the slice of the externally managed profile the core reads:
// existence and approval status.
type Researcher struct {
	ID          string            `gorm:"primaryKey;column:id;type:varchar(64)" json:"id"`
	DisplayName string            `gorm:"column:display_name;type:varchar(255)" json:"display_name"`
	Status      ApplicationStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CreatedAt   time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

func (Researcher) TableName() string { return "researchers" }
