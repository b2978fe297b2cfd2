package models

import "time"

// APIKey is a bearer token issued to a client. Keys without a researcher are
// legacy or admin keys.
type APIKey struct {
	Key              string     `gorm:"primaryKey;column:api_key;type:varchar(64)" json:"key"`
	ResearcherID     *string    `gorm:"column:researcher_id;type:varchar(64);index" json:"researcher_id,omitempty"`
	Label            string     `gorm:"column:label;type:varchar(255)" json:"label"`
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`
	RevokedAt        *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
	RevocationReason *string    `gorm:"column:revocation_reason;type:varchar(255)" json:"revocation_reason,omitempty"`
	DailyQuota       int        `gorm:"column:daily_quota;not null" json:"daily_quota"`
	IsAdmin          bool       `gorm:"column:is_admin;not null" json:"is_admin"`
}

func (APIKey) TableName() string { return "api_keys" }

// Revoked reports whether the key has been revoked.
func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

// KeyUsageEvent is one metered call. Rows are only ever appended.
type KeyUsageEvent struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	APIKey    string    `gorm:"column:api_key;type:varchar(64);not null;index:idx_usage_key_time,priority:1" json:"api_key"`
	Endpoint  string    `gorm:"column:endpoint;type:varchar(255);not null" json:"endpoint"`
	UsedAt    time.Time `gorm:"column:used_at;not null;index:idx_usage_key_time,priority:2" json:"timestamp"`
	ProjectID *string   `gorm:"column:project_id;type:varchar(128)" json:"project_id,omitempty"`
}

func (KeyUsageEvent) TableName() string { return "key_usage_events" }

// WorkflowOwnership binds an external project to the key that last claimed it.
type WorkflowOwnership struct {
	ProjectID    string    `gorm:"primaryKey;column:project_id;type:varchar(128)" json:"project_id"`
	APIKey       string    `gorm:"column:api_key;type:varchar(64);not null;index" json:"api_key"`
	ResearcherID *string   `gorm:"column:researcher_id;type:varchar(64);index" json:"researcher_id,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (WorkflowOwnership) TableName() string { return "workflow_ownerships" }
