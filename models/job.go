package models

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatus moves strictly queued -> running -> completed|failed.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Finished reports whether s ends a job.
func (s JobStatus) Finished() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is a durable unit of asynchronous work tied to a project.
type Job struct {
	ID          string         `gorm:"primaryKey;column:id;type:varchar(64)" json:"id"`
	ProjectID   string         `gorm:"column:project_id;type:varchar(128);not null;index" json:"project_id"`
	JobType     string         `gorm:"column:job_type;type:varchar(64);not null" json:"job_type"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload"`
	Status      JobStatus      `gorm:"column:status;type:varchar(16);not null;index:idx_jobs_status_created,priority:1" json:"status"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null;index:idx_jobs_status_created,priority:2" json:"created_at"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Job) TableName() string { return "jobs" }
