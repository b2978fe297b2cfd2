package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"manuscript-review-api/config"
	"manuscript-review-api/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobQueue is a durable at-least-once queue. It does not tell a crashed
// running job from one still in progress elsewhere; recovery belongs to the
// worker pool.
type JobQueue struct {
	db  *gorm.DB
	now func() time.Time
}

func NewJobQueue(db *gorm.DB) *JobQueue {
	if db == nil {
		db = config.DB
	}
	return &JobQueue{db: db, now: utcNow}
}

// Enqueue stores a queued job. jobID uniqueness is the caller's job; a
// duplicate is a conflict, not deduplicated.
func (q *JobQueue) Enqueue(ctx context.Context, jobID, projectID, jobType string, payload interface{}) (*models.Job, error) {
	if strings.TrimSpace(jobID) == "" || strings.TrimSpace(projectID) == "" || strings.TrimSpace(jobType) == "" {
		return nil, invalidInput("job id, project id and job type are required")
	}
	job, err := newJob(jobID, projectID, jobType, payload, q.now())
	if err != nil {
		return nil, err
	}
	if err := createJob(q.db.WithContext(ctx), job); err != nil {
		return nil, err
	}
	jobTransitionsTotal.WithLabelValues(string(models.JobQueued)).Inc()
	return job, nil
}

func newJob(jobID, projectID, jobType string, payload interface{}, now time.Time) (*models.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	return &models.Job{
		ID:        jobID,
		ProjectID: projectID,
		JobType:   jobType,
		Payload:   datatypes.JSON(raw),
		Status:    models.JobQueued,
		CreatedAt: now,
	}, nil
}

// createJob inserts a queued job on db, which may be a transaction.
func createJob(db *gorm.DB, job *models.Job) error {
	if err := db.Create(job).Error; err != nil {
		if isDuplicateKey(err) {
			return &ConflictError{Entity: "job", Key: job.ID, Err: err}
		}
		return err
	}
	return nil
}

// MarkRunning stamps startedAt and sets running. The prior state is not
// checked, so a finished job can be put back to running for a manual re-run.
func (q *JobQueue) MarkRunning(ctx context.Context, jobID string) error {
	res := q.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":       string(models.JobRunning),
			"started_at":   q.now(),
			"completed_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	jobTransitionsTotal.WithLabelValues(string(models.JobRunning)).Inc()
	return nil
}

// Claim moves a queued job to running. It returns false when another
// worker got there first.
func (q *JobQueue) Claim(ctx context.Context, jobID string) (bool, error) {
	res := q.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, string(models.JobQueued)).
		Updates(map[string]interface{}{
			"status":     string(models.JobRunning),
			"started_at": q.now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	jobTransitionsTotal.WithLabelValues(string(models.JobRunning)).Inc()
	return true, nil
}

// Complete stamps completedAt and records the final status, completed or failed.
func (q *JobQueue) Complete(ctx context.Context, jobID string, status models.JobStatus) error {
	if status == "" {
		status = models.JobCompleted
	}
	if !status.Finished() {
		return invalidInput("job cannot complete with status %q", status)
	}
	res := q.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":       string(status),
			"completed_at": q.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	jobTransitionsTotal.WithLabelValues(string(status)).Inc()
	return nil
}

// PendingJobs returns queued and running jobs, oldest first. On process start
// a running job means the previous process died while executing it.
func (q *JobQueue) PendingJobs(ctx context.Context) ([]models.Job, error) {
	jobs := make([]models.Job, 0)
	err := q.db.WithContext(ctx).
		Where("status IN ?", []string{string(models.JobQueued), string(models.JobRunning)}).
		Order("created_at ASC").
		Order("id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob returns a job by id.
func (q *JobQueue) GetJob(ctx context.Context, jobID string) (*models.Job, bool, error) {
	var job models.Job
	if err := q.db.WithContext(ctx).Where("id = ?", jobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &job, true, nil
}

// DecodePayload decodes a job payload into dst. Payloads that do not match
// dst are reported as ErrUnreadablePayload.
func DecodePayload(job *models.Job, dst interface{}) error {
	if job == nil || len(job.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrUnreadablePayload)
	}
	dec := json.NewDecoder(strings.NewReader(string(job.Payload)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: job %s (%s): %v", ErrUnreadablePayload, job.ID, job.JobType, err)
	}
	return nil
}
