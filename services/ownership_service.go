package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"manuscript-review-api/config"
	"manuscript-review-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OwnershipResult tells the caller whether a binding was stored. Recording
// ownership never aborts the caller's operation; the caller decides whether
// a failure is worth logging.
type OwnershipResult struct {
	ProjectID string
	Recorded  bool
	Err       error
}

// OwnershipService binds external project identifiers to the key and
// researcher that started them. Because bindings are best-effort, listings
// are an index for authorization and display, not authoritative membership.
type OwnershipService struct {
	db     *gorm.DB
	access *AccessService
	now    func() time.Time
}

func NewOwnershipService(db *gorm.DB, access *AccessService) *OwnershipService {
	if db == nil {
		db = config.DB
	}
	if access == nil {
		access = NewAccessService(db)
	}
	return &OwnershipService{db: db, access: access, now: utcNow}
}

// RecordOwnership upserts projectID -> (apiKey, researcher). The last claim wins.
func (s *OwnershipService) RecordOwnership(ctx context.Context, projectID, apiKey string) OwnershipResult {
	result := OwnershipResult{ProjectID: projectID}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" || strings.TrimSpace(apiKey) == "" {
		result.Err = invalidInput("project id and api key are required")
		return result
	}

	researcherID, err := s.access.ResearcherForKey(ctx, apiKey)
	if err != nil {
		result.Err = fmt.Errorf("resolve researcher for key: %w", err)
		return result
	}

	row := &models.WorkflowOwnership{
		ProjectID:    projectID,
		APIKey:       apiKey,
		ResearcherID: researcherID,
		CreatedAt:    s.now(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"api_key", "researcher_id", "created_at"}),
	}).Create(row).Error
	if err != nil {
		result.Err = fmt.Errorf("record ownership of %s: %w", projectID, err)
		return result
	}
	result.Recorded = true
	return result
}

// WorkflowsForResearcher lists bindings owned by a researcher, newest first.
func (s *OwnershipService) WorkflowsForResearcher(ctx context.Context, researcherID string) ([]models.WorkflowOwnership, error) {
	return s.list(ctx, "researcher_id = ?", researcherID)
}

// WorkflowsForKey lists bindings owned by a key, newest first.
func (s *OwnershipService) WorkflowsForKey(ctx context.Context, apiKey string) ([]models.WorkflowOwnership, error) {
	return s.list(ctx, "api_key = ?", apiKey)
}

func (s *OwnershipService) list(ctx context.Context, where string, arg string) ([]models.WorkflowOwnership, error) {
	rows := make([]models.WorkflowOwnership, 0)
	err := s.db.WithContext(ctx).
		Where(where, arg).
		Order("created_at DESC").
		Order("project_id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
