package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"manuscript-review-api/config"
	"manuscript-review-api/models"
	"manuscript-review-api/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultDeadlineHours = 24

// SubmissionInput describes a new manuscript.
type SubmissionInput struct {
	ResearcherID     *string
	APIKey           string `validate:"required"`
	Title            string `validate:"required,max=500"`
	CategoryMajor    string `validate:"max=128"`
	CategorySubfield string `validate:"max=128"`
	DeadlineHours    int    `validate:"gte=0"`
}

// StatusUpdate is one transition request. Nil fields are left unchanged,
// except RevisionDeadline which is cleared for every status but
// awaiting_revision.
type StatusUpdate struct {
	Status           models.SubmissionStatus
	RevisionDeadline *time.Time
	FinalDecision    *string
	FinalScore       *float64
	CurrentRound     *int
}

// RoundInput is a finished review round.
type RoundInput struct {
	SubmissionID      string `validate:"required"`
	RoundNumber       int    `validate:"gte=1"`
	ManuscriptVersion string `validate:"max=64"`
	WordCount         int    `validate:"gte=0"`
	Reviews           []models.ReviewRecord
	OverallAverage    float64
	ModeratorDecision models.ModeratorDecision
	StartedAt         time.Time
}

// RoundView is a stored round with its structured columns decoded.
type RoundView struct {
	models.SubmissionRound
	Reviews           models.ReviewSet    `json:"reviews"`
	ModeratorDecision models.DecisionView `json:"moderator_decision"`
}

// SubmissionDetail is a submission with its rounds in ascending order.
type SubmissionDetail struct {
	models.Submission
	Rounds []RoundView `json:"rounds"`
}

// SubmissionService owns the submission state machine, round records and
// the overdue expiry sweep.
type SubmissionService struct {
	db          *gorm.DB
	researchers ResearcherDirectory
	now         func() time.Time
}

func NewSubmissionService(db *gorm.DB, researchers ResearcherDirectory) *SubmissionService {
	if db == nil {
		db = config.DB
	}
	if researchers == nil {
		researchers = NewGormResearcherDirectory(db)
	}
	return &SubmissionService{db: db, researchers: researchers, now: utcNow}
}

// CreateSubmission stores a new pending submission at round 0.
func (s *SubmissionService) CreateSubmission(ctx context.Context, input SubmissionInput) (*models.Submission, error) {
	input.Title = utils.SanitizeInput(input.Title)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.DeadlineHours == 0 {
		input.DeadlineHours = defaultDeadlineHours
	}
	if input.ResearcherID != nil {
		approved, err := s.researchers.IsApproved(ctx, *input.ResearcherID)
		if err != nil {
			return nil, fmt.Errorf("check researcher %s: %w", *input.ResearcherID, err)
		}
		if !approved {
			return nil, invalidInput("researcher %s has no approved profile", *input.ResearcherID)
		}
	}

	now := s.now()
	sub := &models.Submission{
		ID:               NewID(),
		ResearcherID:     input.ResearcherID,
		APIKey:           input.APIKey,
		Title:            input.Title,
		CategoryMajor:    input.CategoryMajor,
		CategorySubfield: input.CategorySubfield,
		Status:           models.SubmissionPending,
		CurrentRound:     0,
		MaxRounds:        models.DefaultMaxRounds,
		DeadlineHours:    input.DeadlineHours,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, &ConflictError{Entity: "submission", Key: sub.ID, Err: err}
		}
		return nil, err
	}
	return sub, nil
}

// GetSubmission loads a submission and its rounds. Rounds whose structured
// columns cannot be decoded are still returned, flagged unreadable.
func (s *SubmissionService) GetSubmission(ctx context.Context, id string) (*SubmissionDetail, bool, error) {
	db := s.db.WithContext(ctx)
	var sub models.Submission
	if err := db.Where("id = ?", id).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var rounds []models.SubmissionRound
	if err := db.Where("submission_id = ?", id).Order("round_number ASC").Find(&rounds).Error; err != nil {
		return nil, false, err
	}

	detail := &SubmissionDetail{Submission: sub, Rounds: make([]RoundView, 0, len(rounds))}
	for _, r := range rounds {
		detail.Rounds = append(detail.Rounds, RoundView{
			SubmissionRound:   r,
			Reviews:           models.DecodeReviews(r.Reviews),
			ModeratorDecision: models.DecodeDecision(r.ModeratorDecision),
		})
	}
	return detail, true, nil
}

// AdvanceStatus moves a submission along a legal edge of the state machine.
func (s *SubmissionService) AdvanceStatus(ctx context.Context, id string, update StatusUpdate) (*models.Submission, error) {
	var out *models.Submission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.advance(tx, id, update)
		out = sub
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveRound appends a round. A round number that already exists, or that
// does not follow the latest round, is a conflict.
func (s *SubmissionService) SaveRound(ctx context.Context, input RoundInput) (*models.SubmissionRound, error) {
	var out *models.SubmissionRound
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		round, err := s.saveRound(tx, input)
		out = round
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordRound saves a round and advances the submission in one transaction.
// When update.CurrentRound is nil it is set to the saved round number.
func (s *SubmissionService) RecordRound(ctx context.Context, input RoundInput, update StatusUpdate) (*models.SubmissionRound, *models.Submission, error) {
	var (
		round *models.SubmissionRound
		sub   *models.Submission
	)
	if update.CurrentRound == nil {
		n := input.RoundNumber
		update.CurrentRound = &n
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if round, err = s.saveRound(tx, input); err != nil {
			return err
		}
		sub, err = s.advance(tx, input.SubmissionID, update)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return round, sub, nil
}

// RevisionInput describes a revised manuscript sent back to review.
type RevisionInput struct {
	JobID             string
	ManuscriptVersion string `validate:"max=64"`
	WordCount         int    `validate:"gte=0"`
}

// SubmitRevision returns an awaiting_revision submission to reviewing and
// queues the review job for its next round in the same transaction.
func (s *SubmissionService) SubmitRevision(ctx context.Context, id string, input RevisionInput) (*models.Submission, *models.Job, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.JobID == "" {
		input.JobID = NewID()
	}

	var (
		sub *models.Submission
		job *models.Job
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Submission
		if err := tx.Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("submission %s: %w", id, ErrNotFound)
			}
			return err
		}
		if current.Status != models.SubmissionAwaitingRevision {
			return &IllegalStateError{
				Entity:    "submission",
				ID:        id,
				Current:   string(current.Status),
				Requested: string(models.SubmissionReviewing),
			}
		}
		if current.CurrentRound >= current.MaxRounds {
			return fmt.Errorf("%w: submission %s has used all %d rounds", ErrIllegalTransition, id, current.MaxRounds)
		}

		var err error
		if sub, err = s.advance(tx, id, StatusUpdate{Status: models.SubmissionReviewing}); err != nil {
			return err
		}
		job, err = newJob(input.JobID, sub.ID, JobTypeReview, ReviewJobPayload{
			SchemaVersion:     models.PayloadSchemaVersion,
			SubmissionID:      sub.ID,
			RoundNumber:       sub.CurrentRound + 1,
			ManuscriptVersion: input.ManuscriptVersion,
			WordCount:         input.WordCount,
		}, s.now())
		if err != nil {
			return err
		}
		return createJob(tx, job)
	})
	if err != nil {
		return nil, nil, err
	}
	jobTransitionsTotal.WithLabelValues(string(models.JobQueued)).Inc()
	return sub, job, nil
}

// ExpireOverdue expires every awaiting_revision submission whose deadline is
// strictly in the past. Running it again immediately finds nothing.
func (s *SubmissionService) ExpireOverdue(ctx context.Context) (int64, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("status = ? AND revision_deadline IS NOT NULL AND revision_deadline < ?",
			string(models.SubmissionAwaitingRevision), now).
		Updates(map[string]interface{}{
			"status":            string(models.SubmissionExpired),
			"final_decision":    models.FinalDecisionExpired,
			"revision_deadline": nil,
			"updated_at":        now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	submissionsExpiredTotal.Add(float64(res.RowsAffected))
	return res.RowsAffected, nil
}

func (s *SubmissionService) advance(tx *gorm.DB, id string, update StatusUpdate) (*models.Submission, error) {
	if !update.Status.Valid() {
		return nil, invalidInput("unknown submission status %q", update.Status)
	}

	var sub models.Submission
	if err := tx.Where("id = ?", id).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if !sub.Status.CanTransitionTo(update.Status) {
		return nil, &IllegalStateError{
			Entity:    "submission",
			ID:        id,
			Current:   string(sub.Status),
			Requested: string(update.Status),
		}
	}

	now := s.now()
	updates := map[string]interface{}{
		"status":     string(update.Status),
		"updated_at": now,
	}
	if update.Status == models.SubmissionAwaitingRevision {
		if update.RevisionDeadline == nil {
			return nil, fmt.Errorf("%w: awaiting_revision requires a deadline", ErrInvalidDeadline)
		}
		updates["revision_deadline"] = update.RevisionDeadline.UTC()
	} else {
		if update.RevisionDeadline != nil {
			return nil, fmt.Errorf("%w: only awaiting_revision carries a deadline", ErrInvalidDeadline)
		}
		updates["revision_deadline"] = nil
	}
	if update.FinalDecision != nil {
		updates["final_decision"] = *update.FinalDecision
	}
	if update.FinalScore != nil {
		updates["final_score"] = *update.FinalScore
	}
	round := sub.CurrentRound
	if update.CurrentRound != nil {
		round = *update.CurrentRound
		if round < sub.CurrentRound || round > sub.MaxRounds {
			return nil, invalidInput("current round %d outside [%d, %d]", round, sub.CurrentRound, sub.MaxRounds)
		}
		updates["current_round"] = round
	}
	// The last round has no revision after it.
	if update.Status == models.SubmissionAwaitingRevision && round >= sub.MaxRounds {
		return nil, fmt.Errorf("%w: round %d of %d must end accepted or rejected", ErrIllegalTransition, round, sub.MaxRounds)
	}

	// The status guard turns a concurrent transition into an illegal-state error
	// instead of a lost update.
	res := tx.Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, string(sub.Status)).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, &IllegalStateError{
			Entity:    "submission",
			ID:        id,
			Current:   "changed concurrently from " + string(sub.Status),
			Requested: string(update.Status),
		}
	}

	var fresh models.Submission
	if err := tx.Where("id = ?", id).First(&fresh).Error; err != nil {
		return nil, err
	}
	return &fresh, nil
}

func (s *SubmissionService) saveRound(tx *gorm.DB, input RoundInput) (*models.SubmissionRound, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var count int64
	if err := tx.Model(&models.Submission{}).Where("id = ?", input.SubmissionID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("submission %s: %w", input.SubmissionID, ErrNotFound)
	}

	roundKey := input.SubmissionID + "/" + strconv.Itoa(input.RoundNumber)
	var latest struct{ Latest *int }
	if err := tx.Model(&models.SubmissionRound{}).
		Select("MAX(round_number) AS latest").
		Where("submission_id = ?", input.SubmissionID).
		Scan(&latest).Error; err != nil {
		return nil, err
	}
	if latest.Latest != nil && input.RoundNumber <= *latest.Latest {
		return nil, &ConflictError{Entity: "submission round", Key: roundKey}
	}

	reviews := input.Reviews
	if reviews == nil {
		reviews = []models.ReviewRecord{}
	}
	for i := range reviews {
		if reviews[i].SchemaVersion == 0 {
			reviews[i].SchemaVersion = models.PayloadSchemaVersion
		}
	}
	decision := input.ModeratorDecision
	if decision.SchemaVersion == 0 {
		decision.SchemaVersion = models.PayloadSchemaVersion
	}
	reviewsJSON, err := json.Marshal(reviews)
	if err != nil {
		return nil, fmt.Errorf("encode reviews: %w", err)
	}
	decisionJSON, err := json.Marshal(decision)
	if err != nil {
		return nil, fmt.Errorf("encode moderator decision: %w", err)
	}

	now := s.now()
	startedAt := input.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	round := &models.SubmissionRound{
		SubmissionID:      input.SubmissionID,
		RoundNumber:       input.RoundNumber,
		ManuscriptVersion: input.ManuscriptVersion,
		WordCount:         input.WordCount,
		Reviews:           datatypes.JSON(reviewsJSON),
		OverallAverage:    input.OverallAverage,
		ModeratorDecision: datatypes.JSON(decisionJSON),
		StartedAt:         startedAt.UTC(),
		CompletedAt:       now,
	}
	if err := tx.Create(round).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, &ConflictError{Entity: "submission round", Key: roundKey, Err: err}
		}
		return nil, err
	}
	return round, nil
}
