package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"manuscript-review-api/models"
)

// Job types understood by this service.
const (
	JobTypeDeskReview  = "desk_review"
	JobTypeReview      = "review"
	JobTypeRoundResult = "round_result"
)

// ReviewJobPayload asks the review generator to run a round for a submission.
// It is consumed by the external review workers.
type ReviewJobPayload struct {
	SchemaVersion     int    `json:"schema_version"`
	SubmissionID      string `json:"submission_id"`
	RoundNumber       int    `json:"round_number"`
	ManuscriptVersion string `json:"manuscript_version,omitempty"`
	WordCount         int    `json:"word_count,omitempty"`
}

// RoundResultPayload carries a finished round back into the lifecycle engine.
type RoundResultPayload struct {
	SchemaVersion     int                      `json:"schema_version"`
	SubmissionID      string                   `json:"submission_id"`
	RoundNumber       int                      `json:"round_number"`
	ManuscriptVersion string                   `json:"manuscript_version,omitempty"`
	WordCount         int                      `json:"word_count,omitempty"`
	Reviews           []models.ReviewRecord    `json:"reviews"`
	OverallAverage    float64                  `json:"overall_average"`
	ModeratorDecision models.ModeratorDecision `json:"moderator_decision"`
	NextStatus        models.SubmissionStatus  `json:"next_status"`
	RevisionDeadline  *time.Time               `json:"revision_deadline,omitempty"`
	FinalScore        *float64                 `json:"final_score,omitempty"`
	StartedAt         *time.Time               `json:"started_at,omitempty"`
}

// NewRoundResultHandler applies round_result jobs with RecordRound. A replay
// of a job whose round was already committed is treated as done.
func NewRoundResultHandler(submissions *SubmissionService) JobHandler {
	return func(ctx context.Context, job models.Job) error {
		var p RoundResultPayload
		if err := DecodePayload(&job, &p); err != nil {
			return err
		}
		if p.SchemaVersion > models.PayloadSchemaVersion {
			return fmt.Errorf("%w: schema_version %d", ErrUnreadablePayload, p.SchemaVersion)
		}

		detail, found, err := submissions.GetSubmission(ctx, p.SubmissionID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("submission %s: %w", p.SubmissionID, ErrNotFound)
		}

		update := StatusUpdate{Status: p.NextStatus, FinalScore: p.FinalScore}
		switch p.NextStatus {
		case models.SubmissionAwaitingRevision:
			deadline := p.RevisionDeadline
			if deadline == nil {
				d := submissions.now().Add(time.Duration(detail.DeadlineHours) * time.Hour)
				deadline = &d
			}
			update.RevisionDeadline = deadline
		case models.SubmissionAccepted, models.SubmissionRejected:
			decision := strings.TrimSpace(p.ModeratorDecision.Decision)
			if decision == "" {
				decision = strings.ToUpper(string(p.NextStatus))
			}
			update.FinalDecision = &decision
		}

		input := RoundInput{
			SubmissionID:      p.SubmissionID,
			RoundNumber:       p.RoundNumber,
			ManuscriptVersion: p.ManuscriptVersion,
			WordCount:         p.WordCount,
			Reviews:           p.Reviews,
			OverallAverage:    p.OverallAverage,
			ModeratorDecision: p.ModeratorDecision,
		}
		if p.StartedAt != nil {
			input.StartedAt = *p.StartedAt
		}

		_, _, err = submissions.RecordRound(ctx, input, update)
		if errors.Is(err, ErrConflict) && roundRecorded(detail, p.RoundNumber) {
			log.Printf("round %d of submission %s already recorded; job %s replayed", p.RoundNumber, p.SubmissionID, job.ID)
			return nil
		}
		return err
	}
}

func roundRecorded(detail *SubmissionDetail, roundNumber int) bool {
	for _, r := range detail.Rounds {
		if r.RoundNumber == roundNumber {
			return true
		}
	}
	return false
}
