package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionStatus is a state of the manuscript review lifecycle.
type SubmissionStatus string

const (
	SubmissionPending          SubmissionStatus = "pending"
	SubmissionDeskReview       SubmissionStatus = "desk_review"
	SubmissionReviewing        SubmissionStatus = "reviewing"
	SubmissionAwaitingRevision SubmissionStatus = "awaiting_revision"
	SubmissionAccepted         SubmissionStatus = "accepted"
	SubmissionRejected         SubmissionStatus = "rejected"
	SubmissionExpired          SubmissionStatus = "expired"
)

// DefaultMaxRounds is fixed on every new submission.
const DefaultMaxRounds = 3

// FinalDecisionExpired is recorded by the overdue sweep.
const FinalDecisionExpired = "EXPIRED"

var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionPending:          {SubmissionDeskReview},
	SubmissionDeskReview:       {SubmissionReviewing, SubmissionRejected},
	SubmissionReviewing:        {SubmissionAwaitingRevision, SubmissionAccepted, SubmissionRejected},
	SubmissionAwaitingRevision: {SubmissionReviewing, SubmissionExpired},
}

// Valid reports whether s is one of the known statuses.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPending, SubmissionDeskReview, SubmissionReviewing, SubmissionAwaitingRevision,
		SubmissionAccepted, SubmissionRejected, SubmissionExpired:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionAccepted || s == SubmissionRejected || s == SubmissionExpired
}

// CanTransitionTo reports whether next is a legal edge from s. Non-terminal
// states may transition to themselves to refresh round or deadline fields.
func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range submissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Submission is a manuscript moving through review rounds.
// RevisionDeadline is set if and only if Status is awaiting_revision.
type Submission struct {
	ID               string           `gorm:"primaryKey;column:id;type:varchar(64)" json:"id"`
	ResearcherID     *string          `gorm:"column:researcher_id;type:varchar(64);index" json:"researcher_id,omitempty"`
	APIKey           string           `gorm:"column:api_key;type:varchar(64);not null;index" json:"-"`
	Title            string           `gorm:"column:title;type:varchar(500);not null" json:"title"`
	CategoryMajor    string           `gorm:"column:category_major;type:varchar(128)" json:"category_major"`
	CategorySubfield string           `gorm:"column:category_subfield;type:varchar(128)" json:"category_subfield"`
	Status           SubmissionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	CurrentRound     int              `gorm:"column:current_round;not null" json:"current_round"`
	MaxRounds        int              `gorm:"column:max_rounds;not null" json:"max_rounds"`
	RevisionDeadline *time.Time       `gorm:"column:revision_deadline;index" json:"revision_deadline,omitempty"`
	DeadlineHours    int              `gorm:"column:deadline_hours;not null" json:"deadline_hours"`
	FinalDecision    *string          `gorm:"column:final_decision;type:varchar(64)" json:"final_decision,omitempty"`
	FinalScore       *float64         `gorm:"column:final_score" json:"final_score,omitempty"`
	CreatedAt        time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

func (Submission) TableName() string { return "submissions" }

// SubmissionRound is one completed review cycle. Rows are never updated.
type SubmissionRound struct {
	ID                uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	SubmissionID      string         `gorm:"column:submission_id;type:varchar(64);not null;uniqueIndex:idx_rounds_submission_number,priority:1" json:"submission_id"`
	RoundNumber       int            `gorm:"column:round_number;not null;uniqueIndex:idx_rounds_submission_number,priority:2" json:"round_number"`
	ManuscriptVersion string         `gorm:"column:manuscript_version;type:varchar(64)" json:"manuscript_version"`
	WordCount         int            `gorm:"column:word_count;not null" json:"word_count"`
	Reviews           datatypes.JSON `gorm:"column:reviews" json:"-"`
	OverallAverage    float64        `gorm:"column:overall_average" json:"overall_average"`
	ModeratorDecision datatypes.JSON `gorm:"column:moderator_decision" json:"-"`
	StartedAt         time.Time      `gorm:"column:started_at" json:"started_at"`
	CompletedAt       time.Time      `gorm:"column:completed_at" json:"completed_at"`
}

func (SubmissionRound) TableName() string { return "submission_rounds" }
