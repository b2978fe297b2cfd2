package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// PayloadSchemaVersion is written into every structured record this service persists.
const PayloadSchemaVersion = 1

// ReviewRecord is one reviewer's report for a round. The review generator
// owns the shape of a review; fields this service does not name are kept in
// Extra and written back unchanged.
type ReviewRecord struct {
	SchemaVersion  int                        `json:"schema_version"`
	ReviewerID     string                     `json:"reviewer_id"`
	ReviewerRole   string                     `json:"reviewer_role,omitempty"`
	Scores         map[string]float64         `json:"scores,omitempty"`
	Overall        float64                    `json:"overall"`
	Recommendation string                     `json:"recommendation,omitempty"`
	Comments       string                     `json:"comments,omitempty"`
	Extra          map[string]json.RawMessage `json:"-"`
}

type reviewRecordFields ReviewRecord

var reviewRecordKeys = []string{
	"schema_version", "reviewer_id", "reviewer_role", "scores",
	"overall", "recommendation", "comments",
}

func (r *ReviewRecord) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	var known reviewRecordFields
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range all {
		if isReviewRecordKey(k) {
			delete(all, k)
		}
	}
	*r = ReviewRecord(known)
	r.Extra = nil
	if len(all) > 0 {
		r.Extra = all
	}
	return nil
}

func (r ReviewRecord) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(reviewRecordFields(r))
	if err != nil || len(r.Extra) == 0 {
		return known, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	merged := make(map[string]json.RawMessage, len(r.Extra)+len(fields))
	for k, v := range r.Extra {
		if !isReviewRecordKey(k) {
			merged[k] = v
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// isReviewRecordKey matches the way encoding/json binds keys to fields.
func isReviewRecordKey(k string) bool {
	for _, known := range reviewRecordKeys {
		if strings.EqualFold(k, known) {
			return true
		}
	}
	return false
}

// ModeratorDecision captures the outcome of a round.
type ModeratorDecision struct {
	SchemaVersion int      `json:"schema_version"`
	Decision      string   `json:"decision"`
	Rationale     string   `json:"rationale,omitempty"`
	Score         *float64 `json:"score,omitempty"`
}

// ReviewSet is the decoded reviews column. When the stored text cannot be
// decoded, Unreadable is set and Raw carries the text unchanged.
type ReviewSet struct {
	Records    []ReviewRecord `json:"records"`
	Raw        string         `json:"raw,omitempty"`
	Unreadable bool           `json:"unreadable,omitempty"`
}

// DecisionView is the decoded moderator_decision column.
type DecisionView struct {
	Decision   *ModeratorDecision `json:"decision,omitempty"`
	Raw        string             `json:"raw,omitempty"`
	Unreadable bool               `json:"unreadable,omitempty"`
}

// DecodeReviews never fails: malformed input, or a record written by a newer
// schema, comes back as an unreadable set.
func DecodeReviews(raw []byte) ReviewSet {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return ReviewSet{Records: []ReviewRecord{}}
	}
	var records []ReviewRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return ReviewSet{Records: []ReviewRecord{}, Raw: string(raw), Unreadable: true}
	}
	for _, r := range records {
		if r.SchemaVersion > PayloadSchemaVersion {
			return ReviewSet{Records: []ReviewRecord{}, Raw: string(raw), Unreadable: true}
		}
	}
	if records == nil {
		records = []ReviewRecord{}
	}
	return ReviewSet{Records: records}
}

// DecodeDecision never fails: malformed input comes back as an unreadable view.
func DecodeDecision(raw []byte) DecisionView {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return DecisionView{}
	}
	var d ModeratorDecision
	if err := json.Unmarshal(raw, &d); err != nil || d.SchemaVersion > PayloadSchemaVersion {
		return DecisionView{Raw: string(raw), Unreadable: true}
	}
	return DecisionView{Decision: &d}
}
