package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"manuscript-review-api/config"
	"manuscript-review-api/models"
	"manuscript-review-api/utils"

	"gorm.io/gorm"
)

// QuotaStatus is the answer to a quota check. A denial is data, not an error.
type QuotaStatus struct {
	Allowed bool   `json:"allowed"`
	Used    int64  `json:"used"`
	Limit   int    `json:"limit"`
	Reason  string `json:"reason,omitempty"`
}

const (
	QuotaReasonInvalidKey = "invalid key"
	QuotaReasonExhausted  = "daily quota exceeded"
)

// KeyInput describes a key to issue.
type KeyInput struct {
	ResearcherID *string
	Label        string `validate:"max=255"`
	DailyQuota   int    `validate:"gte=0"`
	IsAdmin      bool
}

// AccessService validates API keys and meters their daily usage.
//
// CheckQuota and RecordUsage are deliberately separate calls: callers check,
// perform the metered action, then record. Concurrent callers sharing a key
// can both pass the check before either records, so a key may overshoot its
// quota by the number of racing callers.
type AccessService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAccessService(db *gorm.DB) *AccessService {
	if db == nil {
		db = config.DB
	}
	return &AccessService{db: db, now: utcNow}
}

// IssueKey creates a new key. Issuance bookkeeping lives elsewhere; this is
// the minimal record the core needs.
func (s *AccessService) IssueKey(ctx context.Context, input KeyInput) (*models.APIKey, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	token, err := NewAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}
	key := &models.APIKey{
		Key:          token,
		ResearcherID: input.ResearcherID,
		Label:        utils.SanitizeInput(input.Label),
		CreatedAt:    s.now(),
		DailyQuota:   input.DailyQuota,
		IsAdmin:      input.IsAdmin,
	}
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, &ConflictError{Entity: "api key", Key: token, Err: err}
		}
		return nil, err
	}
	return key, nil
}

// LookupKey returns the key record whether or not it is revoked.
func (s *AccessService) LookupKey(ctx context.Context, key string) (*models.APIKey, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, nil
	}
	var row models.APIKey
	if err := s.db.WithContext(ctx).Where("api_key = ?", key).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &row, true, nil
}

// ValidateKey returns the key only when it exists and is not revoked. Callers
// must treat both failure cases identically.
func (s *AccessService) ValidateKey(ctx context.Context, key string) (*models.APIKey, bool, error) {
	row, found, err := s.LookupKey(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	if row.Revoked() {
		return nil, false, nil
	}
	return row, true, nil
}

// ResearcherForKey resolves the researcher bound to key, nil for standalone or unknown keys.
func (s *AccessService) ResearcherForKey(ctx context.Context, key string) (*string, error) {
	row, found, err := s.LookupKey(ctx, key)
	if err != nil || !found {
		return nil, err
	}
	return row.ResearcherID, nil
}

// RecordUsage appends one usage event. Errors are returned: usage is the only
// quota signal, so a lost event would silently grant extra calls.
func (s *AccessService) RecordUsage(ctx context.Context, key, endpoint string, projectID *string) error {
	event := &models.KeyUsageEvent{
		APIKey:    key,
		Endpoint:  endpoint,
		UsedAt:    s.now(),
		ProjectID: projectID,
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("record usage for %s: %w", endpoint, err)
	}
	usageRecordedTotal.Inc()
	return nil
}

// DailyUsage counts the key's events since 00:00 UTC today.
func (s *AccessService) DailyUsage(ctx context.Context, key string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.KeyUsageEvent{}).
		Where("api_key = ? AND used_at >= ?", key, startOfUTCDay(s.now())).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CheckQuota reports whether key may perform one more metered call today.
// It does not record usage.
func (s *AccessService) CheckQuota(ctx context.Context, key string) (QuotaStatus, error) {
	row, ok, err := s.ValidateKey(ctx, key)
	if err != nil {
		return QuotaStatus{}, err
	}
	if !ok {
		quotaDeniedTotal.Inc()
		return QuotaStatus{Allowed: false, Reason: QuotaReasonInvalidKey}, nil
	}
	used, err := s.DailyUsage(ctx, key)
	if err != nil {
		return QuotaStatus{}, err
	}
	status := QuotaStatus{
		Allowed: used < int64(row.DailyQuota),
		Used:    used,
		Limit:   row.DailyQuota,
	}
	if !status.Allowed {
		status.Reason = QuotaReasonExhausted
		quotaDeniedTotal.Inc()
	}
	return status, nil
}

// RevokeKeys revokes every active key starting with prefix. Already revoked
// keys are left untouched, so repeating the call is a no-op.
func (s *AccessService) RevokeKeys(ctx context.Context, prefix, reason string) (int64, error) {
	if strings.TrimSpace(prefix) == "" {
		return 0, invalidInput("key prefix is required")
	}
	updates := map[string]interface{}{
		"revoked_at":        s.now(),
		"revocation_reason": reason,
	}
	db := s.db.WithContext(ctx)
	match, args := keyPrefixMatch(db, prefix)
	res := db.Model(&models.APIKey{}).
		Where(match, args...).
		Where("revoked_at IS NULL").
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// SetQuota changes the daily quota of every key starting with prefix. Past
// usage events are not touched.
func (s *AccessService) SetQuota(ctx context.Context, prefix string, quota int) (int64, error) {
	if strings.TrimSpace(prefix) == "" {
		return 0, invalidInput("key prefix is required")
	}
	if quota < 0 {
		return 0, invalidInput("daily quota must be >= 0")
	}
	db := s.db.WithContext(ctx)
	match, args := keyPrefixMatch(db, prefix)
	res := db.Model(&models.APIKey{}).
		Where(match, args...).
		Update("daily_quota", quota)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// keyPrefixMatch builds a literal, case-sensitive prefix condition on api_key.
// LIKE is avoided: SQLite and MySQL's default collations fold case.
func keyPrefixMatch(db *gorm.DB, prefix string) (string, []interface{}) {
	n := utf8.RuneCountInString(prefix)
	if db.Dialector.Name() == "mysql" {
		return "LEFT(api_key, ?) = CAST(? AS BINARY)", []interface{}{n, prefix}
	}
	return "substr(api_key, 1, ?) = ?", []interface{}{n, prefix}
}
