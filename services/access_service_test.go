package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"manuscript-review-api/models"
)

func newAccessForTest(t *testing.T) (*AccessService, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
	svc := NewAccessService(newTestDB(t))
	svc.now = clock.Now
	return svc, clock
}

func issueKey(t *testing.T, svc *AccessService, quota int) *models.APIKey {
	t.Helper()
	key, err := svc.IssueKey(context.Background(), KeyInput{Label: "test", DailyQuota: quota})
	if err != nil {
		t.Fatalf("IssueKey returned error: %v", err)
	}
	return key
}

func TestIssueKeyGeneratesPrefixedToken(t *testing.T) {
	svc, _ := newAccessForTest(t)
	key := issueKey(t, svc, 5)

	if !strings.HasPrefix(key.Key, apiKeyPrefix) {
		t.Fatalf("expected %q prefix, got %q", apiKeyPrefix, key.Key)
	}
	if len(key.Key) != len(apiKeyPrefix)+32 {
		t.Fatalf("expected 32 encoded characters after the prefix, got %q", key.Key)
	}

	got, ok, err := svc.ValidateKey(context.Background(), key.Key)
	if err != nil || !ok {
		t.Fatalf("expected issued key to validate, ok=%v err=%v", ok, err)
	}
	if got.DailyQuota != 5 {
		t.Fatalf("expected quota 5, got %d", got.DailyQuota)
	}
}

func TestIssueKeyRejectsNegativeQuota(t *testing.T) {
	svc, _ := newAccessForTest(t)
	_, err := svc.IssueKey(context.Background(), KeyInput{DailyQuota: -1})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestValidateKeyUnknown(t *testing.T) {
	svc, _ := newAccessForTest(t)
	for _, raw := range []string{"", "   ", "mrk_doesnotexist"} {
		key, ok, err := svc.ValidateKey(context.Background(), raw)
		if err != nil {
			t.Fatalf("ValidateKey(%q) returned error: %v", raw, err)
		}
		if ok || key != nil {
			t.Fatalf("ValidateKey(%q) expected not found, got %#v", raw, key)
		}
	}
}

func TestDailyQuotaScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAccessForTest(t)
	key := issueKey(t, svc, 2)

	if err := svc.RecordUsage(ctx, key.Key, "/x", nil); err != nil {
		t.Fatalf("RecordUsage returned error: %v", err)
	}
	used, err := svc.DailyUsage(ctx, key.Key)
	if err != nil {
		t.Fatalf("DailyUsage returned error: %v", err)
	}
	if used != 1 {
		t.Fatalf("expected usage 1, got %d", used)
	}
	status, err := svc.CheckQuota(ctx, key.Key)
	if err != nil {
		t.Fatalf("CheckQuota returned error: %v", err)
	}
	if !status.Allowed || status.Used != 1 || status.Limit != 2 {
		t.Fatalf("expected allowed 1/2, got %#v", status)
	}

	for i := 0; i < 2; i++ {
		if err := svc.RecordUsage(ctx, key.Key, "/x", nil); err != nil {
			t.Fatalf("RecordUsage returned error: %v", err)
		}
	}
	used, _ = svc.DailyUsage(ctx, key.Key)
	if used != 3 {
		t.Fatalf("expected usage 3, got %d", used)
	}
	status, _ = svc.CheckQuota(ctx, key.Key)
	if status.Allowed {
		t.Fatalf("expected quota to be exhausted, got %#v", status)
	}
	if status.Reason != QuotaReasonExhausted {
		t.Fatalf("expected reason %q, got %q", QuotaReasonExhausted, status.Reason)
	}
}

func TestDailyUsageResetsAtUTCMidnight(t *testing.T) {
	ctx := context.Background()
	svc, clock := newAccessForTest(t)
	key := issueKey(t, svc, 1)

	clock.t = time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC)
	if err := svc.RecordUsage(ctx, key.Key, "/x", nil); err != nil {
		t.Fatalf("RecordUsage returned error: %v", err)
	}
	if status, _ := svc.CheckQuota(ctx, key.Key); status.Allowed {
		t.Fatalf("expected quota exhausted before midnight, got %#v", status)
	}

	clock.Advance(2 * time.Second)
	used, err := svc.DailyUsage(ctx, key.Key)
	if err != nil {
		t.Fatalf("DailyUsage returned error: %v", err)
	}
	if used != 0 {
		t.Fatalf("expected usage to reset at midnight, got %d", used)
	}
	if status, _ := svc.CheckQuota(ctx, key.Key); !status.Allowed {
		t.Fatalf("expected quota available after midnight, got %#v", status)
	}
}

// CheckQuota does not reserve anything: two callers that both check before
// either records can both proceed, leaving the key over quota.
func TestCheckThenRecordCanOvershootQuota(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAccessForTest(t)
	key := issueKey(t, svc, 1)

	first, _ := svc.CheckQuota(ctx, key.Key)
	second, _ := svc.CheckQuota(ctx, key.Key)
	if !first.Allowed || !second.Allowed {
		t.Fatalf("expected both checks to pass, got %#v and %#v", first, second)
	}
	_ = svc.RecordUsage(ctx, key.Key, "/x", nil)
	_ = svc.RecordUsage(ctx, key.Key, "/x", nil)

	used, _ := svc.DailyUsage(ctx, key.Key)
	if used != 2 {
		t.Fatalf("expected usage 2 over a quota of 1, got %d", used)
	}
}

func TestRevokedKeyFailsValidationAndQuota(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAccessForTest(t)
	key := issueKey(t, svc, 10)

	n, err := svc.RevokeKeys(ctx, key.Key[:10], "leaked")
	if err != nil {
		t.Fatalf("RevokeKeys returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 revoked key, got %d", n)
	}

	if _, ok, _ := svc.ValidateKey(ctx, key.Key); ok {
		t.Fatalf("expected revoked key to fail validation")
	}
	status, err := svc.CheckQuota(ctx, key.Key)
	if err != nil {
		t.Fatalf("CheckQuota returned error: %v", err)
	}
	if status.Allowed || status.Used != 0 || status.Limit != 0 || status.Reason != QuotaReasonInvalidKey {
		t.Fatalf("expected invalid key denial, got %#v", status)
	}

	row, found, err := svc.LookupKey(ctx, key.Key)
	if err != nil || !found {
		t.Fatalf("expected revoked key to remain stored, found=%v err=%v", found, err)
	}
	if row.RevocationReason == nil || *row.RevocationReason != "leaked" {
		t.Fatalf("expected revocation reason to be stored, got %v", row.RevocationReason)
	}

	again, err := svc.RevokeKeys(ctx, key.Key[:10], "again")
	if err != nil {
		t.Fatalf("second RevokeKeys returned error: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected revoking twice to be a no-op, got %d", again)
	}
}

func TestPrefixOperationsTreatWildcardsLiterally(t *testing.T) {
	ctx := context.Background()
	svc, clock := newAccessForTest(t)
	db := svc.db
	for _, k := range []string{"team_a1", "teamXa2", "team%b"} {
		row := &models.APIKey{Key: k, CreatedAt: clock.Now(), DailyQuota: 1}
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed key %s: %v", k, err)
		}
	}

	n, err := svc.SetQuota(ctx, "team_", 50)
	if err != nil {
		t.Fatalf("SetQuota returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected '_' to match literally (1 key), got %d", n)
	}

	n, err = svc.RevokeKeys(ctx, "team%", "")
	if err != nil {
		t.Fatalf("RevokeKeys returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected '%%' to match literally (1 key), got %d", n)
	}

	row, _, _ := svc.LookupKey(ctx, "team_a1")
	if row.DailyQuota != 50 {
		t.Fatalf("expected quota 50, got %d", row.DailyQuota)
	}
	if row.Revoked() {
		t.Fatalf("expected team_a1 to stay active")
	}
}

func TestPrefixOperationsAreCaseSensitive(t *testing.T) {
	ctx := context.Background()
	svc, clock := newAccessForTest(t)
	for _, k := range []string{"legacy_abc", "LEGACY_def"} {
		row := &models.APIKey{Key: k, CreatedAt: clock.Now(), DailyQuota: 1}
		if err := svc.db.Create(row).Error; err != nil {
			t.Fatalf("seed key %s: %v", k, err)
		}
	}

	n, err := svc.RevokeKeys(ctx, "LEGACY_", "rotated")
	if err != nil {
		t.Fatalf("RevokeKeys returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only LEGACY_def to be revoked, got %d", n)
	}
	if _, ok, _ := svc.ValidateKey(ctx, "legacy_abc"); !ok {
		t.Fatalf("expected legacy_abc to stay valid")
	}
	if _, ok, _ := svc.ValidateKey(ctx, "LEGACY_def"); ok {
		t.Fatalf("expected LEGACY_def to be revoked")
	}

	n, err = svc.SetQuota(ctx, "legacy_", 9)
	if err != nil {
		t.Fatalf("SetQuota returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected SetQuota to touch only legacy_abc, got %d", n)
	}
	upper, _, _ := svc.LookupKey(ctx, "LEGACY_def")
	if upper.DailyQuota != 1 {
		t.Fatalf("expected LEGACY_def quota unchanged, got %d", upper.DailyQuota)
	}
}

func TestPrefixOperationsRequirePrefix(t *testing.T) {
	svc, _ := newAccessForTest(t)
	if _, err := svc.RevokeKeys(context.Background(), " ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput from RevokeKeys, got %v", err)
	}
	if _, err := svc.SetQuota(context.Background(), "", 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput from SetQuota, got %v", err)
	}
	if _, err := svc.SetQuota(context.Background(), "mrk_", -5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative quota, got %v", err)
	}
}

func TestSetQuotaKeepsPastUsage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAccessForTest(t)
	key := issueKey(t, svc, 1)
	_ = svc.RecordUsage(ctx, key.Key, "/x", nil)

	if _, err := svc.SetQuota(ctx, key.Key, 3); err != nil {
		t.Fatalf("SetQuota returned error: %v", err)
	}
	status, _ := svc.CheckQuota(ctx, key.Key)
	if !status.Allowed || status.Used != 1 || status.Limit != 3 {
		t.Fatalf("expected 1/3 allowed after raising quota, got %#v", status)
	}
}

func TestResearcherForKey(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAccessForTest(t)
	bound, err := svc.IssueKey(ctx, KeyInput{ResearcherID: strPtr("r-1"), DailyQuota: 1})
	if err != nil {
		t.Fatalf("IssueKey returned error: %v", err)
	}
	standalone := issueKey(t, svc, 1)

	id, err := svc.ResearcherForKey(ctx, bound.Key)
	if err != nil || id == nil || *id != "r-1" {
		t.Fatalf("expected researcher r-1, got %v (err %v)", id, err)
	}
	id, err = svc.ResearcherForKey(ctx, standalone.Key)
	if err != nil || id != nil {
		t.Fatalf("expected no researcher for standalone key, got %v (err %v)", id, err)
	}
	id, err = svc.ResearcherForKey(ctx, "mrk_unknown")
	if err != nil || id != nil {
		t.Fatalf("expected no researcher for unknown key, got %v (err %v)", id, err)
	}
}

func TestRecordUsagePropagatesStoreErrors(t *testing.T) {
	svc, _ := newAccessForTest(t)
	sqlDB, err := svc.db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	_ = sqlDB.Close()

	if err := svc.RecordUsage(context.Background(), "mrk_x", "/x", nil); err == nil {
		t.Fatalf("expected RecordUsage to fail on a closed store")
	}
}
