package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"manuscript-review-api/config"
	"manuscript-review-api/models"
	"manuscript-review-api/services"

	"github.com/gin-gonic/gin"
)

func newAccess(t *testing.T) *services.AccessService {
	t.Helper()
	db, err := config.OpenSQLite(":memory:?_time_format=sqlite", 1, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return services.NewAccessService(db)
}

func newMeteredRouter(access *services.AccessService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("")
	g.Use(RequireAPIKey(access), MeterQuota(access))
	g.POST("/things/:id", func(c *gin.Context) {
		SetUsageProject(c, c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	g.POST("/broken", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nope"})
	})
	return r
}

func doRequest(r http.Handler, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAPIKeyRejectsMissingUnknownAndRevoked(t *testing.T) {
	ctx := context.Background()
	access := newAccess(t)
	r := newMeteredRouter(access)

	if w := doRequest(r, http.MethodPost, "/things/p1", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	unknown := doRequest(r, http.MethodPost, "/things/p1", "mrk_unknown")
	if unknown.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key, got %d", unknown.Code)
	}

	key, err := access.IssueKey(ctx, services.KeyInput{DailyQuota: 5})
	if err != nil {
		t.Fatalf("IssueKey: %v", err)
	}
	if _, err := access.RevokeKeys(ctx, key.Key, "rotated"); err != nil {
		t.Fatalf("RevokeKeys: %v", err)
	}
	revoked := doRequest(r, http.MethodPost, "/things/p1", key.Key)
	if revoked.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked key, got %d", revoked.Code)
	}
	if revoked.Body.String() != unknown.Body.String() {
		t.Fatalf("revoked and unknown keys must look the same, got %q vs %q", revoked.Body.String(), unknown.Body.String())
	}
}

func TestBearerHeaderIsAccepted(t *testing.T) {
	access := newAccess(t)
	r := newMeteredRouter(access)
	key, _ := access.IssueKey(context.Background(), services.KeyInput{DailyQuota: 5})

	req := httptest.NewRequest(http.MethodPost, "/things/p1", nil)
	req.Header.Set("Authorization", "Bearer "+key.Key)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer key, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMeterQuotaRecordsSuccessAndDeniesWhenExhausted(t *testing.T) {
	ctx := context.Background()
	access := newAccess(t)
	r := newMeteredRouter(access)
	key, _ := access.IssueKey(ctx, services.KeyInput{DailyQuota: 1})

	if w := doRequest(r, http.MethodPost, "/broken", key.Key); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 from broken handler, got %d", w.Code)
	}
	if used, _ := access.DailyUsage(ctx, key.Key); used != 0 {
		t.Fatalf("expected failed calls not to be metered, got %d", used)
	}

	if w := doRequest(r, http.MethodPost, "/things/p1", key.Key); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if used, _ := access.DailyUsage(ctx, key.Key); used != 1 {
		t.Fatalf("expected one metered call, got %d", used)
	}

	w := doRequest(r, http.MethodPost, "/things/p2", key.Key)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	var body struct {
		Error string `json:"error"`
		Used  int64  `json:"used"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Used != 1 || body.Limit != 1 || body.Error != services.QuotaReasonExhausted {
		t.Fatalf("unexpected denial body %#v", body)
	}
}

func TestMeterQuotaStoresEndpointAndProject(t *testing.T) {
	ctx := context.Background()
	db, err := config.OpenSQLite(":memory:?_time_format=sqlite", 1, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	access := services.NewAccessService(db)
	r := newMeteredRouter(access)
	key, _ := access.IssueKey(ctx, services.KeyInput{DailyQuota: 3})

	if w := doRequest(r, http.MethodPost, "/things/p9", key.Key); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var event models.KeyUsageEvent
	if err := db.Where("api_key = ?", key.Key).First(&event).Error; err != nil {
		t.Fatalf("load usage event: %v", err)
	}
	if event.Endpoint != "/things/:id" {
		t.Fatalf("expected route pattern as endpoint, got %q", event.Endpoint)
	}
	if event.ProjectID == nil || *event.ProjectID != "p9" {
		t.Fatalf("expected project p9, got %v", event.ProjectID)
	}
}
