package middleware

import (
	"log"
	"net/http"
	"strings"

	"manuscript-review-api/models"
	"manuscript-review-api/services"

	"github.com/gin-gonic/gin"
)

const (
	ctxAPIKey    = "apiKey"
	ctxKeyRecord = "apiKeyRecord"
	ctxProjectID = "projectID"
	apiKeyHeader = "X-API-Key"
	bearerPrefix = "Bearer "
)

// APIKeyFromContext returns the validated key set by RequireAPIKey.
func APIKeyFromContext(c *gin.Context) (*models.APIKey, bool) {
	v, ok := c.Get(ctxKeyRecord)
	if !ok {
		return nil, false
	}
	key, ok := v.(*models.APIKey)
	return key, ok && key != nil
}

// SetUsageProject attaches a project id to the usage event MeterQuota records.
func SetUsageProject(c *gin.Context, projectID string) {
	c.Set(ctxProjectID, projectID)
}

func extractKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(apiKeyHeader)); key != "" {
		return key
	}
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(h[len(bearerPrefix):])
	}
	return ""
}

// RequireAPIKey rejects requests without a valid, unrevoked key. Unknown and
// revoked keys get the same response.
func RequireAPIKey(access *services.AccessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractKey(c)
		if raw == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API key is required"})
			c.Abort()
			return
		}
		key, ok, err := access.ValidateKey(c.Request.Context(), raw)
		if err != nil {
			log.Printf("api key validation failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			c.Abort()
			return
		}
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}
		c.Set(ctxAPIKey, key.Key)
		c.Set(ctxKeyRecord, key)
		c.Next()
	}
}

// MeterQuota checks the daily quota before the handler and records one usage
// event after a successful response. The check and the record are separate
// steps, so racing requests on one key can briefly exceed the quota.
func MeterQuota(access *services.AccessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(ctxAPIKey)
		status, err := access.CheckQuota(c.Request.Context(), key)
		if err != nil {
			log.Printf("quota check failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			c.Abort()
			return
		}
		if !status.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": status.Reason,
				"used":  status.Used,
				"limit": status.Limit,
			})
			c.Abort()
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		var projectID *string
		if p := c.GetString(ctxProjectID); p != "" {
			projectID = &p
		}
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}
		// The response is already written; a failed append can only be reported.
		if err := access.RecordUsage(c.Request.Context(), key, endpoint, projectID); err != nil {
			log.Printf("usage not recorded for key %s...: %v", keyPrefix(key), err)
			_ = c.Error(err)
		}
	}
}

func keyPrefix(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
