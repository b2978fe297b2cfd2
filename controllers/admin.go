package controllers

import (
	"log"
	"net/http"
	"time"

	"manuscript-review-api/middleware"
	"manuscript-review-api/models"
	"manuscript-review-api/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const adminTokenTTL = 12 * time.Hour

type adminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type issueKeyRequest struct {
	ResearcherID *string `json:"researcher_id"`
	Label        string  `json:"label" binding:"max=255"`
	DailyQuota   int     `json:"daily_quota" binding:"gte=0"`
	IsAdmin      bool    `json:"is_admin"`
}

type revokeKeysRequest struct {
	Prefix string `json:"prefix" binding:"required"`
	Reason string `json:"reason" binding:"max=255"`
}

type setQuotaRequest struct {
	Prefix     string `json:"prefix" binding:"required"`
	DailyQuota *int   `json:"daily_quota" binding:"required,gte=0"`
}

type advanceStatusRequest struct {
	Status           models.SubmissionStatus `json:"status" binding:"required"`
	RevisionDeadline *time.Time              `json:"revision_deadline"`
	FinalDecision    *string                 `json:"final_decision"`
	FinalScore       *float64                `json:"final_score"`
	CurrentRound     *int                    `json:"current_round"`
}

// AdminLogin exchanges the admin password for a bearer token.
func (a *API) AdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if a.AdminPasswordHash == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin login not configured"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.AdminPasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	token, err := middleware.GenerateAdminToken(a.JWTSecret, req.Username, adminTokenTTL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": int(adminTokenTTL.Seconds())})
}

// IssueKey creates an API key.
func (a *API) IssueKey(c *gin.Context) {
	var req issueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	key, err := a.Access.IssueKey(c.Request.Context(), services.KeyInput{
		ResearcherID: req.ResearcherID,
		Label:        req.Label,
		DailyQuota:   req.DailyQuota,
		IsAdmin:      req.IsAdmin,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, key)
}

// RevokeKeys revokes every active key with the given prefix.
func (a *API) RevokeKeys(c *gin.Context) {
	var req revokeKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	n, err := a.Access.RevokeKeys(c.Request.Context(), req.Prefix, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Printf("admin %s revoked %d key(s) with prefix %q", c.GetString("adminSubject"), n, req.Prefix)
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

// SetQuota changes the daily quota of every key with the given prefix.
func (a *API) SetQuota(c *gin.Context) {
	var req setQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	n, err := a.Access.SetQuota(c.Request.Context(), req.Prefix, *req.DailyQuota)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// AdvanceSubmission applies a status transition on behalf of an operator.
func (a *API) AdvanceSubmission(c *gin.Context) {
	var req advanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	sub, err := a.Submissions.AdvanceStatus(c.Request.Context(), c.Param("id"), services.StatusUpdate{
		Status:           req.Status,
		RevisionDeadline: req.RevisionDeadline,
		FinalDecision:    req.FinalDecision,
		FinalScore:       req.FinalScore,
		CurrentRound:     req.CurrentRound,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// SubmitRoundResult queues a finished round for the worker pool to apply.
func (a *API) SubmitRoundResult(c *gin.Context) {
	var payload services.RoundResultPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	payload.SubmissionID = c.Param("id")
	if payload.SchemaVersion == 0 {
		payload.SchemaVersion = models.PayloadSchemaVersion
	}
	if !payload.NextStatus.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "next_status is not a submission status"})
		return
	}
	job, err := a.Jobs.Enqueue(c.Request.Context(), services.NewID(), payload.SubmissionID, services.JobTypeRoundResult, payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// PendingJobs lists queued and running jobs, oldest first.
func (a *API) PendingJobs(c *gin.Context) {
	jobs, err := a.Jobs.PendingJobs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// RunExpirySweep expires overdue submissions now.
func (a *API) RunExpirySweep(c *gin.Context) {
	n, err := a.Submissions.ExpireOverdue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}
