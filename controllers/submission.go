package controllers

import (
	"log"
	"net/http"

	"manuscript-review-api/middleware"
	"manuscript-review-api/models"
	"manuscript-review-api/services"

	"github.com/gin-gonic/gin"
)

type createSubmissionRequest struct {
	Title            string `json:"title" binding:"required,max=500"`
	CategoryMajor    string `json:"category_major" binding:"max=128"`
	CategorySubfield string `json:"category_subfield" binding:"max=128"`
	DeadlineHours    int    `json:"deadline_hours" binding:"gte=0"`
}

type revisionRequest struct {
	ManuscriptVersion string `json:"manuscript_version" binding:"max=64"`
	WordCount         int    `json:"word_count" binding:"gte=0"`
}

// CreateSubmission starts a submission for the calling key, binds it to the
// key and queues its desk review.
func (a *API) CreateSubmission(c *gin.Context) {
	key, _ := middleware.APIKeyFromContext(c)

	var req createSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()
	sub, err := a.Submissions.CreateSubmission(ctx, services.SubmissionInput{
		ResearcherID:     key.ResearcherID,
		APIKey:           key.Key,
		Title:            req.Title,
		CategoryMajor:    req.CategoryMajor,
		CategorySubfield: req.CategorySubfield,
		DeadlineHours:    req.DeadlineHours,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.SetUsageProject(c, sub.ID)

	ownership := a.Ownership.RecordOwnership(ctx, sub.ID, key.Key)
	if ownership.Err != nil {
		log.Printf("ownership for submission %s not recorded: %v", sub.ID, ownership.Err)
	}

	resp := gin.H{
		"submission":         sub,
		"ownership_recorded": ownership.Recorded,
	}
	job, err := a.Jobs.Enqueue(ctx, services.NewID(), sub.ID, services.JobTypeDeskReview, services.ReviewJobPayload{
		SchemaVersion: models.PayloadSchemaVersion,
		SubmissionID:  sub.ID,
	})
	if err != nil {
		log.Printf("desk review job for submission %s not queued: %v", sub.ID, err)
	} else {
		resp["job_id"] = job.ID
	}
	c.JSON(http.StatusCreated, resp)
}

// GetSubmission returns a submission owned by the calling key with its rounds.
func (a *API) GetSubmission(c *gin.Context) {
	detail, ok := a.ownedSubmission(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, detail)
}

// SubmitRevision returns an awaiting_revision submission to review and
// queues the next review round.
func (a *API) SubmitRevision(c *gin.Context) {
	detail, ok := a.ownedSubmission(c, c.Param("id"))
	if !ok {
		return
	}

	var req revisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	sub, job, err := a.Submissions.SubmitRevision(c.Request.Context(), detail.ID, services.RevisionInput{
		ManuscriptVersion: req.ManuscriptVersion,
		WordCount:         req.WordCount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.SetUsageProject(c, sub.ID)
	c.JSON(http.StatusAccepted, gin.H{"submission": sub, "job_id": job.ID})
}

// ListWorkflows lists the projects bound to the calling key.
func (a *API) ListWorkflows(c *gin.Context) {
	key, _ := middleware.APIKeyFromContext(c)
	rows, err := a.Ownership.WorkflowsForKey(c.Request.Context(), key.Key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": rows, "complete": false})
}

// GetUsage reports today's usage for the calling key without metering it.
func (a *API) GetUsage(c *gin.Context) {
	key, _ := middleware.APIKeyFromContext(c)
	status, err := a.Access.CheckQuota(c.Request.Context(), key.Key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetJob returns a job whose project is a submission of the calling key.
func (a *API) GetJob(c *gin.Context) {
	ctx := c.Request.Context()
	job, found, err := a.Jobs.GetJob(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if _, ok := a.ownedSubmission(c, job.ProjectID); !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// ownedSubmission writes a 404 unless the submission belongs to the caller.
// Admin keys see every submission.
func (a *API) ownedSubmission(c *gin.Context, id string) (*services.SubmissionDetail, bool) {
	key, _ := middleware.APIKeyFromContext(c)
	detail, found, err := a.Submissions.GetSubmission(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !found || (detail.APIKey != key.Key && !key.IsAdmin) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		return nil, false
	}
	return detail, true
}
