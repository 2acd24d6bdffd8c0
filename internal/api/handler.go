package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuscode-io/github-harvester/internal/aggregator"
	"github.com/campuscode-io/github-harvester/internal/domain"
	apperrors "github.com/campuscode-io/github-harvester/internal/errors"
	"github.com/campuscode-io/github-harvester/internal/queue"
	"github.com/campuscode-io/github-harvester/internal/storage"
)

// Handler handles monitoring and administration API requests
type Handler struct {
	store      storage.Storage
	producer   *queue.Producer
	aggregator aggregator.Aggregator
}

// NewHandler creates a new API handler
func NewHandler(store storage.Storage, producer *queue.Producer, agg aggregator.Aggregator) *Handler {
	return &Handler{
		store:      store,
		producer:   producer,
		aggregator: agg,
	}
}

// HealthCheck returns service health
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// ListJobs returns the jobs in one queue partition
// GET /api/v1/jobs?partition=failed
func (h *Handler) ListJobs(c *gin.Context) {
	partition := domain.JobPartition(c.DefaultQuery("partition", string(domain.PartitionQueued)))
	switch partition {
	case domain.PartitionQueued, domain.PartitionProcessing, domain.PartitionCompleted, domain.PartitionFailed:
	default:
		respondError(c, apperrors.NewBadRequestError("unknown partition: "+string(partition)))
		return
	}

	jobs, err := h.store.JobsByPartition(c.Request.Context(), partition)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": jobs,
	})
}

// GetJobCounts returns the job count per partition
// GET /api/v1/jobs/counts
func (h *Handler) GetJobCounts(c *gin.Context) {
	counts, err := h.store.PartitionCounts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": counts,
	})
}

// GetJob returns one job by id
// GET /api/v1/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": job,
	})
}

// DeleteJob removes one job permanently
// DELETE /api/v1/jobs/:id
func (h *Handler) DeleteJob(c *gin.Context) {
	if err := h.store.DeleteJob(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted": c.Param("id"),
	})
}

// RetryJob requeues one dead-lettered job with a fresh retry budget
// POST /api/v1/jobs/:id/retry
func (h *Handler) RetryJob(c *gin.Context) {
	if err := h.store.RetryFailedJob(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"retried": c.Param("id"),
	})
}

// RetryAllJobs requeues every dead-lettered job
// POST /api/v1/jobs/retry-all
func (h *Handler) RetryAllJobs(c *gin.Context) {
	count, err := h.store.RetryAllFailedJobs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"retried": count,
	})
}

type triggerCollectionRequest struct {
	UserID         int64  `json:"user_id" binding:"required"`
	EncryptedToken string `json:"encrypted_token" binding:"required"`
}

// TriggerCollection enqueues a harvest run for one user
// POST /api/v1/collections/:login
func (h *Handler) TriggerCollection(c *gin.Context) {
	var req triggerCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewBadRequestError("invalid request body: "+err.Error()))
		return
	}

	user := domain.UserRef{
		UserID:         req.UserID,
		GithubLogin:    c.Param("login"),
		EncryptedToken: req.EncryptedToken,
	}
	if err := h.producer.EnqueueUserCollection(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"login": user.GithubLogin,
	})
}

// GetUserStatistics returns the per-user rollup
// GET /api/v1/users/:login/statistics
func (h *Handler) GetUserStatistics(c *gin.Context) {
	stats, err := h.store.GetUserStatistics(c.Request.Context(), c.Param("login"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stats,
	})
}

// GetPlatformStatistics returns the platform-wide rollup
// GET /api/v1/statistics/platform
func (h *Handler) GetPlatformStatistics(c *gin.Context) {
	stats, err := h.store.GetPlatformStatistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stats,
	})
}

// RecalculateUser forces a statistics rebuild for one user
// POST /api/v1/users/:login/statistics/recalculate
func (h *Handler) RecalculateUser(c *gin.Context) {
	login := c.Param("login")
	if err := h.aggregator.RecalculateUser(c.Request.Context(), login); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recalculated": login,
	})
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeUnauthorized:
			status = http.StatusUnauthorized
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeRateLimited:
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	})
}
