package admin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/itz4blitz/glimmr-api-sub005/internal/apperr"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/repositories"
	"github.com/itz4blitz/glimmr-api-sub005/internal/jobs"
	"github.com/itz4blitz/glimmr-api-sub005/internal/middleware"
)

// JobHandlers holds the dependencies for the background-job endpoints.
type JobHandlers struct {
	scheduler *jobs.Scheduler
	runs      *repositories.JobRunRepository
}

// NewJobHandlers creates the job control handler set.
func NewJobHandlers(scheduler *jobs.Scheduler, runs *repositories.JobRunRepository) *JobHandlers {
	return &JobHandlers{scheduler: scheduler, runs: runs}
}

// TriggerHandler starts a manual run of the named job and returns the run ID
// for polling. The run executes detached from this request.
// POST /api/v1/admin/jobs/...
func (h *JobHandlers) TriggerHandler(jobName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID, err := h.scheduler.Trigger(c.Request.Context(), jobName, c.GetString(middleware.UserIDKey))
		if err != nil {
			if errors.Is(err, jobs.ErrUnknownJob) {
				c.Error(apperr.NotFoundf("JOB_NOT_FOUND", "Job %s is not registered", jobName))
			} else {
				c.Error(apperr.Internalf("failed to start job %s", jobName))
			}
			c.Abort()
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"run_id":   runID,
			"job_name": jobName,
			"status":   "running",
		})
	}
}

// ListRunsHandler returns paginated job run history, optionally filtered by
// job name.
// GET /api/v1/admin/jobs/runs
func (h *JobHandlers) ListRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pagination(c)
		data, total, err := h.runs.List(c.Request.Context(), c.Query("job"), limit, offset)
		if err != nil {
			c.Error(apperr.Database("list job runs", err))
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"data":   data,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}
}

// GetRunHandler returns one job run by ID, for polling a triggered run.
// GET /api/v1/admin/jobs/runs/:jobId
func (h *JobHandlers) GetRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("jobId")
		run, err := h.runs.GetByID(c.Request.Context(), id)
		if err != nil {
			c.Error(apperr.Database("get job run", err))
			c.Abort()
			return
		}
		if run == nil {
			c.Error(apperr.NotFoundf("JOB_RUN_NOT_FOUND", "Job run with ID %s not found", id))
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, run)
	}
}
