package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/itz4blitz/glimmr-api-sub005/internal/activity"
	"github.com/itz4blitz/glimmr-api-sub005/internal/apperr"
)

// ActivityHandlers holds the dependencies for the activity dashboard
// endpoints.
type ActivityHandlers struct {
	activity *activity.Service
}

// NewActivityHandlers creates the activity dashboard handler set.
func NewActivityHandlers(svc *activity.Service) *ActivityHandlers {
	return &ActivityHandlers{activity: svc}
}

// ListHandler returns paginated activity records with actor display fields.
// Filters: search, action, resource_type, success, range (1h|24h|7d|30d).
// GET /api/v1/admin/activity
func (h *ActivityHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pagination(c)
		opts := activity.ListOptions{
			Search:       c.Query("search"),
			Action:       c.Query("action"),
			ResourceType: c.Query("resource_type"),
			Range:        c.DefaultQuery("range", "24h"),
			Limit:        limit,
			Offset:       offset,
		}
		switch c.Query("success") {
		case "true":
			v := true
			opts.Success = &v
		case "false":
			v := false
			opts.Success = &v
		}

		data, total, err := h.activity.List(c.Request.Context(), opts)
		if err != nil {
			c.Error(apperr.Database("list activity", err))
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

// GetHandler returns one activity record by id, for drilling into a listing
// row.
// GET /api/v1/admin/activity/:id
func (h *ActivityHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		rec, err := h.activity.Get(c.Request.Context(), id)
		if err != nil {
			c.Error(apperr.Database("get activity record", err))
			c.Abort()
			return
		}
		if rec == nil {
			c.Error(apperr.NotFoundf("ACTIVITY_NOT_FOUND", "Activity record with ID %s not found", id))
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// StatsHandler returns aggregate dashboard statistics for the given range.
// GET /api/v1/admin/activity/stats
func (h *ActivityHandlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.activity.Stats(c.Request.Context(), c.DefaultQuery("range", "24h"))
		if err != nil {
			c.Error(apperr.Database("aggregate activity stats", err))
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
