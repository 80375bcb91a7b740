// Package hospitals serves the public read surface: hospital listing and
// lookup, and per-hospital price browsing.
package hospitals

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/itz4blitz/glimmr-api-sub005/internal/apperr"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/repositories"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handlers holds the dependencies for the hospital endpoints.
type Handlers struct {
	hospitals *repositories.HospitalRepository
	prices    *repositories.PriceRepository
}

// NewHandlers creates the hospital handler set.
func NewHandlers(hospitals *repositories.HospitalRepository, prices *repositories.PriceRepository) *Handlers {
	return &Handlers{hospitals: hospitals, prices: prices}
}

// ListHandler returns a paginated hospital listing, filterable by state and
// free-text search.
// GET /api/v1/hospitals
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pagination(c)
		filters := repositories.HospitalFilters{
			Search: c.Query("search"),
			State:  c.Query("state"),
		}

		data, total, err := h.hospitals.List(c.Request.Context(), filters, limit, offset)
		if err != nil {
			c.Error(apperr.Database("list hospitals", err))
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

// GetHandler returns one hospital by ID.
// GET /api/v1/hospitals/:id
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		hospital, err := h.hospitals.GetByID(c.Request.Context(), id)
		if err != nil {
			c.Error(apperr.Database("get hospital", err))
			c.Abort()
			return
		}
		if hospital == nil {
			c.Error(apperr.NotFoundf("HOSPITAL_NOT_FOUND", "Hospital with ID %s not found", id))
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, hospital)
	}
}

// PricesHandler lists prices for one hospital with code/search filters.
// GET /api/v1/hospitals/:id/prices
func (h *Handlers) PricesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		hospital, err := h.hospitals.GetByID(c.Request.Context(), id)
		if err != nil {
			c.Error(apperr.Database("get hospital", err))
			c.Abort()
			return
		}
		if hospital == nil {
			c.Error(apperr.NotFoundf("HOSPITAL_NOT_FOUND", "Hospital with ID %s not found", id))
			c.Abort()
			return
		}

		limit, offset := pagination(c)
		filters := repositories.PriceFilters{
			HospitalID: id,
			Code:       c.Query("code"),
			CodeType:   c.Query("code_type"),
			Search:     c.Query("search"),
		}

		data, total, err := h.prices.List(c.Request.Context(), filters, limit, offset)
		if err != nil {
			c.Error(apperr.Database("list prices", err))
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

// pagination reads limit/offset query params and clamps them to sane bounds.
func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
