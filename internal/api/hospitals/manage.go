// manage.go holds the write surface for hospital records. Imports keep the
// catalog current automatically; these endpoints exist for manual curation
// (fixing a bad address, registering a facility the upstream source misses)
// and require the editor or admin role.
package hospitals

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/itz4blitz/glimmr-api-sub005/internal/apperr"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
)

type createHospitalRequest struct {
	Name                string  `json:"name" binding:"required"`
	State               string  `json:"state" binding:"required,len=2"`
	City                string  `json:"city" binding:"required"`
	Address             *string `json:"address"`
	CCN                 string  `json:"ccn" binding:"required"`
	Website             *string `json:"website"`
	TransparencyFileURL *string `json:"transparency_file_url"`
}

// CreateHandler registers a hospital manually.
// POST /api/v1/hospitals
func (h *Handlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createHospitalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperr.Validationf("INVALID_HOSPITAL", "name, two-letter state, city and ccn are required"))
			c.Abort()
			return
		}

		hospital := &models.Hospital{
			Name:                req.Name,
			State:               req.State,
			City:                req.City,
			Address:             req.Address,
			CCN:                 req.CCN,
			Website:             req.Website,
			TransparencyFileURL: req.TransparencyFileURL,
		}
		if err := h.hospitals.Create(c.Request.Context(), hospital); err != nil {
			c.Error(apperr.Database("create hospital", err))
			c.Abort()
			return
		}
		c.JSON(http.StatusCreated, hospital)
	}
}

type updateHospitalRequest struct {
	Name                *string `json:"name"`
	State               *string `json:"state"`
	City                *string `json:"city"`
	Address             *string `json:"address"`
	Website             *string `json:"website"`
	TransparencyFileURL *string `json:"transparency_file_url"`
}

// UpdateHandler applies a partial update. The CCN is the import identity and
// cannot change; delete and recreate if a record was filed under the wrong
// number.
// PATCH /api/v1/hospitals/:id
func (h *Handlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var req updateHospitalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperr.Validationf("INVALID_HOSPITAL", "malformed update body"))
			c.Abort()
			return
		}
		if req.State != nil && len(*req.State) != 2 {
			c.Error(apperr.Validationf("INVALID_HOSPITAL", "state must be a two-letter code"))
			c.Abort()
			return
		}

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

		if req.Name != nil {
			hospital.Name = *req.Name
		}
		if req.State != nil {
			hospital.State = *req.State
		}
		if req.City != nil {
			hospital.City = *req.City
		}
		if req.Address != nil {
			hospital.Address = req.Address
		}
		if req.Website != nil {
			hospital.Website = req.Website
		}
		if req.TransparencyFileURL != nil {
			hospital.TransparencyFileURL = req.TransparencyFileURL
		}

		if err := h.hospitals.Update(c.Request.Context(), hospital); err != nil {
			c.Error(apperr.Database("update hospital", err))
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, hospital)
	}
}

// DeleteHandler removes a hospital and, via cascade, its prices.
// DELETE /api/v1/hospitals/:id
func (h *Handlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := h.hospitals.Delete(c.Request.Context(), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.Error(apperr.NotFoundf("HOSPITAL_NOT_FOUND", "Hospital with ID %s not found", id))
			} else {
				c.Error(apperr.Database("delete hospital", err))
			}
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "hospital deleted"})
	}
}
