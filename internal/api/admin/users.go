// Package admin implements the management surface: user administration, the
// activity dashboard, and background-job control. Every route in this package
// sits behind the admin role requirement.
package admin

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/itz4blitz/glimmr-api-sub005/internal/apperr"
	"github.com/itz4blitz/glimmr-api-sub005/internal/auth"
	"github.com/itz4blitz/glimmr-api-sub005/internal/config"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/repositories"
	"github.com/itz4blitz/glimmr-api-sub005/internal/middleware"
)

// UserHandlers holds the dependencies for the user management endpoints.
type UserHandlers struct {
	cfg   *config.Config
	users *repositories.UserRepository
}

// NewUserHandlers creates the user management handler set.
func NewUserHandlers(cfg *config.Config, users *repositories.UserRepository) *UserHandlers {
	return &UserHandlers{cfg: cfg, users: users}
}

// ListHandler returns a paginated user listing.
// GET /api/v1/admin/users
func (h *UserHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pagination(c)
		data, total, err := h.users.List(c.Request.Context(), limit, offset)
		if err != nil {
			c.Error(apperr.Database("list users", err))
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

type createUserRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Role      string `json:"role" binding:"required"`
}

// CreateHandler registers a new dashboard account.
// POST /api/v1/admin/users
func (h *UserHandlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperr.Validationf("INVALID_USER", "email, password, first_name, last_name and role are required"))
			c.Abort()
			return
		}
		if !models.ValidRole(req.Role) {
			c.Error(apperr.Validationf("INVALID_ROLE", "role must be one of admin, editor, viewer"))
			c.Abort()
			return
		}

		existing, err := h.users.GetByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.Error(apperr.Database("check existing user", err))
			c.Abort()
			return
		}
		if existing != nil {
			c.Error(apperr.Conflictf("EMAIL_TAKEN", "a user with email %s already exists", req.Email))
			c.Abort()
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.Error(apperr.Validationf("INVALID_PASSWORD", "%s", err.Error()))
			c.Abort()
			return
		}

		user := &models.User{
			Email:        req.Email,
			PasswordHash: hash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Role:         req.Role,
			IsActive:     true,
		}
		if err := h.users.Create(c.Request.Context(), user); err != nil {
			c.Error(apperr.Database("create user", err))
			c.Abort()
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

// GetHandler returns one user by ID.
// GET /api/v1/admin/users/:userId
func (h *UserHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("userId")
		user, err := h.users.GetByID(c.Request.Context(), id)
		if err != nil {
			c.Error(apperr.Database("get user", err))
			c.Abort()
			return
		}
		if user == nil {
			c.Error(apperr.NotFoundf("USER_NOT_FOUND", "User with ID %s not found", id))
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

type updateUserRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      *string `json:"role"`
	IsActive  *bool   `json:"is_active"`
}

// UpdateHandler applies a partial update to a user's profile, role, and
// activation state.
// PATCH /api/v1/admin/users/:userId
func (h *UserHandlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("userId")
		var req updateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperr.Validationf("INVALID_USER", "malformed update body"))
			c.Abort()
			return
		}
		if req.Role != nil && !models.ValidRole(*req.Role) {
			c.Error(apperr.Validationf("INVALID_ROLE", "role must be one of admin, editor, viewer"))
			c.Abort()
			return
		}

		user, err := h.users.GetByID(c.Request.Context(), id)
		if err != nil {
			c.Error(apperr.Database("get user", err))
			c.Abort()
			return
		}
		if user == nil {
			c.Error(apperr.NotFoundf("USER_NOT_FOUND", "User with ID %s not found", id))
			c.Abort()
			return
		}

		// Admins cannot deactivate or demote themselves; that is how you lock
		// everyone out of user management.
		if actor := middleware.CurrentUser(c); actor != nil && actor.ID == id {
			if (req.IsActive != nil && !*req.IsActive) || (req.Role != nil && *req.Role != models.RoleAdmin) {
				c.Error(apperr.Forbidden("SELF_DEMOTION", "cannot deactivate or demote your own account"))
				c.Abort()
				return
			}
		}

		if req.FirstName != nil {
			user.FirstName = *req.FirstName
		}
		if req.LastName != nil {
			user.LastName = *req.LastName
		}
		if req.Role != nil {
			user.Role = *req.Role
		}
		if req.IsActive != nil {
			user.IsActive = *req.IsActive
		}

		if err := h.users.Update(c.Request.Context(), user); err != nil {
			c.Error(apperr.Database("update user", err))
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// DeleteHandler removes a user.
// DELETE /api/v1/admin/users/:userId
func (h *UserHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("userId")
		if actor := middleware.CurrentUser(c); actor != nil && actor.ID == id {
			c.Error(apperr.Forbidden("SELF_DELETION", "cannot delete your own account"))
			c.Abort()
			return
		}
		if err := h.users.Delete(c.Request.Context(), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.Error(apperr.NotFoundf("USER_NOT_FOUND", "User with ID %s not found", id))
			} else {
				c.Error(apperr.Database("delete user", err))
			}
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
	}
}

// GenerateAPIKeyHandler issues a fresh API key for a user. The raw key is
// returned exactly once; only its bcrypt hash and display prefix are stored.
// POST /api/v1/admin/users/:userId/api-key
func (h *UserHandlers) GenerateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("userId")
		user, err := h.users.GetByID(c.Request.Context(), id)
		if err != nil {
			c.Error(apperr.Database("get user", err))
			c.Abort()
			return
		}
		if user == nil {
			c.Error(apperr.NotFoundf("USER_NOT_FOUND", "User with ID %s not found", id))
			c.Abort()
			return
		}

		key, hash, prefix, err := auth.GenerateAPIKey(h.cfg.Auth.APIKeyPrefix)
		if err != nil {
			c.Error(apperr.Internalf("failed to generate api key"))
			c.Abort()
			return
		}
		if err := h.users.SetAPIKey(c.Request.Context(), id, &hash, &prefix); err != nil {
			c.Error(apperr.Database("store api key", err))
			c.Abort()
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"api_key":        key,
			"api_key_prefix": prefix,
		})
	}
}

// RevokeAPIKeyHandler clears a user's API key.
// DELETE /api/v1/admin/users/:userId/api-key
func (h *UserHandlers) RevokeAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("userId")
		if err := h.users.SetAPIKey(c.Request.Context(), id, nil, nil); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.Error(apperr.NotFoundf("USER_NOT_FOUND", "User with ID %s not found", id))
			} else {
				c.Error(apperr.Database("revoke api key", err))
			}
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "api key revoked"})
	}
}

// pagination reads limit/offset query params and clamps them to sane bounds.
func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
