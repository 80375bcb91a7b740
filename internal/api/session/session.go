// Package session implements the authentication endpoints: login, token
// refresh, logout, and the current-user lookup. Login outcomes are recorded
// explicitly here rather than by the request interceptor, because only the
// handler knows which account the attempt was against — and the interceptor
// is skipped on these routes so each attempt produces exactly one record.
package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itz4blitz/glimmr-api-sub005/internal/activity"
	"github.com/itz4blitz/glimmr-api-sub005/internal/apperr"
	"github.com/itz4blitz/glimmr-api-sub005/internal/auth"
	"github.com/itz4blitz/glimmr-api-sub005/internal/config"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/repositories"
	"github.com/itz4blitz/glimmr-api-sub005/internal/middleware"
)

// Handlers holds the dependencies for the auth endpoints.
type Handlers struct {
	cfg      *config.Config
	users    *repositories.UserRepository
	activity *activity.Service
}

// NewHandlers creates the session handler set.
func NewHandlers(cfg *config.Config, users *repositories.UserRepository, activitySvc *activity.Service) *Handlers {
	return &Handlers{cfg: cfg, users: users, activity: activitySvc}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	User         *models.User `json:"user"`
}

// LoginHandler authenticates email/password and issues a token pair.
// POST /api/v1/auth/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperr.Validationf("INVALID_LOGIN", "email and password are required"))
			c.Abort()
			return
		}

		user, err := h.users.GetByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.Error(apperr.Database("load user by email", err))
			c.Abort()
			return
		}

		// The failure record and message are identical whether the account
		// is missing, deactivated, or the password is wrong.
		if user == nil || !user.IsActive || !auth.CheckPassword(req.Password, user.PasswordHash) {
			h.recordLogin(c, user, false)
			c.Error(apperr.Unauthorized("INVALID_CREDENTIALS", "Invalid email or password"))
			c.Abort()
			return
		}

		tokens, err := h.issueTokens(user)
		if err != nil {
			c.Error(apperr.Internalf("failed to issue tokens"))
			c.Abort()
			return
		}

		if err := h.users.TouchLastLogin(c.Request.Context(), user.ID, time.Now().UTC()); err != nil {
			// Login still succeeds; the timestamp is best-effort.
			slog.Warn("failed to update last_login", "user_id", user.ID, "error", err)
		}
		h.recordLogin(c, user, true)

		c.JSON(http.StatusOK, tokens)
	}
}

// RefreshHandler exchanges a refresh token for a new pair.
// POST /api/v1/auth/refresh
func (h *Handlers) RefreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperr.Validationf("INVALID_REFRESH", "refresh_token is required"))
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(req.RefreshToken)
		if err != nil || claims.TokenType != auth.TokenTypeRefresh {
			c.Error(apperr.Unauthorized("INVALID_REFRESH_TOKEN", "refresh token is invalid or expired"))
			c.Abort()
			return
		}

		user, err := h.users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.Error(apperr.Database("load user", err))
			c.Abort()
			return
		}
		if user == nil || !user.IsActive {
			c.Error(apperr.Unauthorized("INVALID_REFRESH_TOKEN", "account not found or deactivated"))
			c.Abort()
			return
		}

		tokens, err := h.issueTokens(user)
		if err != nil {
			c.Error(apperr.Internalf("failed to issue tokens"))
			c.Abort()
			return
		}

		h.activity.Record(activity.Entry{
			UserID:    user.ID,
			Action:    "auth_token_refresh",
			IPAddress: activity.ClientIP(c.Request),
			UserAgent: c.Request.UserAgent(),
			Success:   true,
		})

		c.JSON(http.StatusOK, tokens)
	}
}

// LogoutHandler records the logout. Tokens are stateless, so this is an
// audit event rather than a revocation.
// POST /api/v1/auth/logout
func (h *Handlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.activity.Record(activity.Entry{
			UserID:    c.GetString(middleware.UserIDKey),
			Action:    "auth_logout",
			IPAddress: activity.ClientIP(c.Request),
			UserAgent: c.Request.UserAgent(),
			Success:   true,
		})
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}

// ChangePasswordHandler lets an authenticated user rotate their own password
// after proving they know the current one.
// POST /api/v1/auth/password-reset
func (h *Handlers) ChangePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			CurrentPassword string `json:"current_password" binding:"required"`
			NewPassword     string `json:"new_password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperr.Validationf("INVALID_PASSWORD_CHANGE", "current_password and new_password are required"))
			c.Abort()
			return
		}

		user := middleware.CurrentUser(c)
		if user == nil {
			c.Error(apperr.Unauthorized("UNAUTHORIZED", "not authenticated"))
			c.Abort()
			return
		}
		if !auth.CheckPassword(req.CurrentPassword, user.PasswordHash) {
			c.Error(apperr.Unauthorized("INVALID_CREDENTIALS", "current password is incorrect"))
			c.Abort()
			return
		}

		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			c.Error(apperr.Validationf("INVALID_PASSWORD", "%s", err.Error()))
			c.Abort()
			return
		}
		if err := h.users.SetPassword(c.Request.Context(), user.ID, hash); err != nil {
			c.Error(apperr.Database("set password", err))
			c.Abort()
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "password updated"})
	}
}

// MeHandler returns the authenticated user.
// GET /api/v1/auth/me
func (h *Handlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.Error(apperr.Unauthorized("UNAUTHORIZED", "not authenticated"))
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

func (h *Handlers) issueTokens(user *models.User) (*tokenResponse, error) {
	access, err := auth.GenerateAccessToken(user.ID, user.Email, user.Role, h.cfg.Auth.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.GenerateRefreshToken(user.ID, user.Email, user.Role, h.cfg.Auth.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}
	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.cfg.Auth.AccessTokenTTL.Seconds()),
		User:         user,
	}, nil
}

// recordLogin emits the auth_login / auth_login_failed record. Failures go
// through RecordLoginFailure so the threshold check that may emit
// suspicious_activity_detected counts this attempt too: the check runs only
// after the failure record has been persisted.
func (h *Handlers) recordLogin(c *gin.Context, user *models.User, success bool) {
	entry := activity.Entry{
		Action:    "auth_login",
		IPAddress: activity.ClientIP(c.Request),
		UserAgent: c.Request.UserAgent(),
		Success:   success,
	}
	if user != nil {
		entry.UserID = user.ID
	}
	if success {
		h.activity.Record(entry)
		return
	}

	entry.Action = "auth_login_failed"
	entry.ErrorMessage = "invalid credentials"
	h.activity.RecordLoginFailure(entry)
}
