// auth.go authenticates requests and enforces role requirements. Two
// credentials are accepted on the Authorization header: JWT access tokens
// (issued at login, stateless signature check) and personal API keys
// (long-lived, bcrypt-hashed server side). JWT is tried first because it
// needs no database round-trip for the signature check.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/itz4blitz/glimmr-api-sub005/internal/apperr"
	"github.com/itz4blitz/glimmr-api-sub005/internal/auth"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/models"
	"github.com/itz4blitz/glimmr-api-sub005/internal/db/repositories"
)

// Context keys populated on successful authentication.
const (
	UserKey       = "user"
	UserIDKey     = "user_id"
	UserRoleKey   = "user_role"
	AuthMethodKey = "auth_method"
)

// AuthMiddleware validates the Authorization header and loads the acting
// user into the request context. Requests without a valid credential are
// rejected with a 401 envelope.
func AuthMiddleware(users *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}

		// JWT path: signature check only, then a user load to honour
		// deactivation immediately rather than at token expiry.
		if claims, err := auth.ValidateToken(token); err == nil {
			if claims.TokenType != auth.TokenTypeAccess {
				abortUnauthorized(c, "refresh tokens cannot be used for requests")
				return
			}

			user, err := users.GetByID(c.Request.Context(), claims.UserID)
			if err != nil {
				c.Error(apperr.Database("load user", err))
				c.Abort()
				return
			}
			if user == nil || !user.IsActive {
				abortUnauthorized(c, "account not found or deactivated")
				return
			}

			setIdentity(c, user, "jwt")
			c.Next()
			return
		}

		// API key path. Only the bcrypt hash is stored; the plaintext
		// display prefix narrows candidates with an indexed query so the
		// expensive comparison runs on a handful of rows, not the table.
		prefix := token
		if len(prefix) > auth.APIKeyDisplayLength {
			prefix = prefix[:auth.APIKeyDisplayLength]
		}
		candidates, err := users.ListByAPIKeyPrefix(c.Request.Context(), prefix)
		if err != nil {
			c.Error(apperr.Database("look up api key", err))
			c.Abort()
			return
		}
		for _, user := range candidates {
			if user.APIKeyHash != nil && auth.ValidateAPIKey(token, *user.APIKeyHash) {
				setIdentity(c, user, "api_key")
				c.Next()
				return
			}
		}

		abortUnauthorized(c, "invalid credentials")
	}
}

// RequireRole rejects authenticated requests whose user holds none of the
// given roles. Must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(UserRoleKey)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.Error(apperr.Forbidden("INSUFFICIENT_ROLE", "this action requires elevated permissions"))
		c.Abort()
	}
}

// CurrentUser returns the authenticated user from the context, or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(UserKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

func setIdentity(c *gin.Context, user *models.User, method string) {
	c.Set(UserKey, user)
	c.Set(UserIDKey, user.ID)
	c.Set(UserRoleKey, user.Role)
	c.Set(AuthMethodKey, method)
}

func abortUnauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="glimmr-api"`)
	c.Error(apperr.Unauthorized("UNAUTHORIZED", message))
	c.Abort()
}
