// activity.go is the request interceptor that feeds the activity log. It runs
// innermost so it observes the status and body size the handler actually
// produced, then hands a sanitized entry to the activity service, which
// persists it off the request goroutine.
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itz4blitz/glimmr-api-sub005/internal/activity"
	"github.com/itz4blitz/glimmr-api-sub005/internal/apperr"
)

// Context keys for per-route overrides. Routes set these with the helper
// middlewares below; the interceptor reads them after the handler returns.
const (
	skipActivityKey         = "activity.skip"
	actionOverrideKey       = "activity.action"
	resourceTypeOverrideKey = "activity.resource_type"
)

// SkipActivityLog marks a route as excluded from activity logging, for
// endpoints that are noise rather than audit signal.
func SkipActivityLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(skipActivityKey, true)
		c.Next()
	}
}

// WithAction overrides the derived action name for a route whose path does
// not describe what it does (e.g. an RPC-style endpoint).
func WithAction(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(actionOverrideKey, action)
		c.Next()
	}
}

// WithResourceType overrides the derived resource type for a route.
func WithResourceType(resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(resourceTypeOverrideKey, resourceType)
		c.Next()
	}
}

// ActivityMiddleware records one activity entry per request. skipPaths is
// consulted on every request so a config hot reload takes effect immediately.
//
// The entry's action is derived from (method, path) unless the route declared
// an override; failed requests (status >= 400) get a "_failed" suffix and
// carry the translator's message plus the stable error code when one exists.
// Query and route parameters are sanitized before they enter metadata.
func ActivityMiddleware(svc *activity.Service, skipPaths func() []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range skipPaths() {
			if path == skip || strings.HasPrefix(path, skip+"/") {
				c.Next()
				return
			}
		}

		start := time.Now()
		c.Next()

		if c.GetBool(skipActivityKey) {
			return
		}

		// The error translator sits outside this middleware, so a handler
		// that attached an error has not produced its envelope yet; resolve
		// the status the translator will write.
		status := c.Writer.Status()
		if len(c.Errors) > 0 && !c.Writer.Written() {
			status = apperr.From(c.Errors.Last().Err).HTTPStatus()
		}
		success := status < 400

		action := c.GetString(actionOverrideKey)
		if action == "" {
			action = activity.DeriveAction(c.Request.Method, path)
		}
		if !success {
			action += "_failed"
		}

		resourceType := c.GetString(resourceTypeOverrideKey)
		if resourceType == "" {
			resourceType = activity.DeriveResourceType(path)
		}

		metadata := map[string]interface{}{
			"status":        status,
			"duration_ms":   float64(time.Since(start).Microseconds()) / 1000.0,
			"response_size": c.Writer.Size(),
		}
		if query := queryValues(c); len(query) > 0 {
			metadata["query"] = activity.SanitizeValues(query)
		}
		if params := routeParams(c); len(params) > 0 {
			metadata["params"] = activity.SanitizeValues(params)
		}

		var errorMessage string
		if !success {
			errorMessage = "request failed"
			if len(c.Errors) > 0 {
				last := c.Errors.Last()
				errorMessage = last.Error()
				if code := apperr.From(last.Err).Code; code != "" {
					metadata["error_code"] = code
				}
			}
		}

		svc.Record(activity.Entry{
			UserID:       c.GetString("user_id"),
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   activity.DeriveResourceID(routeParams(c), path),
			Metadata:     metadata,
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
			Success:      success,
			ErrorMessage: errorMessage,
		})
	}
}

func queryValues(c *gin.Context) map[string]string {
	raw := c.Request.URL.Query()
	if len(raw) == 0 {
		return nil
	}
	values := make(map[string]string, len(raw))
	for key, vals := range raw {
		if len(vals) > 0 {
			values[key] = vals[0]
		}
	}
	return values
}

func routeParams(c *gin.Context) map[string]string {
	if len(c.Params) == 0 {
		return nil
	}
	params := make(map[string]string, len(c.Params))
	for _, p := range c.Params {
		params[p.Key] = p.Value
	}
	return params
}
