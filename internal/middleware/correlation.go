// Package middleware provides the Gin HTTP middleware for the Glimmr API.
//
// Middleware ordering matters and is enforced in internal/api/router.go:
//
//	Correlation → Metrics → ErrorHandler → SecurityHeaders → RateLimit → Auth → Activity → Handler
//
// Correlation runs first so every log line, including error-translator output,
// carries the request identifier. The error handler wraps everything inside it
// so any panic or c.Error() from later middleware and handlers is translated
// into the standard envelope. Rate limiting runs before auth to shed
// brute-force traffic without database work. The activity interceptor runs
// innermost so it observes the final status the handler produced.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CorrelationIDHeader is the HTTP header used to propagate the request
	// identifier between services.
	CorrelationIDHeader = "X-Correlation-ID"

	// CorrelationIDKey is the gin.Context key under which the identifier is
	// stored so handlers and other middleware can read it without parsing
	// headers.
	CorrelationIDKey = "correlation_id"
)

// CorrelationMiddleware ensures every request carries a correlation identifier.
// An inbound X-Correlation-ID (set by a load balancer, gateway, or caller) is
// reused unchanged; otherwise a new UUID v4 is generated. The identifier is
// echoed back in the response header so clients can reference server-side logs.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(CorrelationIDKey, id)
		c.Header(CorrelationIDHeader, id)

		c.Next()
	}
}

// CorrelationID returns the request's correlation identifier, or "unknown"
// when the middleware did not run (direct handler tests, background contexts).
func CorrelationID(c *gin.Context) string {
	if id := c.GetString(CorrelationIDKey); id != "" {
		return id
	}
	return "unknown"
}
