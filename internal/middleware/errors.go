// errors.go is the single place where errors become HTTP responses. Handlers
// attach domain errors with c.Error() and return; this middleware classifies
// them, logs them at a severity matching the response class, and writes the
// standard envelope. It also recovers panics, so no request ever escapes
// without a well-formed JSON body.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itz4blitz/glimmr-api-sub005/internal/apperr"
)

// ErrorResponse is the envelope returned for every failed request. The field
// set is stable: statusCode, message, error, timestamp, and path are always
// present; stack appears only outside production and only when the underlying
// fault was a genuine error value; details carries optional structured context
// for client-safe errors.
type ErrorResponse struct {
	StatusCode int                    `json:"statusCode"`
	Message    string                 `json:"message"`
	Error      string                 `json:"error"`
	Timestamp  string                 `json:"timestamp"`
	Path       string                 `json:"path"`
	Stack      string                 `json:"stack,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// ErrorHandler returns the global error-translation middleware. It must wrap
// every route: register it before security headers, rate limiting, and auth
// so their rejections also flow through the envelope.
//
// Severity tiers for the server-side log entry:
//   - 5xx: error level, with stack trace
//   - 4xx: warning level
//   - anything else: info level
func ErrorHandler(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err, isErr := r.(error)
				if !isErr {
					err = fmt.Errorf("panic: %v", r)
				}
				// A panic from a non-error value (string, int) carries no
				// stack in the envelope even in development; the server-side
				// log always gets one.
				writeEnvelope(c, apperr.From(err), !isErr, production, debug.Stack())
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// The last attached error wins; earlier ones are context the
		// handler chose to record on the way out. Server-side kinds carry a
		// stack from their construction site, which points at the fault;
		// anything else falls back to the translator's own frames.
		appErr := apperr.From(c.Errors.Last().Err)
		stack := appErr.Stack()
		if stack == nil {
			stack = debug.Stack()
		}
		writeEnvelope(c, appErr, false, production, stack)
	}
}

func writeEnvelope(c *gin.Context, appErr *apperr.Error, suppressStack, production bool, stack []byte) {
	status := appErr.HTTPStatus()
	path := c.Request.URL.Path

	message := appErr.Message
	if !appErr.ClientSafe() {
		message = "Internal server error"
	}

	logAttrs := []any{
		slog.Int("status", status),
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("message", appErr.Error()),
		slog.String("client_ip", c.ClientIP()),
		slog.String("user_agent", c.Request.UserAgent()),
		slog.String("correlation_id", CorrelationID(c)),
	}

	switch {
	case status >= http.StatusInternalServerError:
		slog.Error("request failed", append(logAttrs, slog.String("stack", string(stack)))...)
	case status >= http.StatusBadRequest:
		slog.Warn("request rejected", logAttrs...)
	default:
		slog.Info("request error", logAttrs...)
	}

	resp := ErrorResponse{
		StatusCode: status,
		Message:    message,
		Error:      apperr.Label(status),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       path,
	}
	if !production && !suppressStack {
		resp.Stack = string(stack)
	}
	if appErr.ClientSafe() && len(appErr.Details) > 0 {
		resp.Details = appErr.Details
	}

	// If the handler already streamed a body there is nothing safe to
	// overwrite; abort so no further middleware appends to it.
	if c.Writer.Written() {
		c.Abort()
		return
	}

	c.AbortWithStatusJSON(status, resp)
}
