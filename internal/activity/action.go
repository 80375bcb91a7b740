// Package activity implements the request activity logging pipeline: action
// derivation, metadata sanitization, and asynchronous persistence of audit
// records. Activity records are intentionally separate from application logs
// because they have different consumers and retention requirements —
// application logs are ephemeral debug output consumed by on-call engineers,
// while activity records are durable audit rows consumed by administrators
// through the dashboard.
package activity

import (
	"regexp"
	"strings"
)

// uuidPattern matches the 8-4-4-4-12 hex form used for resource ids.
var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// authActions maps auth path substrings to fixed action names. Checked before
// any other derivation rule.
var authActions = []struct {
	substr string
	action string
}{
	{"/login", "auth_login"},
	{"/logout", "auth_logout"},
	{"/register", "auth_register"},
	{"/refresh", "auth_token_refresh"},
	{"/password-reset", "auth_password_reset"},
	{"/verify-email", "auth_verify_email"},
	{"/resend-verification", "auth_resend_verification"},
}

// jobActions maps job trigger sub-paths to fixed action names. Ordered so the
// more specific patterns match first.
var jobActions = []struct {
	substr string
	action string
}{
	{"/pra/scan", "job_pra_scan_trigger"},
	{"/pra/full-refresh", "job_pra_full_refresh_trigger"},
	{"/cleanup", "job_cleanup_trigger"},
	{"/analytics/refresh", "job_analytics_refresh_trigger"},
	{"/price-update", "job_price_update_trigger"},
	{"/hospital-import", "job_hospital_import_trigger"},
}

// resourceTypes maps path substrings to resource type tags, ordered by
// precedence.
var resourceTypes = []struct {
	substr string
	rtype  string
}{
	{"/users", "user"},
	{"/hospitals", "hospital"},
	{"/prices", "price"},
	{"/jobs", "job"},
	{"/analytics", "analytics"},
	{"/auth", "auth"},
	{"/profile", "profile"},
	{"/notifications", "notification"},
}

// resourceIDParams are the route parameter names probed, in order, for a
// resource identifier before falling back to a UUID scan of the path.
var resourceIDParams = []string{"id", "userId", "hospitalId", "priceId", "fileId", "jobId", "notificationId"}

// DeriveAction computes a stable action tag for a request. Derivation is a
// pure function of (method, path): auth and job and user special cases are
// checked first, then the fallback builds `{segment}_{verb}` from the last
// non-identifier path segment.
func DeriveAction(method, path string) string {
	// Job paths are classified first: /jobs/analytics/refresh would otherwise
	// be claimed by the /refresh auth special.
	if strings.Contains(path, "/jobs") {
		for _, j := range jobActions {
			if strings.Contains(path, j.substr) {
				return j.action
			}
		}
	}

	for _, a := range authActions {
		if strings.Contains(path, a.substr) {
			return a.action
		}
	}

	if strings.Contains(path, "/users") {
		switch {
		case strings.Contains(path, "/bulk"):
			return "user_bulk_update"
		case strings.Contains(path, "/deactivate"):
			return "user_deactivate"
		case strings.Contains(path, "/activate"):
			return "user_activate"
		case strings.Contains(path, "/role"):
			return "user_role_update"
		case strings.Contains(path, "/profile"):
			return "user_profile_update"
		case strings.Contains(path, "/preferences"):
			return "user_preferences_update"
		case strings.Contains(path, "/export"):
			return "user_export"
		case strings.Contains(path, "/import"):
			return "user_import"
		case strings.Contains(path, "/api-key"):
			if method == "DELETE" {
				return "user_api_key_revoke"
			}
			return "user_api_key_generate"
		}
	}

	return fallbackAction(method, path)
}

func fallbackAction(method, path string) string {
	segment := lastResourceSegment(path)
	if segment == "" {
		segment = "request"
	}
	return singularize(segment) + "_" + verbForMethod(method)
}

// lastResourceSegment returns the last path segment that is not an
// identifier (numeric or UUID-shaped) and not API version noise.
func lastResourceSegment(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		s := segments[i]
		if s == "" || s == "api" || isVersionSegment(s) || isIdentifier(s) {
			continue
		}
		return strings.ToLower(s)
	}
	return ""
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || (s[0] != 'v' && s[0] != 'V') {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isIdentifier(s string) bool {
	if uuidPattern.MatchString(s) {
		return true
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

func singularize(s string) string {
	if len(s) > 1 && strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss") {
		return s[:len(s)-1]
	}
	return s
}

func verbForMethod(method string) string {
	switch method {
	case "GET":
		return "view"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// DeriveResourceType computes the resource type tag for a path, or "" when
// nothing matches and the path has no usable segment.
func DeriveResourceType(path string) string {
	for _, r := range resourceTypes {
		if strings.Contains(path, r.substr) {
			return r.rtype
		}
	}
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if s == "" || s == "api" || isVersionSegment(s) {
			continue
		}
		return strings.ToLower(s)
	}
	return ""
}

// DeriveResourceID extracts a resource identifier from bound route params,
// probing well-known parameter names first, then falling back to the first
// UUID-shaped path segment. Returns "" when nothing matches.
func DeriveResourceID(params map[string]string, path string) string {
	for _, name := range resourceIDParams {
		if v, ok := params[name]; ok && v != "" {
			return v
		}
	}
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if uuidPattern.MatchString(s) {
			return s
		}
	}
	return ""
}
