package activity

import "strings"

// RedactionMarker replaces sensitive values before they reach logs or
// persistence.
const RedactionMarker = "[REDACTED]"

// sensitiveKeyParts are matched as substrings of the lowercased key. A key
// containing any of these never keeps its original value.
var sensitiveKeyParts = []string{"password", "token", "secret", "apikey", "authorization", "cookie"}

// IsSensitiveKey reports whether a metadata or parameter key must be
// redacted.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// Sanitize returns a copy of metadata with every sensitive value replaced by
// the redaction marker. Nested maps are sanitized recursively so a safe key
// holding an object cannot smuggle sensitive subkeys through. The input is
// never mutated; nil in, nil out.
func Sanitize(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		if IsSensitiveKey(k) {
			out[k] = RedactionMarker
			continue
		}
		switch nested := v.(type) {
		case map[string]interface{}:
			out[k] = Sanitize(nested)
		case map[string]string:
			m := make(map[string]interface{}, len(nested))
			for nk, nv := range nested {
				m[nk] = nv
			}
			out[k] = Sanitize(m)
		default:
			out[k] = v
		}
	}
	return out
}

// SanitizeValues redacts a flat string map (query or route parameters) in the
// same way, returning a copy safe to attach to log metadata.
func SanitizeValues(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if IsSensitiveKey(k) {
			out[k] = RedactionMarker
		} else {
			out[k] = v
		}
	}
	return out
}
