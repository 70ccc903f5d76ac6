package shared

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// secretPatterns matches credential-bearing patterns that can leak into
// log lines, journal entries, or error strings: per-session engine
// passwords, control-API tokens, and bearer headers.
var secretPatterns = []*regexp.Regexp{
	// key=value style secrets (password, token, host-token, secret)
	regexp.MustCompile(`(?i)(password|host[_-]?token|client[_-]?token|auth[_-]?token|token|secret)\s*[:=]\s*"?([A-Za-z0-9_\-./+=]{8,})"?`),
	// command-line flags carrying credentials
	regexp.MustCompile(`(?i)(--(?:opencode-)?(?:password|token|host-token)[ =])(\S+)`),
	// Bearer tokens in Authorization headers
	regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9_\-./+=]{16,})`),
	// bare UUIDs following auth-ish prefixes
	regexp.MustCompile(`(?i)(password|token|secret)\s*[:=]\s*"?([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})"?`),
}

// Redact replaces credential-bearing patterns in the input with [REDACTED].
func Redact(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllStringFunc(result, func(match string) string {
			submatch := pat.FindStringSubmatch(match)
			if len(submatch) >= 3 {
				return submatch[1] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return result
}

// RedactEnvValue returns a redacted value when the key name looks secret.
func RedactEnvValue(key, value string) string {
	keyLower := strings.ToLower(key)
	sensitiveKeys := []string{"api_key", "apikey", "secret", "token", "password", "credential"}
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return redactedPlaceholder
		}
	}
	return value
}
