package logger

import (
	"regexp"
	"strings"
)

const (
	// MaxQueryLogLength caps how much of a statement goes into a log line
	MaxQueryLogLength = 200
	RedactedText      = "[REDACTED]"
)

var (
	passwordPattern   = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)
	apiKeyPattern     = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)
	bearerPattern     = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9-_.]+`)
	secretKeyPattern  = regexp.MustCompile(`sk-[A-Za-z0-9-_]{16,}`)
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`)
)

// SanitizeConnectionString hides credentials in a DSN or database URL
func SanitizeConnectionString(dsn string) string {
	s := passwordPattern.ReplaceAllString(dsn, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@")
}

// SanitizeError removes credentials and API keys from an error message
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	s := SanitizeConnectionString(err.Error())
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	return secretKeyPattern.ReplaceAllString(s, RedactedText)
}

// SanitizeQuery collapses whitespace and truncates a statement for logging
func SanitizeQuery(query string) string {
	s := strings.Join(strings.Fields(query), " ")
	if len(s) > MaxQueryLogLength {
		s = s[:MaxQueryLogLength] + "..."
	}
	return passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
}
