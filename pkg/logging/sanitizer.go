package logging

import (
	"regexp"
)

const (
	// MaxExpressionLogLength caps generated expressions in log output.
	MaxExpressionLogLength = 120
	// RedactedText is the replacement text for sensitive data.
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx in connection strings
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// api_key=xxxx style credentials
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// user:pass@host credentials inside URLs
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// quoted or backticked fragments that may echo a generated expression
	quotedFragmentPattern = regexp.MustCompile("`[^`]*`|\"[^\"]{20,}\"")
)

// SanitizeConnectionString removes credentials from a connection string
// before it is logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError produces a log-safe rendering of an error.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// UserFacingError reduces an internal error to a message safe to store on a
// Query or Dataset row. Generated expressions and quoted internals are
// stripped so the raw expression never reaches the user.
func UserFacingError(err error) string {
	if err == nil {
		return ""
	}
	msg := quotedFragmentPattern.ReplaceAllString(err.Error(), RedactedText)
	msg = passwordPattern.ReplaceAllString(msg, "${1}="+RedactedText)
	return TruncateString(msg, 300)
}

// SanitizeExpression truncates a generated expression for logging.
func SanitizeExpression(expr string) string {
	return TruncateString(expr, MaxExpressionLogLength)
}

// TruncateString truncates s to maxLen runes of bytes and appends an ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
