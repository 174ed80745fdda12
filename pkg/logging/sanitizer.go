// Package logging keeps contact PII and credentials out of log output.
package logging

import (
	"regexp"
	"strings"
)

const (
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Email addresses appearing in free text
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// E.164 and loosely formatted phone numbers
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
)

// SanitizeConnectionString removes sensitive data from connection strings
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages before logging. Database errors can
// echo row contents, so contact PII is scrubbed along with credentials.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizePII(SanitizeConnectionString(err.Error()))
}

// SanitizePII masks email addresses and phone numbers in free text.
// Reconciliation log lines reference records by id, never by contact value;
// this is the backstop for values that arrive embedded in messages.
func SanitizePII(s string) string {
	if s == "" {
		return ""
	}

	sanitized := emailPattern.ReplaceAllStringFunc(s, maskEmail)
	sanitized = phonePattern.ReplaceAllStringFunc(sanitized, maskPhone)

	return sanitized
}

// maskEmail keeps the first character of the local part and the domain so
// operators can still correlate log lines with source rows.
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return RedactedText
	}
	return email[:1] + "***" + email[at:]
}

// maskPhone keeps the last four digits.
func maskPhone(phone string) string {
	var digits []rune
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return RedactedText
	}
	return "***" + string(digits[len(digits)-4:])
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
