// Package normalize canonicalizes contact attributes for comparison.
// It is the single source of truth for comparable email and phone forms;
// matching and survivorship must call it rather than re-normalize, or
// drift between components produces false negatives.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// Extensions like "x123", "ext 123", "ext. 123" or "#123" at the end of a number.
	phoneExtensionPattern = regexp.MustCompile(`(?i)\s*(?:x|ext\.?|extension|#)\s*\d+\s*$`)

	// Strict E.164: "+" followed by 8-15 digits, first digit 1-9.
	e164Pattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
)

// Email canonicalizes an email address: lower-case, trim, and strip a
// "+suffix" tag from the local part. Returns "" when the input is empty or
// has no recognizable local@domain shape.
func Email(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return ""
	}

	at := strings.LastIndex(v, "@")
	if at <= 0 || at == len(v)-1 {
		return ""
	}

	local, domain := v[:at], v[at+1:]
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	if local == "" || !strings.Contains(domain, ".") {
		return ""
	}

	return local + "@" + domain
}

// EmailLocalDomain splits a normalized email into local part and domain.
// The second return is false when the value is not a normalized email.
func EmailLocalDomain(normalized string) (local, domain string, ok bool) {
	at := strings.LastIndex(normalized, "@")
	if at <= 0 || at == len(normalized)-1 {
		return "", "", false
	}
	return normalized[:at], normalized[at+1:], true
}

// Phone canonicalizes a phone number to strict E.164. Extensions and
// formatting punctuation are stripped; bare 10-digit US numbers become
// "+1XXXXXXXXXX", 11-digit numbers with a leading 1 likewise. Numbers
// already carrying "+" pass through after digit revalidation. Returns ""
// when the result does not satisfy E.164.
func Phone(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}

	v = phoneExtensionPattern.ReplaceAllString(v, "")

	hasPlus := strings.HasPrefix(strings.TrimSpace(v), "+")

	var digits strings.Builder
	for _, r := range v {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	var candidate string
	switch {
	case hasPlus:
		candidate = "+" + d
	case len(d) == 10:
		candidate = "+1" + d
	case len(d) == 11 && d[0] == '1':
		candidate = "+" + d
	default:
		candidate = "+" + d
	}

	if !e164Pattern.MatchString(candidate) {
		return ""
	}
	return candidate
}

// Name canonicalizes a person or organization name for similarity scoring:
// lower-case, punctuation dropped, whitespace collapsed, common personal
// suffixes removed.
func Name(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return ""
	}

	for _, suffix := range []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv", " phd", " md"} {
		if strings.HasSuffix(v, suffix) {
			v = v[:len(v)-len(suffix)]
			break
		}
	}

	var b strings.Builder
	prevSpace := false
	for _, r := range v {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// Tokens splits a value into normalized tokens for token-set and
// token-sort similarity.
func Tokens(value string) []string {
	n := Name(value)
	if n == "" {
		return nil
	}
	return strings.Fields(n)
}
