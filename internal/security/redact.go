package security

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	phonePattern = regexp.MustCompile(`\d{3}-\d{3}-\d{4}`)
)

// Redaction markers.
const (
	EmailRedacted = "[EMAIL_REDACTED]"
	PhoneRedacted = "[PHONE_REDACTED]"
)

// RedactPII masks email addresses and NNN-NNN-NNNN phone numbers.
func RedactPII(s string) string {
	s = emailPattern.ReplaceAllString(s, EmailRedacted)
	return phonePattern.ReplaceAllString(s, PhoneRedacted)
}
