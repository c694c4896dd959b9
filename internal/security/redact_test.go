package security

import "testing"

func TestRedactPII(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"reset for john.smith@company.com please", "reset for [EMAIL_REDACTED] please"},
		{"call me at 555-123-4567", "call me at [PHONE_REDACTED]"},
		{"a@b.io and 212-555-0100", "[EMAIL_REDACTED] and [PHONE_REDACTED]"},
		{"how do I connect to vpn", "how do I connect to vpn"},
		{"5551234567", "5551234567"},
	}
	for _, tt := range tests {
		if got := RedactPII(tt.in); got != tt.want {
			t.Errorf("RedactPII(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
