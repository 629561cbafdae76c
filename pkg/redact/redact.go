// Package redact masks personal data in utterances before they are logged.
package redact

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
	jwtRe   = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`)
)

// Redactor masks emails, phone numbers and bearer tokens when enabled.
// The zero value passes text through unchanged.
type Redactor struct {
	Enabled bool
}

func New(enabled bool) Redactor {
	return Redactor{Enabled: enabled}
}

// Text redacts an utterance or agent reply for logging.
func (r Redactor) Text(in string) string {
	if !r.Enabled || strings.TrimSpace(in) == "" {
		return in
	}
	out := jwtRe.ReplaceAllString(in, "[REDACTED_TOKEN]")
	out = emailRe.ReplaceAllString(out, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Secret masks a credential regardless of Enabled, keeping a short prefix.
func Secret(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return ""
	}
	if len(in) <= 8 {
		return "****"
	}
	return in[:4] + "****"
}
