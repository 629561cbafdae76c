package translator

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9\s]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	commandRe    = regexp.MustCompile(`^(turn|switch|toggle|set|increase|decrease)\b`)
)

// Normalize lower-cases text, turns everything outside [a-z0-9 ] into
// spaces, collapses whitespace and trims. Normalize is idempotent.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// LooksLikeCommand reports whether normalized text starts with a command verb.
func LooksLikeCommand(normalized string) bool {
	return commandRe.MatchString(normalized)
}

// Confusion is one speech-recognition correction, a regular expression and
// its replacement.
type Confusion struct {
	Pattern     string `mapstructure:"pattern"`
	Replacement string `mapstructure:"replacement"`
}

// DefaultConfusions fixes predictable misrecognitions of command phrases.
var DefaultConfusions = []Confusion{
	{Pattern: `\bgrape room\b`, Replacement: "great room"},
	{Pattern: `\bline\b`, Replacement: "light"},
	{Pattern: `\blife\b`, Replacement: "light"},
}

type compiledConfusion struct {
	re   *regexp.Regexp
	repl string
}

// Corrector applies an ordered list of confusion substitutions.
type Corrector struct {
	rules []compiledConfusion
}

// NewCorrector compiles the confusion table. Rules apply in order.
func NewCorrector(confusions []Confusion) (*Corrector, error) {
	c := &Corrector{rules: make([]compiledConfusion, 0, len(confusions))}
	for _, cf := range confusions {
		re, err := regexp.Compile(cf.Pattern)
		if err != nil {
			return nil, fmt.Errorf("confusion %q: %w", cf.Pattern, err)
		}
		c.rules = append(c.rules, compiledConfusion{re: re, repl: cf.Replacement})
	}
	return c, nil
}

// Apply runs every substitution over s. Only command-shaped text should be
// corrected.
func (c *Corrector) Apply(s string) string {
	if c == nil {
		return s
	}
	for _, r := range c.rules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}
