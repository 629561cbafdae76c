package fallback

import (
	"fmt"
	"strings"

	"github.com/harunnryd/fallback/pkg/agent"
)

// DebugLevel controls how much diagnostic text is folded into user-visible speech.
type DebugLevel int

const (
	DebugNone DebugLevel = iota
	DebugLow
	DebugVerbose
)

func (d DebugLevel) String() string {
	switch d {
	case DebugLow:
		return "low"
	case DebugVerbose:
		return "verbose"
	default:
		return "none"
	}
}

// ParseDebugLevel accepts none|low|verbose, the stored no_debug|low_debug|verbose_debug
// forms and 0|1|2.
func ParseDebugLevel(raw string) (DebugLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none", "no_debug", "0":
		return DebugNone, nil
	case "low", "low_debug", "1":
		return DebugLow, nil
	case "verbose", "verbose_debug", "2":
		return DebugVerbose, nil
	default:
		return DebugNone, fmt.Errorf("unknown debug level: %q", raw)
	}
}

const (
	DefaultDoneText       = "Done."
	DefaultFailureMessage = "Complete fallback failure. No Conversation Agent was able to respond."
	DefaultLanguage       = "en"
)

// DefaultUnhelpfulResponses are replies some agents return with a success
// classification although nothing was done. Compared lower-cased.
var DefaultUnhelpfulResponses = []string{
	"sorry, i couldn't understand that",
	"sorry, i didn't understand that",
	"sorry, i am not aware of any device called",
	"sorry, i am not aware of any area called",
	"sorry, i am unable to do that",
	"i'm not sure how to help with that",
}

// Selection is the stored agent choice as handed over by the configuration
// layer. Values may be bare ids, conversation entity ids or display names.
type Selection struct {
	PrimaryAgent  string
	FallbackAgent string
	DebugLevel    DebugLevel
}

// Settings is a Selection resolved to canonical agent ids.
type Settings struct {
	Primary  agent.ID
	Fallback agent.ID
	Debug    DebugLevel
}

// Agents returns the cascade order.
func (s Settings) Agents() []agent.ID {
	return []agent.ID{s.Primary, s.Fallback}
}

func resolve(sel Selection, agents *agent.Registry) Settings {
	return Settings{
		Primary:  agents.Resolve(sel.PrimaryAgent),
		Fallback: agents.Resolve(sel.FallbackAgent),
		Debug:    sel.DebugLevel,
	}
}

type unhelpfulSet map[string]struct{}

func newUnhelpfulSet(phrases []string) unhelpfulSet {
	set := make(unhelpfulSet, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

func (u unhelpfulSet) contains(speech string) bool {
	_, ok := u[strings.ToLower(strings.TrimSpace(speech))]
	return ok
}
