package translator

import (
	"regexp"
	"strconv"
)

// Verb is the action a parsed command asks for.
type Verb string

const (
	VerbOn     Verb = "on"
	VerbOff    Verb = "off"
	VerbToggle Verb = "toggle"
	VerbSet    Verb = "set"
)

var (
	switchRe = regexp.MustCompile(`^(turn on|turn off|switch on|switch off|toggle)\s+(the\s+)?(.+)$`)
	setRe    = regexp.MustCompile(`^set\s+(.+?)\s+to\s+([0-9]+(\.[0-9]+)?)\b`)
)

// Command is a parsed command: a verb, the free-text target phrase and, for
// set, the numeric value.
type Command struct {
	Verb   Verb
	Target string
	Value  float64
}

// Parse recognizes the on/off/toggle and set-to-number shapes in normalized
// text. Anything else, including increase/decrease, does not parse.
func Parse(normalized string) (Command, bool) {
	if m := switchRe.FindStringSubmatch(normalized); m != nil {
		cmd := Command{Target: m[3]}
		switch m[1] {
		case "turn on", "switch on":
			cmd.Verb = VerbOn
		case "turn off", "switch off":
			cmd.Verb = VerbOff
		default:
			cmd.Verb = VerbToggle
		}
		return cmd, true
	}
	if m := setRe.FindStringSubmatch(normalized); m != nil {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return Command{}, false
		}
		return Command{Verb: VerbSet, Target: m[1], Value: v}, true
	}
	return Command{}, false
}
