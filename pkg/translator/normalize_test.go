package translator

import "testing"

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"Turn ON the Kitchen-Light!!",
		"  set   living room\tto 72.5 ",
		"¿Qué tal? café",
		"",
		"toggle    the\n\nfan",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("normalize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
	if got := Normalize("Turn ON the Kitchen-Light!!"); got != "turn on the kitchen light" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}

func TestLooksLikeCommand(t *testing.T) {
	cases := map[string]bool{
		"turn on the light":        true,
		"switch off porch":         true,
		"toggle fan":               true,
		"set bedroom to 70":        true,
		"increase the temperature": true,
		"decrease volume":          true,
		"what time is it":          false,
		"turnip soup recipe":       false,
		"settle the bill":          false,
		"":                         false,
	}
	for in, want := range cases {
		if got := LooksLikeCommand(in); got != want {
			t.Fatalf("LooksLikeCommand(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCorrectorAppliesInOrder(t *testing.T) {
	c, err := NewCorrector(DefaultConfusions)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if got := c.Apply("turn on the grape room line"); got != "turn on the great room light" {
		t.Fatalf("unexpected correction: %q", got)
	}
	if got := c.Apply("turn on the lifesaver"); got != "turn on the lifesaver" {
		t.Fatalf("expected word boundary to protect lifesaver, got %q", got)
	}
}

func TestNewCorrectorRejectsBadPattern(t *testing.T) {
	if _, err := NewCorrector([]Confusion{{Pattern: "(", Replacement: "x"}}); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		in     string
		ok     bool
		verb   Verb
		target string
		value  float64
	}{
		{in: "turn on the kitchen light", ok: true, verb: VerbOn, target: "kitchen light"},
		{in: "switch off porch", ok: true, verb: VerbOff, target: "porch"},
		{in: "toggle the fan", ok: true, verb: VerbToggle, target: "fan"},
		{in: "set living room to 72", ok: true, verb: VerbSet, target: "living room", value: 72},
		{in: "set the big bedroom to 68 degrees", ok: true, verb: VerbSet, target: "the big bedroom", value: 68},
		{in: "increase the temperature", ok: false},
		{in: "set the mood", ok: false},
		{in: "turn on", ok: false},
	}
	for _, tc := range cases {
		cmd, ok := Parse(tc.in)
		if ok != tc.ok {
			t.Fatalf("Parse(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if cmd.Verb != tc.verb || cmd.Target != tc.target || cmd.Value != tc.value {
			t.Fatalf("Parse(%q) = %+v", tc.in, cmd)
		}
	}
}

func TestScoreBounds(t *testing.T) {
	if got := Score("kitchen light", "kitchen light"); got != 1 {
		t.Fatalf("expected identical strings to score 1, got %f", got)
	}
	if got := Score("", "kitchen light"); got != 0 {
		t.Fatalf("expected empty side to score 0, got %f", got)
	}
	if got := Score("garage door", "kitchen light"); got <= 0 || got >= 0.5 {
		t.Fatalf("expected low but positive score, got %f", got)
	}
}
