// Package translator deterministically maps a free-text command onto a
// single device action against the entity catalog.
package translator

import (
	"strings"

	"github.com/harunnryd/fallback/pkg/catalog"
)

// Reason explains why a request was not translated.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonNoText        Reason = "no_text"
	ReasonNotCommand    Reason = "not_command"
	ReasonUnparsed      Reason = "unparsed_command"
	ReasonNoEntityMatch Reason = "no_entity_match"
	ReasonSetNotClimate Reason = "set_not_climate"
	ReasonUnsupported   Reason = "unsupported"
)

// Result is the outcome of translating one request.
type Result struct {
	Handled        bool
	Plan           *ActionPlan
	Reason         Reason
	NormalizedText string
	Match          Match
}

type Config struct {
	Resolver ResolverConfig
	// Confusions replaces DefaultConfusions when non-nil.
	Confusions []Confusion
}

type Translator struct {
	corrector *Corrector
	resolver  *Resolver
}

func New(cfg Config) (*Translator, error) {
	confusions := cfg.Confusions
	if confusions == nil {
		confusions = DefaultConfusions
	}
	corrector, err := NewCorrector(confusions)
	if err != nil {
		return nil, err
	}
	return &Translator{corrector: corrector, resolver: NewResolver(cfg.Resolver)}, nil
}

// Default returns a translator with the built-in confusion table and
// thresholds.
func Default() *Translator {
	t, err := New(Config{})
	if err != nil {
		panic(err)
	}
	return t
}

// Translate runs normalize, gate, correct, parse, resolve and plan.
func (t *Translator) Translate(text string, items []catalog.Item, areaHint string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Reason: ReasonNoText}
	}
	normalized := Normalize(text)
	if !LooksLikeCommand(normalized) {
		return Result{Reason: ReasonNotCommand, NormalizedText: normalized}
	}
	normalized = t.corrector.Apply(normalized)

	cmd, ok := Parse(normalized)
	if !ok {
		return Result{Reason: ReasonUnparsed, NormalizedText: normalized}
	}

	match := t.resolver.Resolve(cmd.Target, items, areaHint)
	if !match.Matched {
		return Result{Reason: ReasonNoEntityMatch, NormalizedText: normalized, Match: match}
	}

	plan, reason := Plan(cmd, match.EntityID)
	if reason != ReasonNone {
		return Result{Reason: reason, NormalizedText: normalized, Match: match}
	}
	plan.NormalizedText = normalized
	plan.MatchScore = match.Score
	return Result{Handled: true, Plan: &plan, NormalizedText: normalized, Match: match}
}
