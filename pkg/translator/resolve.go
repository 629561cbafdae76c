package translator

import (
	"sort"
	"strings"

	"github.com/harunnryd/fallback/pkg/catalog"
)

const (
	DefaultMinScore     = 0.88
	DefaultMinMargin    = 0.06
	DefaultAreaMinScore = 0.72
	DefaultAreaBonus    = 0.015
)

// DefaultGenericWords are device-type words stripped from a target phrase
// before it is compared against area names.
var DefaultGenericWords = []string{"light", "fan", "switch", "cover", "lock", "thermostat", "scene"}

// ResolverConfig zero values select the defaults. A negative AreaBonus
// disables the area-hint bonus.
type ResolverConfig struct {
	MinScore     float64
	MinMargin    float64
	AreaMinScore float64
	AreaBonus    float64
	GenericWords []string
	Domains      []string
}

// Match is the outcome of resolving one target phrase.
type Match struct {
	EntityID string
	Score    float64
	RunnerUp float64
	// Area is the normalized area name detected in the phrase, if any.
	Area    string
	Matched bool
}

// Resolver selects at most one catalog item for a target phrase. It fails
// closed on low confidence and on near ties.
type Resolver struct {
	cfg     ResolverConfig
	generic map[string]struct{}
	domains map[string]struct{}
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	if cfg.MinMargin <= 0 {
		cfg.MinMargin = DefaultMinMargin
	}
	if cfg.AreaMinScore <= 0 {
		cfg.AreaMinScore = DefaultAreaMinScore
	}
	switch {
	case cfg.AreaBonus == 0:
		cfg.AreaBonus = DefaultAreaBonus
	case cfg.AreaBonus < 0:
		cfg.AreaBonus = 0
	}
	if cfg.GenericWords == nil {
		cfg.GenericWords = DefaultGenericWords
	}
	if len(cfg.Domains) == 0 {
		cfg.Domains = catalog.DefaultDomains
	}
	r := &Resolver{
		cfg:     cfg,
		generic: make(map[string]struct{}, len(cfg.GenericWords)),
		domains: make(map[string]struct{}, len(cfg.Domains)),
	}
	for _, w := range cfg.GenericWords {
		r.generic[Normalize(w)] = struct{}{}
	}
	for _, d := range cfg.Domains {
		r.domains[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return r
}

// Resolve scores target against every candidate string of every eligible
// item. areaHint, when set, is the area the request came from and earns a
// small bonus for items in that area.
func (r *Resolver) Resolve(target string, items []catalog.Item, areaHint string) Match {
	target = Normalize(target)
	hint := Normalize(areaHint)

	eligible := make([]catalog.Item, 0, len(items))
	for _, it := range items {
		if _, ok := r.domains[it.Domain]; ok {
			eligible = append(eligible, it)
		}
	}

	var m Match
	if area, ok := r.detectArea(target, eligible); ok {
		m.Area = area
		restricted := eligible[:0:0]
		for _, it := range eligible {
			if Normalize(it.AreaName) == area {
				restricted = append(restricted, it)
			}
		}
		eligible = restricted
	}
	if len(eligible) == 0 {
		return m
	}

	scores := make([]float64, len(eligible))
	bestIdx := -1
	for i, it := range eligible {
		s := 0.0
		for _, cand := range candidates(it) {
			if v := Score(target, cand); v > s {
				s = v
			}
		}
		if hint != "" && it.AreaName != "" && Normalize(it.AreaName) == hint {
			s += r.cfg.AreaBonus
			if s > 1 {
				s = 1
			}
		}
		scores[i] = s
		if bestIdx < 0 || s > scores[bestIdx] {
			bestIdx = i
		}
	}
	for i, s := range scores {
		if i != bestIdx && s > m.RunnerUp {
			m.RunnerUp = s
		}
	}

	m.Score = scores[bestIdx]
	if m.Score < r.cfg.MinScore || m.Score-m.RunnerUp < r.cfg.MinMargin {
		return m
	}
	m.EntityID = eligible[bestIdx].EntityID
	m.Matched = true
	return m
}

// detectArea strips generic device words from target and returns the known
// area name the remainder matches best, if it clears the area floor.
func (r *Resolver) detectArea(target string, items []catalog.Item) (string, bool) {
	var kept []string
	for _, tok := range strings.Fields(target) {
		if _, ok := r.generic[tok]; !ok {
			kept = append(kept, tok)
		}
	}
	rest := strings.Join(kept, " ")
	if rest == "" {
		return "", false
	}

	seen := make(map[string]struct{})
	best, bestScore := "", 0.0
	for _, it := range items {
		area := Normalize(it.AreaName)
		if area == "" {
			continue
		}
		if _, ok := seen[area]; ok {
			continue
		}
		seen[area] = struct{}{}
		if s := Score(rest, area); s > bestScore {
			best, bestScore = area, s
		}
	}
	if best == "" || bestScore < r.cfg.AreaMinScore {
		return "", false
	}
	return best, true
}

// candidates lists every reasonable way to refer to an item: its name, the
// name without a leading area, area plus name, the device name and area plus
// device name.
func candidates(it catalog.Item) []string {
	name := Normalize(it.Name)
	set := map[string]struct{}{name: {}}

	area := Normalize(it.AreaName)
	if area != "" {
		if strings.HasPrefix(name, area+" ") {
			set[strings.TrimSpace(name[len(area)+1:])] = struct{}{}
		}
		set[strings.TrimSpace(area+" "+name)] = struct{}{}
	}
	if dev := Normalize(it.DeviceName); dev != "" {
		set[dev] = struct{}{}
		if area != "" {
			set[strings.TrimSpace(area+" "+dev)] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
