package translator

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	sequenceWeight = 0.55
	tokenWeight    = 0.45
)

// SequenceRatio is the character-level Ratcliff/Obershelp similarity of a
// and b in [0,1].
func SequenceRatio(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

// TokenJaccard is the Jaccard similarity of the whitespace token sets of a
// and b. It is zero when either side has no tokens.
func TokenJaccard(a, b string) float64 {
	as, bs := tokenSet(a), tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

// Score blends sequence similarity and token overlap:
// 0.55*sequence + 0.45*jaccard. Empty inputs score zero.
func Score(a, b string) float64 {
	if len(tokenSet(a)) == 0 || len(tokenSet(b)) == 0 {
		return 0
	}
	return sequenceWeight*SequenceRatio(a, b) + tokenWeight*TokenJaccard(a, b)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}
