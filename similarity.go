package fabric

import (
	"math"
	"sort"
)

// normEpsilon is the threshold below which a vector norm is treated as zero.
// Cosine against a degenerate vector returns 0.0 rather than dividing by
// near-zero; a zero-length embedding is a valid (if uninformative) state,
// not a caller mistake.
const normEpsilon = 1e-10

// Match is one similarity-query result.
type Match struct {
	Component int     `json:"component"`
	Score     float64 `json:"score"`
}

// Cosine returns the cosine similarity of u and v in [-1, 1].
// Returns 0.0 when either norm is below normEpsilon or the lengths differ.
func Cosine(u, v []float64) float64 {
	if len(u) != len(v) {
		return 0
	}
	var dot, nu, nv float64
	for i := range u {
		dot += u[i] * v[i]
		nu += u[i] * u[i]
		nv += v[i] * v[i]
	}
	nu = math.Sqrt(nu)
	nv = math.Sqrt(nv)
	if nu < normEpsilon || nv < normEpsilon {
		return 0
	}
	sim := dot / (nu * nv)
	// Clamp accumulated rounding so callers can rely on [-1, 1].
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim
}

// topMatches sorts matches descending by score, ties broken by ascending
// component id, and truncates to k. k <= 0 yields an empty result.
func topMatches(matches []Match, k int) []Match {
	if k <= 0 {
		return []Match{}
	}
	sortMatches(matches)
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// sortMatches orders matches descending by score, ascending by component id.
// Scores are finite by fabric invariant, so the comparator is total.
func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Component < matches[j].Component
	})
}
