// Package matching provides the string and value similarity primitives used
// by fuzzy candidate scoring.
package matching

import (
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/ekaya-inc/contact-reconciler/pkg/normalize"
)

// JaroWinkler calculates the Jaro-Winkler similarity between two strings.
// Returns a value between 0.0 (no similarity) and 1.0 (exact match).
func JaroWinkler(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0.0
		}
		return 1.0
	}

	jaro := Jaro(a, b)

	// Winkler modification: boost for common prefix, capped at 4 chars
	prefixLen := 0
	for i := 0; i < len(a) && i < len(b) && i < 4; i++ {
		if a[i] == b[i] {
			prefixLen++
		} else {
			break
		}
	}

	const scalingFactor = 0.1
	return jaro + float64(prefixLen)*scalingFactor*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings.
func Jaro(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0.0
		}
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// EditSimilarity converts Levenshtein distance to a [0,1] similarity.
func EditSimilarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0.0
		}
		return 1.0
	}
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	sim := 1.0 - float64(dist)/float64(maxLen)
	if sim < 0 {
		return 0.0
	}
	return sim
}

// TokenSetSimilarity compares two values as unordered token sets. Tokens
// common to both sides score 1.0; the remainder is scored by edit
// similarity over the sorted leftover tokens.
func TokenSetSimilarity(a, b string) float64 {
	ta := normalize.Tokens(a)
	tb := normalize.Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(ta))
	for _, t := range ta {
		setA[t] = true
	}
	setB := make(map[string]bool, len(tb))
	for _, t := range tb {
		setB[t] = true
	}

	var common, onlyA, onlyB []string
	for t := range setA {
		if setB[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if !setA[t] {
			onlyB = append(onlyB, t)
		}
	}

	if len(onlyA) == 0 && len(onlyB) == 0 {
		return 1.0
	}

	total := len(common) + len(onlyA) + len(onlyB)
	base := float64(len(common)) / float64(total)

	sort.Strings(onlyA)
	sort.Strings(onlyB)
	rest := EditSimilarity(strings.Join(onlyA, " "), strings.Join(onlyB, " "))

	weight := float64(len(onlyA)+len(onlyB)) / float64(total)
	return base + weight*rest
}

// TokenSortSimilarity compares two values with tokens sorted before edit
// similarity, so word order does not matter.
func TokenSortSimilarity(a, b string) float64 {
	ta := normalize.Tokens(a)
	tb := normalize.Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	sort.Strings(ta)
	sort.Strings(tb)
	return EditSimilarity(strings.Join(ta, " "), strings.Join(tb, " "))
}

// DateProximity scores two dates: 1.0 for an exact match, decaying
// linearly to 0.0 at maxDays difference. Zero dates score 0.0.
func DateProximity(a, b time.Time, maxDays int) float64 {
	if a.IsZero() || b.IsZero() || maxDays <= 0 {
		return 0.0
	}
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	days := diff.Hours() / 24
	if days >= float64(maxDays) {
		return 0.0
	}
	return 1.0 - days/float64(maxDays)
}
