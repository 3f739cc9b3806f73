package util

import "strings"

// Closest returns the candidate nearest to input by edit distance, or "" if
// none is within maxDistance edits. Comparison is case-insensitive.
func Closest(input string, candidates []string, maxDistance int) string {
	input = strings.ToLower(strings.TrimSpace(input))
	bestDistance := maxDistance + 1
	var bestMatch string
	for _, c := range candidates {
		d := levenshteinDistance(input, strings.ToLower(c))
		if d < bestDistance {
			bestDistance = d
			bestMatch = c
		}
	}
	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshteinDistance is the minimum number of single-character insertions,
// deletions or substitutions turning a into b.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
