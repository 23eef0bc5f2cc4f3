package matcher

// NearMatchThreshold is the similarity above which two name fields count as
// the same name.
const NearMatchThreshold = 0.8

// Distance returns the Levenshtein distance between a and b (unit cost for
// insertion, deletion and substitution).
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity returns 1 - distance/maxLen over the normalized forms of a and
// b. Two empty strings are identical; exactly one empty string scores 0.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" && nb == "" {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	la, lb := len([]rune(na)), len([]rune(nb))
	return 1 - float64(Distance(na, nb))/float64(max(la, lb))
}

// nearMatch reports whether two fields are close enough to score.
func nearMatch(a, b string) bool {
	return Similarity(a, b) > NearMatchThreshold
}
