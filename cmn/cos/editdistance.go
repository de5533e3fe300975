package cos

// EditDistance is a standard Levenshtein distance, used by the Worker
// Registry (spec §4.4/§7) to suggest a near-miss name on lookup failure.
// No suitable third-party implementation surfaced anywhere in the
// reference pack for this narrow, self-contained algorithm, so it is
// implemented directly rather than imported.
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			cur[j] = min3(del, ins, sub)
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Suggest returns the known name closest to want by edit distance, provided
// the distance is at most maxDist; otherwise it returns "".
func Suggest(want string, known []string, maxDist int) string {
	best := ""
	bestDist := maxDist + 1
	for _, k := range known {
		d := EditDistance(want, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}
	if bestDist > maxDist {
		return ""
	}
	return best
}
