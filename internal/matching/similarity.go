package matching

// Similarity returns a Ratcliff/Obershelp ratio in [0,1]: twice the number of
// runes in the recursively found longest common blocks over the combined length.
// Identical strings score 1, including two empty strings. The pair is put in a
// canonical order first so Similarity(a, b) == Similarity(b, a).
func Similarity(a, b string) float64 {
	if a > b {
		a, b = b, a
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingRunes(ra, rb)) / float64(total)
}

type span struct {
	alo, ahi, blo, bhi int
}

func matchingRunes(a, b []rune) int {
	matched := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := longestMatch(a, b, s)
		if k == 0 {
			continue
		}
		matched += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return matched
}

// longestMatch finds the longest common run inside s. Among equally long runs it
// picks the one starting earliest in a, then earliest in b.
func longestMatch(a, b []rune, s span) (int, int, int) {
	besti, bestj, bestk := s.alo, s.blo, 0
	width := s.bhi - s.blo
	prev := make([]int, width+1)
	cur := make([]int, width+1)
	for i := s.alo; i < s.ahi; i++ {
		for j := s.blo; j < s.bhi; j++ {
			col := j - s.blo + 1
			if a[i] != b[j] {
				cur[col] = 0
				continue
			}
			k := prev[col-1] + 1
			cur[col] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		prev, cur = cur, prev
	}
	return besti, bestj, bestk
}
