package textproc

import (
	"sort"
	"strings"
)

// KeywordSearch ranks chunks by the fraction of query words they contain and
// returns the best k. Chunks with equal scores keep their input order.
func KeywordSearch(query string, chunks []string, k int) []string {
	if k <= 0 || len(chunks) == 0 {
		return nil
	}
	queryWords := wordSet(query)

	type scored struct {
		text  string
		score float64
	}
	ranked := make([]scored, len(chunks))
	for i, chunk := range chunks {
		ranked[i] = scored{text: chunk, score: Overlap(queryWords, wordSet(chunk))}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	k = min(k, len(ranked))
	out := make([]string, k)
	for i := range out {
		out[i] = ranked[i].text
	}
	return out
}

// Overlap is |query ∩ chunk| / max(|query|, 1).
func Overlap(query, chunk map[string]struct{}) float64 {
	hits := 0
	for w := range query {
		if _, ok := chunk[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(max(len(query), 1))
}

func wordSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
