package utils

import (
	"sort"
	"strings"
	"unicode"
)

// SplitText splits text into chunks of about chunkSize runes with overlap runes
// shared between neighbours. A chunk ends at the last whitespace of its window
// when there is one in the second half.
func SplitText(text string, chunkSize int, overlap int) []string {
	runes := []rune(text)
	if chunkSize <= 0 || len(runes) <= chunkSize {
		return []string{text}
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := end
		for i := end; i > start+chunkSize/2; i-- {
			if unicode.IsSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// RankChunks orders chunks by how many distinct query terms each contains and
// keeps the best limit. Ties keep document order.
func RankChunks(chunks []string, query string, limit int) []string {
	terms := uniqueTerms(query)

	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		lower := strings.ToLower(c)
		s := 0
		for _, t := range terms {
			if strings.Contains(lower, t) {
				s++
			}
		}
		ranked[i] = scored{idx: i, score: s}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]string, 0, limit)
	for _, r := range ranked[:limit] {
		out = append(out, chunks[r.idx])
	}
	return out
}

func uniqueTerms(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		// short words carry no signal
		if len([]rune(f)) < 3 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
