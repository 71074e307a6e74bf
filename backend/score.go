package backend

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Score ranks a stored vector against a query vector; higher is closer.
// Vectors of different length score -Inf.
func Score(metric Metric, a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return float32(math.Inf(-1))
	}
	switch metric {
	case MetricDotProduct:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return float32(dot)
	case MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(-math.Sqrt(sum))
	default:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
	}
}

// TextScore is the fraction of query terms found in the text fields of metadata.
// No fields means every string value is searched.
func TextScore(query string, metadata map[string]any, fields []string) float32 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 || len(metadata) == 0 {
		return 0
	}

	var b strings.Builder
	if len(fields) == 0 {
		for _, v := range metadata {
			if s, ok := v.(string); ok {
				b.WriteString(strings.ToLower(s))
				b.WriteByte(' ')
			}
		}
	} else {
		for _, f := range fields {
			if s, ok := metadata[f].(string); ok {
				b.WriteString(strings.ToLower(s))
				b.WriteByte(' ')
			}
		}
	}
	text := b.String()

	hits := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			hits++
		}
	}
	return float32(hits) / float32(len(terms))
}

// MatchesFilter reports whether metadata equals every filter value.
// Values are compared by their string form so JSON-decoded numbers match ints.
func MatchesFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// TopK sorts matches by descending score (ties by id) and keeps the first k
func TopK(matches []Match, k int) []Match {
	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
