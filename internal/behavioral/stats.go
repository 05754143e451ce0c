package behavioral

import (
	"math"
	"slices"
	"sort"
)

// topN keeps the best limit items seen so far under a strict ordering.
// Items that tie with an existing entry are placed after it.
type topN[T any] struct {
	limit  int
	before func(a, b T) bool // a ranks ahead of b
	items  []T
}

func newTopN[T any](limit int, before func(a, b T) bool) *topN[T] {
	return &topN[T]{limit: limit, before: before}
}

func (t *topN[T]) offer(item T) {
	idx := sort.Search(len(t.items), func(i int) bool {
		return t.before(item, t.items[i])
	})
	if idx >= t.limit {
		return
	}
	t.items = slices.Insert(t.items, idx, item)
	if len(t.items) > t.limit {
		t.items = t.items[:t.limit]
	}
}

func (t *topN[T]) list() []T {
	out := make([]T, len(t.items))
	copy(out, t.items)
	return out
}

func errorRankBefore(a, b SessionErrorRank) bool {
	if a.ErrorRate != b.ErrorRate {
		return a.ErrorRate > b.ErrorRate
	}
	return a.SessionID < b.SessionID
}

func retryRankBefore(a, b SessionRetryRank) bool {
	if a.RetryLoops != b.RetryLoops {
		return a.RetryLoops > b.RetryLoops
	}
	return a.SessionID < b.SessionID
}

// roundRate rounds an error rate to three decimals
func roundRate(rate float64) float64 {
	return math.Round(rate*1000) / 1000
}

// rankByCount orders keys by descending count, then by key, and keeps at
// most limit of them. A limit of 0 keeps everything.
func rankByCount(counts map[string]int, limit int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}
