package ranker

import (
	"sort"
	"strings"
	"time"

	"newsroom/internal/domain"
)

// SimpleRanker применяет эвристический скоринг к материалам персоны.
type SimpleRanker struct {
	MaxFreshnessHours float64
	MaxItems          int
}

// NewSimple создаёт ранжировщик. maxItems <= 0 снимает ограничение.
func NewSimple(maxFreshnessHours float64, maxItems int) *SimpleRanker {
	return &SimpleRanker{MaxFreshnessHours: maxFreshnessHours, MaxItems: maxItems}
}

// Rank убирает дубли, сортирует материалы по убыванию оценки и обрезает список до MaxItems.
// При равной оценке сохраняется исходный порядок.
func (r *SimpleRanker) Rank(items []domain.ContentItem, now time.Time) []domain.ContentItem {
	items = DeduplicateByURL(items)
	if len(items) == 0 {
		return nil
	}
	type scored struct {
		item  domain.ContentItem
		score float64
	}
	ranked := make([]scored, 0, len(items))
	for _, it := range items {
		ranked = append(ranked, scored{item: it, score: r.score(it, now)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if r.MaxItems > 0 && len(ranked) > r.MaxItems {
		ranked = ranked[:r.MaxItems]
	}
	out := make([]domain.ContentItem, len(ranked))
	for i, s := range ranked {
		out[i] = s.item
	}
	return out
}

func (r *SimpleRanker) score(it domain.ContentItem, now time.Time) float64 {
	words := minFloat(float64(len(strings.Fields(it.Body))), 200)
	hasTitle := 0.0
	if strings.TrimSpace(it.Title) != "" {
		hasTitle = 1
	}
	published := it.FetchedAt
	if it.PublishedAt != nil {
		published = *it.PublishedAt
	}
	freshScore := 0.0
	if fresh := now.Sub(published).Hours(); fresh >= 0 && r.MaxFreshnessHours > 0 {
		freshScore = 1 - minFloat(fresh/r.MaxFreshnessHours, 1)
	}
	return 0.2*hasTitle + 0.4*words/200 + 0.4*freshScore
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// DeduplicateByURL удаляет материалы с одинаковыми ссылками.
func DeduplicateByURL(items []domain.ContentItem) []domain.ContentItem {
	seen := make(map[string]struct{})
	out := make([]domain.ContentItem, 0, len(items))
	for _, it := range items {
		if it.URL == "" {
			out = append(out, it)
			continue
		}
		if _, ok := seen[it.URL]; ok {
			continue
		}
		seen[it.URL] = struct{}{}
		out = append(out, it)
	}
	return out
}
