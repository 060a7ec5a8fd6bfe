package ranker

import (
	"strings"
	"testing"
	"time"

	"newsroom/internal/domain"
)

func TestDeduplicateByURL(t *testing.T) {
	items := []domain.ContentItem{
		{URL: "https://example.com/a"},
		{URL: "https://example.com/a"},
		{URL: "https://example.com/b"},
		{},
		{},
	}
	res := DeduplicateByURL(items)
	if len(res) != 4 {
		t.Fatalf("ожидали 4 материала, получили %d", len(res))
	}
}

func TestRankOrdersByScore(t *testing.T) {
	now := time.Date(2026, 10, 15, 5, 0, 0, 0, time.UTC)
	fresh := now.Add(-time.Hour)
	stale := now.Add(-20 * time.Hour)
	r := NewSimple(24, 0)
	ranked := r.Rank([]domain.ContentItem{
		{URL: "https://example.com/short", Title: "Brève", Body: "court", PublishedAt: &stale},
		{URL: "https://example.com/long", Title: "Enquête", Body: strings.Repeat("mot ", 150), PublishedAt: &fresh},
	}, now)
	if len(ranked) != 2 {
		t.Fatalf("ожидали 2 элемента, получили %d", len(ranked))
	}
	if ranked[0].URL != "https://example.com/long" {
		t.Fatalf("ожидали первым длинный свежий материал, получили %s", ranked[0].URL)
	}
}

func TestRankCapsItems(t *testing.T) {
	now := time.Date(2026, 10, 15, 5, 0, 0, 0, time.UTC)
	items := make([]domain.ContentItem, 0, 5)
	for i := 0; i < 5; i++ {
		items = append(items, domain.ContentItem{URL: "https://example.com/" + string(rune('a'+i)), FetchedAt: now})
	}
	ranked := NewSimple(24, 3).Rank(items, now)
	if len(ranked) != 3 {
		t.Fatalf("ожидали 3 элемента, получили %d", len(ranked))
	}
	if ranked[0].URL != "https://example.com/a" {
		t.Fatalf("при равной оценке порядок должен сохраняться, получили %s", ranked[0].URL)
	}
}

func TestRankEmpty(t *testing.T) {
	if got := NewSimple(24, 10).Rank(nil, time.Now()); got != nil {
		t.Fatalf("ожидали nil, получили %v", got)
	}
}
