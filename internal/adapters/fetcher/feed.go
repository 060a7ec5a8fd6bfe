package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

// Feed читает RSS и Atom.
type Feed struct {
	client *http.Client
	limit  int
}

// NewFeed создаёт загрузчик лент.
func NewFeed(client *http.Client, limit int) *Feed {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Feed{client: newHTTPClient(client), limit: limit}
}

// Fetch возвращает первые записи ленты.
func (f *Feed) Fetch(ctx context.Context, src domain.Source, _ *time.Time) ([]domain.ContentDraft, error) {
	feed, err := parseFeed(ctx, f.client, "feed", src.URL)
	if err != nil {
		return nil, err
	}
	origin := src.Label()
	if src.Name == "" && feed.Title != "" {
		origin = feed.Title
	}
	drafts := make([]domain.ContentDraft, 0, min(len(feed.Items), f.limit))
	for _, item := range feed.Items {
		if len(drafts) >= f.limit {
			break
		}
		drafts = append(drafts, feedItemDraft(item, origin))
	}
	return drafts, nil
}

func parseFeed(ctx context.Context, client *http.Client, component, feedURL string) (*gofeed.Feed, error) {
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent
	start := time.Now()
	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	metrics.ObserveNetworkRequest(component, "parse_feed", hostOf(feedURL), start, err)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	return feed, nil
}

func feedItemDraft(item *gofeed.Item, origin string) domain.ContentDraft {
	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Description
	}
	d := domain.ContentDraft{
		Title:  strings.TrimSpace(item.Title),
		Body:   plainText(body),
		URL:    strings.TrimSpace(item.Link),
		Origin: origin,
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		d.Author = item.Authors[0].Name
	}
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		d.PublishedAt = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		d.PublishedAt = &t
	}
	return d
}
