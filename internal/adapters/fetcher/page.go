package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsroom/internal/domain"
)

var blockClassHints = []string{"article", "post", "news", "entry", "item"}

// Page ищет повторяющиеся блоки материалов на странице.
type Page struct {
	client *http.Client
	limit  int
}

// NewPage создаёт загрузчик страниц.
func NewPage(client *http.Client, limit int) *Page {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Page{client: newHTTPClient(client), limit: limit}
}

// Fetch загружает страницу и извлекает блоки материалов.
func (p *Page) Fetch(ctx context.Context, src domain.Source, _ *time.Time) ([]domain.ContentDraft, error) {
	doc, err := fetchDocument(ctx, p.client, "page", src.URL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, err
	}
	return extractBlocks(doc, base, src.Label(), p.limit), nil
}

func extractBlocks(doc *goquery.Document, base *url.URL, origin string, limit int) []domain.ContentDraft {
	blocks := doc.Find("article")
	if blocks.Length() == 0 {
		blocks = doc.Find("div, section").FilterFunction(func(_ int, s *goquery.Selection) bool {
			class := strings.ToLower(s.AttrOr("class", ""))
			for _, hint := range blockClassHints {
				if strings.Contains(class, hint) {
					return true
				}
			}
			return false
		})
	}

	var drafts []domain.ContentDraft
	seen := make(map[string]struct{})
	blocks.EachWithBreak(func(_ int, block *goquery.Selection) bool {
		if len(drafts) >= limit {
			return false
		}
		draft, ok := parseBlock(block, base, origin)
		if !ok {
			return true
		}
		key := draft.URL
		if key == "" {
			key = draft.Title
		}
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
		drafts = append(drafts, draft)
		return true
	})
	return drafts
}

func parseBlock(block *goquery.Selection, base *url.URL, origin string) (domain.ContentDraft, bool) {
	title := collapseSpaces(block.Find("h1, h2, h3, h4").First().Text())
	link := block.Find("a[href]").First()
	if title == "" {
		title = collapseSpaces(link.Text())
	}
	if title == "" {
		return domain.ContentDraft{}, false
	}

	draft := domain.ContentDraft{Title: title, Origin: origin}
	if href, ok := link.Attr("href"); ok {
		draft.URL = resolveLink(base, href)
	}

	var paragraphs []string
	block.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := collapseSpaces(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	draft.Body = strings.Join(paragraphs, "\n")

	if ts, ok := block.Find("time[datetime]").First().Attr("datetime"); ok {
		if published, ok := parseDateTime(ts); ok {
			draft.PublishedAt = &published
		}
	}
	draft.Author = collapseSpaces(block.Find("[rel=author], .author").First().Text())
	return draft, true
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDateTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
