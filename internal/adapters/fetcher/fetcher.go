package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsroom/internal/domain"
	"newsroom/internal/infra/metrics"
)

const (
	// DefaultLimit ограничивает число материалов за один опрос источника.
	DefaultLimit = 20
	userAgent    = "Mozilla/5.0 (compatible; newsroom/1.0)"
)

// Registry выбирает реализацию по типу источника и применяет общие правила окна.
type Registry struct {
	fetchers map[domain.SourceKind]domain.Fetcher
	limit    int
}

var _ domain.Fetcher = (*Registry)(nil)

// NewRegistry создаёт пустой реестр.
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Registry{fetchers: make(map[domain.SourceKind]domain.Fetcher), limit: limit}
}

// Register привязывает реализацию к типу источника.
func (r *Registry) Register(kind domain.SourceKind, f domain.Fetcher) {
	r.fetchers[kind] = f
}

// Fetch загружает материалы источника. При since != nil отбрасываются материалы,
// опубликованные не позже since.
func (r *Registry) Fetch(ctx context.Context, src domain.Source, since *time.Time) ([]domain.ContentDraft, error) {
	f, ok := r.fetchers[src.Kind]
	if !ok {
		err := fmt.Errorf("fetcher: unsupported source kind %q", src.Kind)
		metrics.ObserveSourceFetch(string(src.Kind), err)
		return nil, err
	}
	drafts, err := f.Fetch(ctx, src, since)
	metrics.ObserveSourceFetch(string(src.Kind), err)
	if err != nil {
		return nil, err
	}
	drafts = FilterSince(drafts, since)
	if len(drafts) > r.limit {
		drafts = drafts[:r.limit]
	}
	return drafts, nil
}

// FilterSince оставляет материалы новее since. Материалы без даты публикации сохраняются.
func FilterSince(drafts []domain.ContentDraft, since *time.Time) []domain.ContentDraft {
	if since == nil {
		return drafts
	}
	out := drafts[:0:0]
	for _, d := range drafts {
		if d.PublishedAt != nil && !d.PublishedAt.After(*since) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func newHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: 20 * time.Second}
}

func fetchDocument(ctx context.Context, client *http.Client, component, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest(component, "get", hostOf(pageURL), start, err)
		return nil, fmt.Errorf("request document: %w: %w", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("%s returned %s", pageURL, resp.Status)
		metrics.ObserveNetworkRequest(component, "get", hostOf(pageURL), start, err)
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %w", domain.ErrTransient, err)
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	metrics.ObserveNetworkRequest(component, "get", hostOf(pageURL), start, err)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func hostOf(raw string) string {
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.IndexAny(raw, "/?#"); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// plainText убирает разметку из HTML-фрагмента.
func plainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" || !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return collapseSpaces(doc.Text())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
