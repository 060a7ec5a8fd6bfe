package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsroom/internal/domain"
)

// DefaultMirrors публичные зеркала ленты, опрашиваются по порядку.
var DefaultMirrors = []string{
	"https://nitter.net",
	"https://nitter.privacydev.net",
	"https://nitter.wolf.town",
}

var (
	relativeTimeRe = regexp.MustCompile(`^(\d+)\s*([smhd])$`)
	handleRe       = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)
)

// Timeline читает ленту аккаунта через зеркала. Источник ненадёжен, ошибки пишутся только в учёт источника.
type Timeline struct {
	client  *http.Client
	mirrors []string
	limit   int
	now     func() time.Time
}

// NewTimeline создаёт загрузчик ленты.
func NewTimeline(client *http.Client, mirrors []string, limit int) *Timeline {
	if len(mirrors) == 0 {
		mirrors = DefaultMirrors
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Timeline{client: newHTTPClient(client), mirrors: mirrors, limit: limit, now: time.Now}
}

// Fetch перебирает зеркала до первого успешного ответа.
func (t *Timeline) Fetch(ctx context.Context, src domain.Source, _ *time.Time) ([]domain.ContentDraft, error) {
	handle, err := accountHandle(src.URL)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, mirror := range t.mirrors {
		doc, err := fetchDocument(ctx, t.client, "timeline", strings.TrimRight(mirror, "/")+"/"+handle)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		drafts := t.extract(doc, handle, src.Label())
		if len(drafts) == 0 {
			errs = append(errs, fmt.Errorf("%s: no timeline items", mirror))
			continue
		}
		return drafts, nil
	}
	return nil, fmt.Errorf("timeline %s: all mirrors failed: %w", handle, errors.Join(errs...))
}

func (t *Timeline) extract(doc *goquery.Document, handle, origin string) []domain.ContentDraft {
	now := t.now().UTC()
	var drafts []domain.ContentDraft
	doc.Find(".timeline-item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if len(drafts) >= t.limit {
			return false
		}
		text := collapseSpaces(item.Find(".tweet-content").First().Text())
		if text == "" {
			return true
		}
		d := domain.ContentDraft{
			Title:  clipRunes(text, 100),
			Body:   text,
			Author: "@" + handle,
			Origin: origin,
		}
		if href, ok := item.Find("a.tweet-link").First().Attr("href"); ok {
			d.URL = "https://twitter.com" + strings.SplitN(href, "#", 2)[0]
		}
		dateLink := item.Find(".tweet-date a").First()
		if published, ok := parseTweetTime(dateLink.AttrOr("title", ""), dateLink.Text(), now); ok {
			d.PublishedAt = &published
		}
		drafts = append(drafts, d)
		return true
	})
	return drafts
}

func accountHandle(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if u, err := url.Parse(candidate); err == nil && u.Host != "" {
		candidate = strings.Trim(u.Path, "/")
		if i := strings.Index(candidate, "/"); i >= 0 {
			candidate = candidate[:i]
		}
	}
	candidate = strings.TrimPrefix(candidate, "@")
	if !handleRe.MatchString(candidate) {
		return "", fmt.Errorf("timeline: invalid account %q", raw)
	}
	return candidate, nil
}

// parseTweetTime разбирает абсолютную дату из title или относительную вида 2h.
func parseTweetTime(title, text string, now time.Time) (time.Time, bool) {
	if title = strings.TrimSpace(title); title != "" {
		if t, err := time.Parse("Jan 2, 2006 · 3:04 PM MST", title); err == nil {
			return t.UTC(), true
		}
	}
	m := relativeTimeRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	unit := map[string]time.Duration{"s": time.Second, "m": time.Minute, "h": time.Hour, "d": 24 * time.Hour}[m[2]]
	return now.Add(-time.Duration(n) * unit), true
}
