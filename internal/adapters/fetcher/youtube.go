package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"newsroom/internal/domain"
)

const (
	channelFeedURL     = "https://www.youtube.com/feeds/videos.xml?channel_id="
	transcriptURL      = "https://www.youtube.com/api/timedtext"
	maxTranscriptRunes = 5000
	maxDescRunes       = 2000
)

// TranscriptLanguages порядок, в котором запрашиваются субтитры.
var TranscriptLanguages = []string{"fr", "en", "es", "de"}

var (
	channelPathRe = regexp.MustCompile(`/channel/(UC[\w-]{10,})`)
	channelMetaRe = regexp.MustCompile(`"(?:channelId|externalId)":"(UC[\w-]{10,})"`)
)

// Video читает ленту канала и дополняет записи субтитрами или описанием.
type Video struct {
	client        *http.Client
	limit         int
	feedBase      string
	transcriptURL string
}

// NewVideo создаёт загрузчик видеоканалов.
func NewVideo(client *http.Client, limit int) *Video {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Video{
		client:        newHTTPClient(client),
		limit:         limit,
		feedBase:      channelFeedURL,
		transcriptURL: transcriptURL,
	}
}

// Fetch возвращает последние видео канала.
func (v *Video) Fetch(ctx context.Context, src domain.Source, _ *time.Time) ([]domain.ContentDraft, error) {
	channelID, err := v.resolveChannel(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	feed, err := parseFeed(ctx, v.client, "video", v.feedBase+channelID)
	if err != nil {
		return nil, err
	}
	origin := src.Label()
	if src.Name == "" && feed.Title != "" {
		origin = feed.Title
	}

	drafts := make([]domain.ContentDraft, 0, min(len(feed.Items), v.limit))
	for _, item := range feed.Items {
		if len(drafts) >= v.limit {
			break
		}
		d := feedItemDraft(item, origin)
		d.Body = v.videoText(ctx, item)
		drafts = append(drafts, d)
	}
	return drafts, nil
}

func (v *Video) resolveChannel(ctx context.Context, raw string) (string, error) {
	if m := channelPathRe.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	if u, err := url.Parse(raw); err == nil {
		if id := u.Query().Get("channel_id"); id != "" {
			return id, nil
		}
	}
	doc, err := fetchDocument(ctx, v.client, "video", raw)
	if err != nil {
		return "", err
	}
	if canonical, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		if m := channelPathRe.FindStringSubmatch(canonical); m != nil {
			return m[1], nil
		}
	}
	if html, err := doc.Html(); err == nil {
		if m := channelMetaRe.FindStringSubmatch(html); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("video: channel id not found for %s", raw)
}

func (v *Video) videoText(ctx context.Context, item *gofeed.Item) string {
	if id := extensionValue(item, "yt", "videoId"); id != "" {
		if text, err := v.transcript(ctx, id); err == nil && text != "" {
			return clipRunes(text, maxTranscriptRunes)
		}
	}
	return clipRunes(mediaDescription(item), maxDescRunes)
}

func (v *Video) transcript(ctx context.Context, videoID string) (string, error) {
	var errs []error
	for _, lang := range TranscriptLanguages {
		q := url.Values{"lang": {lang}, "v": {videoID}}
		doc, err := fetchDocument(ctx, v.client, "video", v.transcriptURL+"?"+q.Encode())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var parts []string
		doc.Find("text").Each(func(_ int, s *goquery.Selection) {
			if t := collapseSpaces(s.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, " "), nil
		}
	}
	if len(errs) == 0 {
		return "", nil
	}
	return "", errors.Join(errs...)
}

func extensionValue(item *gofeed.Item, ns, name string) string {
	if item.Extensions == nil {
		return ""
	}
	if ext := item.Extensions[ns][name]; len(ext) > 0 {
		return strings.TrimSpace(ext[0].Value)
	}
	return ""
}

func mediaDescription(item *gofeed.Item) string {
	if item.Extensions != nil {
		if groups := item.Extensions["media"]["group"]; len(groups) > 0 {
			if desc := groups[0].Children["description"]; len(desc) > 0 {
				return strings.TrimSpace(desc[0].Value)
			}
		}
	}
	return plainText(item.Description)
}
