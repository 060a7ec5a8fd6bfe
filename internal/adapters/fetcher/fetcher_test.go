package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"newsroom/internal/domain"
)

type staticFetcher struct {
	drafts []domain.ContentDraft
	err    error
}

func (s staticFetcher) Fetch(context.Context, domain.Source, *time.Time) ([]domain.ContentDraft, error) {
	return s.drafts, s.err
}

func at(value string) *time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestFilterSince(t *testing.T) {
	drafts := []domain.ContentDraft{
		{Title: "old", PublishedAt: at("2026-10-14T08:00:00Z")},
		{Title: "edge", PublishedAt: at("2026-10-14T10:00:00Z")},
		{Title: "new", PublishedAt: at("2026-10-14T11:00:00Z")},
		{Title: "undated"},
	}

	got := FilterSince(drafts, at("2026-10-14T10:00:00Z"))
	if len(got) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(got))
	}
	if got[0].Title != "new" || got[1].Title != "undated" {
		t.Fatalf("unexpected drafts: %+v", got)
	}

	if all := FilterSince(drafts, nil); len(all) != len(drafts) {
		t.Fatalf("nil since must keep everything, got %d", len(all))
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	reg := NewRegistry(5)
	_, err := reg.Fetch(context.Background(), domain.Source{Kind: "podcast"}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestRegistryAppliesWindowAndLimit(t *testing.T) {
	var drafts []domain.ContentDraft
	for i := 0; i < 6; i++ {
		drafts = append(drafts, domain.ContentDraft{Title: "x", PublishedAt: at("2026-10-14T12:00:00Z")})
	}
	drafts = append(drafts, domain.ContentDraft{Title: "stale", PublishedAt: at("2026-10-01T12:00:00Z")})

	reg := NewRegistry(3)
	reg.Register(domain.SourceRSS, staticFetcher{drafts: drafts})

	got, err := reg.Fetch(context.Background(), domain.Source{Kind: domain.SourceRSS}, at("2026-10-13T00:00:00Z"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(got))
	}
}

func TestRegistryPropagatesError(t *testing.T) {
	reg := NewRegistry(3)
	want := errors.New("boom")
	reg.Register(domain.SourceWebsite, staticFetcher{err: want})
	if _, err := reg.Fetch(context.Background(), domain.Source{Kind: domain.SourceWebsite}, nil); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Le Fil</title>
<item>
  <title>Premier</title>
  <link>https://example.com/1</link>
  <description><![CDATA[<p>Texte <b>riche</b></p>]]></description>
  <pubDate>Wed, 14 Oct 2026 09:00:00 GMT</pubDate>
</item>
<item>
  <title>Second</title>
  <link>https://example.com/2</link>
  <description>Brut</description>
</item>
</channel>
</rss>`

func TestFeedFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFixture))
	}))
	defer srv.Close()

	f := NewFeed(srv.Client(), 10)
	drafts, err := f.Fetch(context.Background(), domain.Source{Kind: domain.SourceRSS, URL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	first := drafts[0]
	if first.Title != "Premier" || first.URL != "https://example.com/1" {
		t.Fatalf("unexpected first draft: %+v", first)
	}
	if first.Body != "Texte riche" {
		t.Fatalf("html must be stripped, got %q", first.Body)
	}
	if first.Origin != "Le Fil" {
		t.Fatalf("origin should fall back to feed title, got %q", first.Origin)
	}
	if first.PublishedAt == nil || first.PublishedAt.Hour() != 9 {
		t.Fatalf("unexpected published time: %v", first.PublishedAt)
	}
	if drafts[1].PublishedAt != nil {
		t.Fatalf("undated item must keep nil time")
	}
}

const pageFixture = `<html><body>
<div class="sidebar"><a href="/about">A propos</a></div>
<div class="news-card">
  <h2>Grande nouvelle</h2>
  <a href="/articles/1">Lire</a>
  <p>Premier paragraphe.</p>
  <p>Second paragraphe.</p>
  <time datetime="2026-10-14T07:30:00Z">ce matin</time>
</div>
<section class="post">
  <a href="https://other.example/2">Autre titre</a>
</section>
<div class="news-card"><h2>Grande nouvelle</h2><a href="/articles/1">Lire</a></div>
</body></html>`

func TestPageFetchExtractsBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(pageFixture))
	}))
	defer srv.Close()

	p := NewPage(srv.Client(), 10)
	drafts, err := p.Fetch(context.Background(), domain.Source{Kind: domain.SourceWebsite, URL: srv.URL + "/actu/", Name: "Site"}, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 unique blocks, got %d: %+v", len(drafts), drafts)
	}
	if drafts[0].Title != "Grande nouvelle" {
		t.Fatalf("unexpected title: %q", drafts[0].Title)
	}
	if drafts[0].URL != srv.URL+"/articles/1" {
		t.Fatalf("relative link not resolved: %q", drafts[0].URL)
	}
	if drafts[0].Body != "Premier paragraphe.\nSecond paragraphe." {
		t.Fatalf("unexpected body: %q", drafts[0].Body)
	}
	if drafts[0].PublishedAt == nil || !drafts[0].PublishedAt.Equal(*at("2026-10-14T07:30:00Z")) {
		t.Fatalf("unexpected date: %v", drafts[0].PublishedAt)
	}
	if drafts[1].Title != "Autre titre" || drafts[1].URL != "https://other.example/2" {
		t.Fatalf("unexpected second block: %+v", drafts[1])
	}
	if drafts[1].Origin != "Site" {
		t.Fatalf("unexpected origin: %q", drafts[1].Origin)
	}
}

func TestPageFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewPage(srv.Client(), 10).Fetch(context.Background(), domain.Source{URL: srv.URL}, nil)
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

const timelineFixture = `<html><body>
<div class="timeline-item">
  <a class="tweet-link" href="/lemonde/status/111#m"></a>
  <span class="tweet-date"><a href="/lemonde/status/111" title="">2h</a></span>
  <div class="tweet-content">Breaking: quelque chose</div>
</div>
<div class="timeline-item">
  <a class="tweet-link" href="/lemonde/status/112#m"></a>
  <span class="tweet-date"><a href="/lemonde/status/112">Oct 1</a></span>
  <div class="tweet-content">   </div>
</div>
</body></html>`

func TestTimelineFallsBackToNextMirror(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	var requested string
	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		_, _ = w.Write([]byte(timelineFixture))
	}))
	defer working.Close()

	tl := NewTimeline(working.Client(), []string{broken.URL, working.URL}, 10)
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	tl.now = func() time.Time { return now }

	drafts, err := tl.Fetch(context.Background(), domain.Source{Kind: domain.SourceTwitter, URL: "https://twitter.com/lemonde"}, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if requested != "/lemonde" {
		t.Fatalf("unexpected path: %q", requested)
	}
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}
	d := drafts[0]
	if d.URL != "https://twitter.com/lemonde/status/111" {
		t.Fatalf("unexpected url: %q", d.URL)
	}
	if d.Author != "@lemonde" {
		t.Fatalf("unexpected author: %q", d.Author)
	}
	if d.PublishedAt == nil || !d.PublishedAt.Equal(now.Add(-2*time.Hour)) {
		t.Fatalf("unexpected published time: %v", d.PublishedAt)
	}
}

func TestTimelineAllMirrorsFail(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer broken.Close()

	tl := NewTimeline(broken.Client(), []string{broken.URL, broken.URL}, 10)
	if _, err := tl.Fetch(context.Background(), domain.Source{URL: "@lemonde"}, nil); err == nil {
		t.Fatalf("expected error when every mirror fails")
	}
}

func TestAccountHandle(t *testing.T) {
	cases := map[string]string{
		"https://twitter.com/lemonde":    "lemonde",
		"https://x.com/lemonde/status/1": "lemonde",
		"@AFP":                           "AFP",
		"franceinfo":                     "franceinfo",
	}
	for in, want := range cases {
		got, err := accountHandle(in)
		if err != nil {
			t.Fatalf("accountHandle(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("accountHandle(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := accountHandle("https://twitter.com/"); err == nil {
		t.Fatalf("expected error for empty handle")
	}
}

const videoFeedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <title>Chaine Info</title>
 <entry>
  <yt:videoId>vid1</yt:videoId>
  <title>Video avec sous-titres</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=vid1"/>
  <published>2026-10-14T10:00:00+00:00</published>
  <media:group><media:description>Description 1</media:description></media:group>
 </entry>
 <entry>
  <yt:videoId>vid2</yt:videoId>
  <title>Video sans sous-titres</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=vid2"/>
  <published>2026-10-14T11:00:00+00:00</published>
  <media:group><media:description>Description 2</media:description></media:group>
 </entry>
</feed>`

func TestVideoFetchUsesTranscriptThenDescription(t *testing.T) {
	var feedChannel string
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		feedChannel = r.URL.Query().Get("channel_id")
		_, _ = w.Write([]byte(videoFeedFixture))
	})
	mux.HandleFunc("/timedtext", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("v") == "vid1" && r.URL.Query().Get("lang") == "en" {
			_, _ = w.Write([]byte(`<transcript><text start="0">Hello</text><text start="1">world</text></transcript>`))
			return
		}
		_, _ = w.Write([]byte(`<transcript></transcript>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v := NewVideo(srv.Client(), 10)
	v.feedBase = srv.URL + "/feed?channel_id="
	v.transcriptURL = srv.URL + "/timedtext"

	src := domain.Source{Kind: domain.SourceYouTube, URL: "https://www.youtube.com/channel/UC1234567890abcdef"}
	drafts, err := v.Fetch(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if feedChannel != "UC1234567890abcdef" {
		t.Fatalf("unexpected channel id: %q", feedChannel)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	if drafts[0].Body != "Hello world" {
		t.Fatalf("expected transcript body, got %q", drafts[0].Body)
	}
	if drafts[1].Body != "Description 2" {
		t.Fatalf("expected description fallback, got %q", drafts[1].Body)
	}
	if drafts[0].Origin != "Chaine Info" {
		t.Fatalf("unexpected origin: %q", drafts[0].Origin)
	}
}

func TestResolveChannelFromHandlePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><link rel="canonical" href="https://www.youtube.com/channel/UCabcdefghijklmnop"></head></html>`))
	}))
	defer srv.Close()

	v := NewVideo(srv.Client(), 10)
	id, err := v.resolveChannel(context.Background(), srv.URL+"/@chaine")
	if err != nil {
		t.Fatalf("resolveChannel: %v", err)
	}
	if id != "UCabcdefghijklmnop" {
		t.Fatalf("unexpected id: %q", id)
	}
}

func TestClipRunes(t *testing.T) {
	if got := clipRunes(strings.Repeat("é", 10), 4); got != "éééé" {
		t.Fatalf("unexpected clip: %q", got)
	}
	if got := clipRunes("abc", 0); got != "abc" {
		t.Fatalf("zero limit must keep text, got %q", got)
	}
}
