package ingest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/feedsearch/feedsearch/internal/docstore"
	"github.com/feedsearch/feedsearch/internal/document"
	"github.com/feedsearch/feedsearch/internal/index"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *docstore.Store, *index.Store) {
	t.Helper()
	docs, err := docstore.Open("", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	idx, err := index.Open("", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return NewService(docs, idx, nil, nil, testLogger()), docs, idx
}

func TestIngestAddsAndSkipsDuplicates(t *testing.T) {
	svc, docs, idx := newTestService(t)

	batch := []document.Document{
		{DocID: "doc-1", Title: "One", Body: "first body", Lang: "en"},
		{DocID: "doc-2", Title: "Two", Body: "second body", Lang: "en"},
	}
	resp, err := svc.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if resp.Ingested != 2 || !resp.UpdatedIndex {
		t.Fatalf("resp = %+v, want 2 ingested with index update", resp)
	}
	if docs.Len() != 2 || idx.Current().NumDocs() != 2 {
		t.Errorf("store/index out of sync: %d docs, %d indexed", docs.Len(), idx.Current().NumDocs())
	}

	again, err := svc.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if again.Ingested != 0 || again.UpdatedIndex {
		t.Errorf("duplicate batch resp = %+v, want no-op", again)
	}
	if again.IndexVersion != resp.IndexVersion {
		t.Errorf("no-op ingest changed version %q -> %q", resp.IndexVersion, again.IndexVersion)
	}
}

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
  <channel>
    <title>Example Feed</title>
    <item>
      <title> First Post </title>
      <link>https://example.com/first</link>
      <guid>guid-first</guid>
      <pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
      <description>&lt;p&gt;Hello &amp;amp; &lt;b&gt;welcome&lt;/b&gt; to the feed.&lt;/p&gt;</description>
    </item>
    <item>
      <title>Second Post</title>
      <link>https://example.com/second</link>
      <description>plain text body</description>
    </item>
    <item>
      <title>Third Post</title>
      <link>https://example.com/third</link>
      <description>over the limit</description>
    </item>
  </channel>
</rss>`

func TestFetchParsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, sampleFeed)
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	src := Source{ID: "ex", URL: srv.URL, Limit: 2, Lang: "en", DocPrefix: "ex", TitlePrefix: "[ex]"}
	docs, err := f.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("fetched %d docs, want 2 (limit)", len(docs))
	}

	first := docs[0]
	if first.Title != "[ex] First Post" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Body != "Hello & welcome to the feed." {
		t.Errorf("body = %q, want stripped HTML", first.Body)
	}
	if first.Timestamp != "2006-01-02T15:04:05Z" {
		t.Errorf("timestamp = %q", first.Timestamp)
	}
	if first.URL != "https://example.com/first" {
		t.Errorf("url = %q", first.URL)
	}

	// Ids are stable across fetches and prefixed by the source.
	docsAgain, err := f.Fetch(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if docsAgain[0].DocID != first.DocID {
		t.Errorf("doc id not stable: %q vs %q", docsAgain[0].DocID, first.DocID)
	}
	if first.DocID[:3] != "ex-" {
		t.Errorf("doc id %q missing source prefix", first.DocID)
	}
	// No guid: falls back to the link.
	if docs[1].DocID == first.DocID {
		t.Error("distinct items mapped to the same doc id")
	}
	// Missing pubDate stays empty instead of inventing a time.
	if docs[1].Timestamp != "" {
		t.Errorf("timestamp for dateless item = %q, want empty", docs[1].Timestamp)
	}
}

func TestFetchRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := &Fetcher{client: srv.Client()}
	f.retry.MaxAttempts = 1
	if _, err := f.Fetch(context.Background(), Source{ID: "bad", URL: srv.URL}); err == nil {
		t.Fatal("Fetch of 403 feed succeeded")
	}
}

func TestStripHTML(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"plain", "plain"},
		{"<p>one</p><p>two</p>", "one two"},
		{"a &lt;tag&gt; and &amp; entity", "a <tag> and & entity"},
		{"line<br/>break", "line break"},
		{"  spaced   <b> out </b>  ", "spaced out"},
	}
	for _, tc := range cases {
		if got := stripHTML(tc.in); got != tc.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	state := newState()
	state.SeenIDs["ex-abc"] = struct{}{}
	state.SeenIDs["ex-def"] = struct{}{}
	fs := state.feed("ex")
	fs.FailCount = 2
	fs.NextRun = "2026-01-01T00:00:00Z"
	if err := state.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if len(loaded.SeenIDs) != 2 {
		t.Errorf("loaded %d seen ids, want 2", len(loaded.SeenIDs))
	}
	if got := loaded.feed("ex"); got.FailCount != 2 || got.NextRun != "2026-01-01T00:00:00Z" {
		t.Errorf("loaded feed state = %+v", got)
	}
}

func TestLoadStateMissingFileStartsFresh(t *testing.T) {
	state, err := LoadState(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if len(state.SeenIDs) != 0 || len(state.Feeds) != 0 {
		t.Errorf("fresh state not empty: %+v", state)
	}
}

func TestFeedStateDue(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		nextRun string
		want    bool
	}{
		{"never ran", "", true},
		{"past", "2026-08-25T11:00:00Z", true},
		{"exactly now", "2026-08-25T12:00:00Z", true},
		{"future", "2026-08-25T13:00:00Z", false},
		{"garbage", "not-a-time", true},
	}
	for _, tc := range cases {
		fs := &FeedState{NextRun: tc.nextRun}
		if got := fs.due(now); got != tc.want {
			t.Errorf("%s: due = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	interval := 3 * time.Minute
	maxBackoff := time.Hour
	cases := []struct {
		failCount int
		want      time.Duration
	}{
		{1, 6 * time.Minute},
		{2, 12 * time.Minute},
		{3, 24 * time.Minute},
		{4, 48 * time.Minute},
		{5, time.Hour},
		{20, time.Hour},
	}
	for _, tc := range cases {
		if got := backoffDelay(interval, tc.failCount, maxBackoff); got != tc.want {
			t.Errorf("backoffDelay(fail=%d) = %v, want %v", tc.failCount, got, tc.want)
		}
	}
}

func TestLoadSourcesAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	yaml := `sources:
  - id: hn
    url: https://news.ycombinator.com/rss
  - id: arxiv
    url: https://arxiv.org/rss/cs.IR
    interval: 10m
    limit: 25
    lang: en
    docPrefix: arx
    titlePrefix: "[arXiv]"
    enabled: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	sources, err := LoadSources(path, 3*time.Minute, 10)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("got %d sources", len(sources))
	}

	hn := sources[0]
	if hn.Interval != 3*time.Minute || hn.Limit != 10 || hn.Lang != "en" ||
		hn.DocPrefix != "hn" || hn.TitlePrefix != "[hn]" || !hn.IsEnabled() {
		t.Errorf("defaults not applied: %+v", hn)
	}
	arxiv := sources[1]
	if arxiv.Interval != 10*time.Minute || arxiv.Limit != 25 || arxiv.DocPrefix != "arx" || arxiv.IsEnabled() {
		t.Errorf("explicit settings lost: %+v", arxiv)
	}
}
