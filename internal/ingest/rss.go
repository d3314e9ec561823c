package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/feedsearch/feedsearch/internal/document"
	"github.com/feedsearch/feedsearch/pkg/resilience"
)

const fetchUserAgent = "feedsearch-ingest/1.0"

// rssFeed is the subset of RSS 2.0 the fetcher cares about. Atom-style
// <updated> elements are picked up as a pubDate fallback since several feeds
// mix the two.
type rssFeed struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
	Updated     string `xml:"updated"`
	Description string `xml:"description"`
	Content     string `xml:"encoded"` // content:encoded, full article HTML
}

// Fetcher downloads and parses RSS feeds into Documents.
type Fetcher struct {
	client *http.Client
	retry  resilience.RetryConfig
}

// NewFetcher builds a Fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		retry:  resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond},
	}
}

// Fetch retrieves up to src.Limit documents from the feed. The doc id is
// derived from the item guid (or link) so refetching a feed yields the same
// ids and duplicates are filtered downstream.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]document.Document, error) {
	var body []byte
	err := resilience.Retry(ctx, "fetch "+src.ID, f.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", fetchUserAgent)
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("feed %s returned status %d", src.URL, resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", src.URL, err)
	}

	items := feed.Channel.Items
	if src.Limit > 0 && len(items) > src.Limit {
		items = items[:src.Limit]
	}

	docs := make([]document.Document, 0, len(items))
	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		if src.TitlePrefix != "" {
			title = strings.TrimSpace(src.TitlePrefix + " " + title)
		}
		bodyHTML := item.Content
		if bodyHTML == "" {
			bodyHTML = item.Description
		}
		docs = append(docs, document.Document{
			DocID:     stableDocID(src.DocPrefix, item.GUID, item.Link),
			Title:     title,
			Body:      stripHTML(bodyHTML),
			URL:       item.Link,
			Timestamp: toISO8601(firstNonEmpty(item.PubDate, item.Updated)),
			Lang:      src.Lang,
		})
	}
	return docs, nil
}

// stableDocID hashes the item identity so the same entry always maps to the
// same doc id; the source prefix keeps ids unique across feeds.
func stableDocID(prefix, guid, link string) string {
	base := guid
	if base == "" {
		base = link
	}
	sum := sha1.Sum([]byte(base))
	return prefix + "-" + hex.EncodeToString(sum[:])[:16]
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// toISO8601 normalises the pubDate formats seen in the wild to a UTC
// RFC 3339 string. Unparseable input yields an empty timestamp rather than
// dropping the document.
func toISO8601(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05Z")
		}
	}
	return ""
}

// stripHTML reduces markup to plain text: tags removed, entities decoded,
// whitespace collapsed.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(html.UnescapeString(b.String())), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
