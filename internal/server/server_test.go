package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/feedsearch/feedsearch/internal/analytics"
	"github.com/feedsearch/feedsearch/internal/docstore"
	"github.com/feedsearch/feedsearch/internal/document"
	"github.com/feedsearch/feedsearch/internal/index"
	"github.com/feedsearch/feedsearch/internal/ingest"
	"github.com/feedsearch/feedsearch/internal/searcher"
	"github.com/feedsearch/feedsearch/pkg/config"
	"github.com/feedsearch/feedsearch/pkg/health"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}

	docs, err := docstore.Open("", log)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := index.Open("", log)
	if err != nil {
		t.Fatal(err)
	}
	seed := []document.Document{
		{DocID: "doc-1", Title: "BM25", Body: "bm25 is a ranking model", Lang: "en"},
		{DocID: "doc-2", Title: "BM25 details", Body: "bm25 uses term frequency and document length", Lang: "en"},
	}
	if _, err := docs.Add(seed); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Build(seed); err != nil {
		t.Fatal(err)
	}

	search := searcher.New(docs, idx, cfg.Search, nil, log)
	ing := ingest.NewService(docs, idx, nil, nil, log)
	agg := analytics.NewAggregator(log)
	checker := health.NewChecker()

	srv := New(cfg, search, ing, docs, idx, nil, nil, agg, checker, nil, log)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestSearchEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/search", `{"query": "bm25", "top_k": 10}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Error("response missing X-Request-ID header")
	}
	body := decode[document.SearchResponse](t, resp)
	if body.TotalHits != 2 || len(body.Results) != 2 {
		t.Errorf("response = %+v, want 2 hits", body)
	}
}

func TestSearchEndpointMalformedQuery(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/search", `{"query": "bm25 AND ("}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (syntax errors are zero-hit, not 4xx)", resp.StatusCode)
	}
	body := decode[document.SearchResponse](t, resp)
	if body.TotalHits != 0 || len(body.Results) != 0 {
		t.Errorf("malformed query returned hits: %+v", body)
	}
	if !body.SyntaxError {
		t.Errorf("malformed query response not flagged: %+v", body)
	}
}

func TestSearchEndpointBadJSON(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/search", `{"query": `)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestIngestEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/ingest", `{"docs": [
		{"doc_id": "doc-9", "title": "Fresh", "body": "newly ingested text", "lang": "en"}
	]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[document.IngestResponse](t, resp)
	if body.Ingested != 1 || !body.UpdatedIndex || body.IndexVersion == "" {
		t.Errorf("ingest response = %+v", body)
	}

	// The new doc is searchable immediately.
	search := postJSON(t, ts.URL+"/api/v1/search", `{"query": "newly"}`)
	found := decode[document.SearchResponse](t, search)
	if found.TotalHits != 1 || found.Results[0].DocID != "doc-9" {
		t.Errorf("search after ingest = %+v", found)
	}
}

func TestIngestEndpointRejectsEmptyBatch(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/ingest", `{"docs": []}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health status = %d", resp.StatusCode)
	}
	body := decode[document.HealthResponse](t, resp)
	if body.Status != "ok" || body.DocsCount != 2 || body.IndexVersion == "" {
		t.Errorf("health = %+v", body)
	}

	live, err := http.Get(ts.URL + "/health/live")
	if err != nil {
		t.Fatal(err)
	}
	live.Body.Close()
	if live.StatusCode != http.StatusOK {
		t.Errorf("/health/live status = %d", live.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/v1/stats status = %d", resp.StatusCode)
	}
	stats := decode[analytics.AggregatedStats](t, resp)
	if stats.TotalSearches != 0 {
		t.Errorf("fresh aggregator stats = %+v", stats)
	}
}

func TestCacheInvalidateWithoutCache(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/cache/invalidate", ``)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[map[string]int64](t, resp)
	if body["invalidated"] != 0 {
		t.Errorf("invalidated = %d, want 0", body["invalidated"])
	}
}
