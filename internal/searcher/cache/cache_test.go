package cache

import (
	"context"
	"testing"

	"github.com/feedsearch/feedsearch/internal/document"
)

func TestCacheKeyDiscriminates(t *testing.T) {
	base := document.SearchRequest{Query: "bm25", TopK: 10}
	baseKey := cacheKey(base, "v1")

	variants := []document.SearchRequest{
		{Query: "bm26", TopK: 10},
		{Query: "bm25", TopK: 20},
		{Query: "bm25", TopK: 10, UsePRF: true},
		{Query: "bm25", TopK: 10, Filters: &document.SearchFilters{Lang: "en"}},
		{Query: "bm25", TopK: 10, Filters: &document.SearchFilters{TimeFrom: "2024-01-01"}},
	}
	for _, v := range variants {
		if cacheKey(v, "v1") == baseKey {
			t.Errorf("request %+v collides with base key", v)
		}
	}
	if cacheKey(base, "v2") == baseKey {
		t.Error("index version change must change the key")
	}
	if cacheKey(base, "v1") != baseKey {
		t.Error("identical request must produce an identical key")
	}
}

func TestNilCacheComputesDirectly(t *testing.T) {
	var c *QueryCache
	calls := 0
	resp, cached := c.GetOrCompute(context.Background(), document.SearchRequest{Query: "q"}, "v1", func() document.SearchResponse {
		calls++
		return document.SearchResponse{Query: "q", TotalHits: 7}
	})
	if cached {
		t.Error("nil cache reported a hit")
	}
	if calls != 1 || resp.TotalHits != 7 {
		t.Errorf("compute calls = %d, resp = %+v", calls, resp)
	}
}
