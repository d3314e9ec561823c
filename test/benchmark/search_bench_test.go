package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/feedsearch/feedsearch/internal/bm25"
	"github.com/feedsearch/feedsearch/internal/docstore"
	"github.com/feedsearch/feedsearch/internal/document"
	"github.com/feedsearch/feedsearch/internal/index"
	"github.com/feedsearch/feedsearch/internal/query"
	"github.com/feedsearch/feedsearch/internal/searcher"
	"github.com/feedsearch/feedsearch/pkg/config"
)

// BenchmarkQueryParse measures parse latency for queries of varying
// complexity.
func BenchmarkQueryParse(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "retrieval"},
		{"boolean_and", "search AND ranking AND index"},
		{"boolean_or", "indexing OR caching OR ranking"},
		{"with_not", "search AND NOT deprecated"},
		{"phrase", `"inverted index"`},
		{"proximity", "#3(term, frequency)"},
		{"complex", `(search OR retrieval) AND "bm25 ranking" AND NOT draft`},
	}

	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				node, err := query.Parse(q.query)
				if err != nil {
					b.Fatal(err)
				}
				_ = node
			}
		})
	}
}

// BenchmarkQueryEvaluate measures boolean evaluation over roaring bitmaps for
// a 10 000 document index.
func BenchmarkQueryEvaluate(b *testing.B) {
	store, err := index.Open("", discardLogger())
	if err != nil {
		b.Fatal(err)
	}
	if _, err := store.Build(corpus(10000)); err != nil {
		b.Fatal(err)
	}
	idx := store.Current()

	node, err := query.Parse(`benchmark AND (terms OR performance) AND NOT missing`)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bm := node.Evaluate(idx)
		_ = bm
	}
}

// BenchmarkBM25Scores measures scoring cost as the corpus grows.
func BenchmarkBM25Scores(b *testing.B) {
	sizes := []int{100, 1000, 10000}
	terms := []string{"benchmark", "indexing", "performance"}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			store, err := index.Open("", discardLogger())
			if err != nil {
				b.Fatal(err)
			}
			if _, err := store.Build(corpus(n)); err != nil {
				b.Fatal(err)
			}
			idx := store.Current()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				scores := bm25.Scores(terms, idx, nil)
				_ = scores
			}
		})
	}
}

// BenchmarkSearch measures the full pipeline, parse through snippets, with
// and without query expansion.
func BenchmarkSearch(b *testing.B) {
	log := discardLogger()
	docs, err := docstore.Open("", log)
	if err != nil {
		b.Fatal(err)
	}
	store, err := index.Open("", log)
	if err != nil {
		b.Fatal(err)
	}
	seed := corpus(5000)
	if _, err := docs.Add(seed); err != nil {
		b.Fatal(err)
	}
	if _, err := store.Build(seed); err != nil {
		b.Fatal(err)
	}

	cfg := config.SearchConfig{DefaultTopK: 10, MaxTopK: 100, PRFDocs: 5, PRFTerms: 5}
	s := searcher.New(docs, store, cfg, nil, log)

	for _, prf := range []bool{false, true} {
		name := "plain"
		if prf {
			name = "prf"
		}
		b.Run(name, func(b *testing.B) {
			req := document.SearchRequest{Query: "benchmark AND indexing", TopK: 10, UsePRF: prf}
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				resp := s.Search(context.Background(), req)
				if resp.TotalHits == 0 {
					b.Fatal("no hits")
				}
			}
		})
	}
}

// BenchmarkSearchParallel measures concurrent query throughput against a
// stable snapshot.
func BenchmarkSearchParallel(b *testing.B) {
	log := discardLogger()
	docs, err := docstore.Open("", log)
	if err != nil {
		b.Fatal(err)
	}
	store, err := index.Open("", log)
	if err != nil {
		b.Fatal(err)
	}
	seed := corpus(5000)
	if _, err := docs.Add(seed); err != nil {
		b.Fatal(err)
	}
	if _, err := store.Build(seed); err != nil {
		b.Fatal(err)
	}

	cfg := config.SearchConfig{DefaultTopK: 10, MaxTopK: 100, PRFDocs: 5, PRFTerms: 5}
	s := searcher.New(docs, store, cfg, nil, log)
	req := document.SearchRequest{Query: `"benchmark document"`, TopK: 10}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			resp := s.Search(context.Background(), req)
			_ = resp
		}
	})
}
