package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/feedsearch/feedsearch/internal/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Full-text retrieval engines normalize documents into terms before
        indexing. The inverted index maps each term to the documents containing
        it, along with positional information for phrase and proximity queries.
        BM25 ranking considers term frequency, document length normalization,
        and inverse document frequency to produce relevance scores.`,
	"long": strings.Repeat(`Feed ingestion pipelines poll RSS sources on a schedule,
        strip markup from item descriptions, and submit the cleaned text for
        incremental indexing. Query caching keyed on the index version keeps
        cached entries consistent with the live snapshot, and pseudo relevance
        feedback expands queries with frequent terms from the top results. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tokenizer.Tokenize(text)
				_ = tokens
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tokens := tokenizer.Tokenize(text)
			_ = tokens
		}
	})
}

func BenchmarkAnalyzerStemming(b *testing.B) {
	a := tokenizer.Analyzer{RemoveStopWords: true, Stem: true}
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		tokens := a.Tokenize(text)
		_ = tokens
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "feed search retrieval ranking indexing "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tokenizer.Tokenize(text)
				_ = tokens
			}
		})
	}
}
