// Package searcher ties the query parser, index, BM25 scorer, and PRF
// expander together into the search operation exposed by the API.
package searcher

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring"

	"github.com/feedsearch/feedsearch/internal/bm25"
	"github.com/feedsearch/feedsearch/internal/docstore"
	"github.com/feedsearch/feedsearch/internal/document"
	"github.com/feedsearch/feedsearch/internal/index"
	"github.com/feedsearch/feedsearch/internal/prf"
	"github.com/feedsearch/feedsearch/internal/query"
	"github.com/feedsearch/feedsearch/pkg/config"
	"github.com/feedsearch/feedsearch/pkg/logger"
	"github.com/feedsearch/feedsearch/pkg/metrics"
)

// Searcher executes search requests against the live index snapshot.
type Searcher struct {
	docs    *docstore.Store
	idx     *index.Store
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds a Searcher. metrics may be nil (disabled).
func New(docs *docstore.Store, idx *index.Store, cfg config.SearchConfig, m *metrics.Metrics, log *slog.Logger) *Searcher {
	return &Searcher{docs: docs, idx: idx, cfg: cfg, metrics: m, logger: log}
}

// Search runs the full pipeline: parse, evaluate, score, optionally expand,
// rank, filter, and build snippets. A malformed query is answered with zero
// hits rather than an error; the client sees an empty result set and the
// problem is logged.
func (s *Searcher) Search(ctx context.Context, req document.SearchRequest) document.SearchResponse {
	started := time.Now()
	idx := s.idx.Current()

	topK := req.TopK
	if topK < 1 {
		topK = s.cfg.DefaultTopK
	}
	if s.cfg.MaxTopK > 0 && topK > s.cfg.MaxTopK {
		topK = s.cfg.MaxTopK
	}

	node, err := query.Parse(req.Query)
	if err != nil {
		var syntaxErr *query.SyntaxError
		if errors.As(err, &syntaxErr) {
			s.logger.Warn("query rejected",
				"query", req.Query,
				"position", syntaxErr.Pos,
				"reason", syntaxErr.Msg,
				"request_id", logger.RequestID(ctx))
		}
		s.count("syntax_error")
		return document.SearchResponse{
			Query:       req.Query,
			TookMs:      time.Since(started).Milliseconds(),
			SyntaxError: true,
			Results:     []document.SearchResult{},
		}
	}

	candidates := node.Evaluate(idx)
	if candidates.IsEmpty() {
		s.count("zero_result")
		return document.SearchResponse{
			Query:   req.Query,
			TookMs:  time.Since(started).Milliseconds(),
			Results: []document.SearchResult{},
		}
	}

	qTerms := query.Terms(node)
	scores := bm25.Scores(qTerms, idx, candidates)

	if req.UsePRF {
		expanded := s.expand(qTerms, scores, idx)
		if len(expanded) > 0 {
			rescored := bm25.Scores(append(append([]string{}, qTerms...), expanded...), idx, candidates)
			// Max-merge keeps every document at least as relevant as the
			// unexpanded query said it was, and never double-counts.
			for docID, score := range rescored {
				if score > scores[docID] {
					scores[docID] = score
				}
			}
		}
	}

	ranked := rankCandidates(idx, candidates, scores)

	results := make([]document.SearchResult, 0, topK)
	for _, hit := range ranked {
		doc, ok := s.docs.Get(hit.docID)
		if !ok {
			continue
		}
		if !matchesFilters(doc, req.Filters) {
			continue
		}
		results = append(results, document.SearchResult{
			DocID:     doc.DocID,
			Title:     doc.Title,
			Snippet:   makeSnippet(doc.Body, qTerms),
			Score:     hit.score,
			URL:       doc.URL,
			Timestamp: doc.Timestamp,
			Lang:      doc.Lang,
		})
		if len(results) >= topK {
			break
		}
	}

	if len(results) == 0 {
		s.count("zero_result")
	} else {
		s.count("hit")
	}
	if s.metrics != nil {
		s.metrics.SearchResultsCount.Observe(float64(len(results)))
	}

	return document.SearchResponse{
		Query:     req.Query,
		TookMs:    time.Since(started).Milliseconds(),
		TotalHits: len(ranked),
		Results:   results,
	}
}

func (s *Searcher) count(resultType string) {
	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}

// expand runs pseudo-relevance feedback over the top-scored documents of the
// initial pass.
func (s *Searcher) expand(qTerms []string, scores map[string]float64, idx *index.Index) []string {
	feedbackDocs := s.cfg.PRFDocs
	if feedbackDocs <= 0 {
		feedbackDocs = 5
	}
	top := topDocsByScore(idx, scores, feedbackDocs)
	if len(top) == 0 {
		return nil
	}
	return prf.Expand(qTerms, top, func(docID string) (string, bool) {
		doc, ok := s.docs.Get(docID)
		if !ok {
			return "", false
		}
		return doc.Text(), true
	}, s.cfg.PRFTerms)
}

type hit struct {
	docID string
	score float64
	id    uint32
}

// rankCandidates orders every candidate document by score descending. Docs
// the scorer never touched rank with score 0. Ties keep indexing order so
// results are stable across identical requests.
func rankCandidates(idx *index.Index, candidates *roaring.Bitmap, scores map[string]float64) []hit {
	ranked := make([]hit, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		docID := idx.DocIDOf(id)
		ranked = append(ranked, hit{docID: docID, score: scores[docID], id: id})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	return ranked
}

// topDocsByScore returns the doc ids of the n highest-scored documents,
// ties broken by indexing order.
func topDocsByScore(idx *index.Index, scores map[string]float64, n int) []string {
	type scored struct {
		docID string
		score float64
		id    uint32
	}
	top := make([]scored, 0, len(scores))
	for docID, score := range scores {
		id, ok := idx.InternalID(docID)
		if !ok {
			continue
		}
		top = append(top, scored{docID: docID, score: score, id: id})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].score != top[j].score {
			return top[i].score > top[j].score
		}
		return top[i].id < top[j].id
	})
	if len(top) > n {
		top = top[:n]
	}
	out := make([]string, len(top))
	for i, s := range top {
		out[i] = s.docID
	}
	return out
}

// matchesFilters applies metadata filters. Time bounds are inclusive; a doc
// timestamp that fails to parse does not exclude the document, matching the
// best-effort semantics of the time filter.
func matchesFilters(doc document.Document, filters *document.SearchFilters) bool {
	if filters == nil {
		return true
	}
	if filters.Lang != "" && doc.Lang != filters.Lang {
		return false
	}
	if (filters.TimeFrom != "" || filters.TimeTo != "") && doc.Timestamp != "" {
		ts, err := parseISO(doc.Timestamp)
		if err != nil {
			return true
		}
		if filters.TimeFrom != "" {
			if from, err := parseISO(filters.TimeFrom); err == nil && ts.Before(from) {
				return false
			}
		}
		if filters.TimeTo != "" {
			if to, err := parseISO(filters.TimeTo); err == nil && ts.After(to) {
				return false
			}
		}
	}
	return true
}

func parseISO(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	// Bare date-time or date without a zone, treated as UTC.
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", value)
}

const (
	snippetMaxLen  = 180
	snippetContext = 60
)

// makeSnippet extracts a window of the body around the first query term
// occurrence. Matching is a plain case-insensitive substring search so a
// snippet can anchor on a term inside a longer word.
func makeSnippet(body string, terms []string) string {
	if body == "" {
		return ""
	}
	lower := strings.ToLower(body)
	pos := -1
	for _, term := range terms {
		if p := strings.Index(lower, strings.ToLower(term)); p != -1 {
			pos = p
			break
		}
	}

	var snippet string
	if pos == -1 {
		snippet = truncate(body, snippetMaxLen)
	} else {
		start := pos - snippetContext
		if start < 0 {
			start = 0
		}
		// The window must not begin mid-rune.
		for start > 0 && !utf8.RuneStart(body[start]) {
			start--
		}
		snippet = truncate(body[start:], snippetMaxLen)
	}
	return strings.TrimSpace(strings.ReplaceAll(snippet, "\n", " "))
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
