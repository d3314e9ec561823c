// Package document defines the wire types shared by the document store,
// index, searcher, and HTTP API.
package document

// Document is a single corpus entry. A document is immutable once indexed;
// re-submission with a known DocID is a no-op.
type Document struct {
	DocID     string `json:"doc_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	URL       string `json:"url,omitempty"`
	Timestamp string `json:"timestamp,omitempty"` // ISO-8601
	Lang      string `json:"lang"`
}

// Text returns the content that gets tokenized and indexed.
func (d Document) Text() string {
	return d.Title + " " + d.Body
}

// SearchFilters restricts search results by metadata.
type SearchFilters struct {
	Lang     string `json:"lang,omitempty"`
	TimeFrom string `json:"time_from,omitempty"` // ISO-8601, inclusive
	TimeTo   string `json:"time_to,omitempty"`   // ISO-8601, inclusive
}

// SearchRequest is the JSON body accepted by the search endpoint.
type SearchRequest struct {
	Query   string         `json:"query"`
	TopK    int            `json:"top_k"`
	UsePRF  bool           `json:"use_prf"`
	Filters *SearchFilters `json:"filters,omitempty"`
}

// SearchResult is a single ranked hit.
type SearchResult struct {
	DocID     string  `json:"doc_id"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
	URL       string  `json:"url,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	Lang      string  `json:"lang"`
}

// SearchResponse is the full response for one query. TotalHits is the size
// of the ranked set before truncation to TopK. SyntaxError marks zero-hit
// responses caused by a malformed query rather than an empty match.
type SearchResponse struct {
	Query       string         `json:"query"`
	TookMs      int64          `json:"took_ms"`
	TotalHits   int            `json:"total_hits"`
	SyntaxError bool           `json:"syntax_error,omitempty"`
	Results     []SearchResult `json:"results"`
}

// IngestRequest is a batch of documents submitted for indexing.
type IngestRequest struct {
	Docs []Document `json:"docs"`
}

// IngestResponse reports how many documents were actually added. Duplicates
// by DocID are silently skipped.
type IngestResponse struct {
	Ingested     int    `json:"ingested"`
	UpdatedIndex bool   `json:"updated_index"`
	IndexVersion string `json:"index_version"`
}

// HealthResponse is returned by the basic health endpoint.
type HealthResponse struct {
	Status       string `json:"status"`
	IndexVersion string `json:"index_version"`
	DocsCount    int    `json:"docs_count"`
}
