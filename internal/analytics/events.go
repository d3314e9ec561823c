// Package analytics tracks search behaviour: per-query events flow through
// Kafka into an in-memory aggregator whose rollups can be served over HTTP
// and periodically snapshotted to Postgres.
package analytics

import "time"

type EventType string

const (
	EventSearch      EventType = "search"
	EventZeroResult  EventType = "zero_result"
	EventSyntaxError EventType = "syntax_error"
)

// SearchEvent records one executed search.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	UsedPRF   bool      `json:"used_prf"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}
