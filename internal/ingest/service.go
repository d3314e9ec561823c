// Package ingest adds documents to the engine, from direct API batches and
// from periodically polled RSS feeds.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/feedsearch/feedsearch/internal/docstore"
	"github.com/feedsearch/feedsearch/internal/document"
	"github.com/feedsearch/feedsearch/internal/index"
	"github.com/feedsearch/feedsearch/pkg/kafka"
	"github.com/feedsearch/feedsearch/pkg/metrics"
)

// Event is published to Kafka for every document that enters the index.
type Event struct {
	DocID        string `json:"doc_id"`
	Title        string `json:"title"`
	URL          string `json:"url,omitempty"`
	Lang         string `json:"lang"`
	IndexVersion string `json:"index_version"`
	IngestedAt   string `json:"ingested_at"`
}

// Service applies ingest batches: document store first, then the index, then
// a best-effort event per new document.
type Service struct {
	docs     *docstore.Store
	idx      *index.Store
	producer *kafka.Producer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService builds an ingest service. producer and m may be nil.
func NewService(docs *docstore.Store, idx *index.Store, producer *kafka.Producer, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{docs: docs, idx: idx, producer: producer, metrics: m, logger: logger}
}

// Ingest stores and indexes a batch. Documents whose id is already known are
// skipped; the index version only changes when at least one document is new.
func (s *Service) Ingest(ctx context.Context, docs []document.Document) (document.IngestResponse, error) {
	fresh, err := s.docs.Add(docs)
	if err != nil {
		return document.IngestResponse{}, err
	}
	if len(fresh) == 0 {
		return document.IngestResponse{
			Ingested:     0,
			UpdatedIndex: false,
			IndexVersion: s.idx.Current().Version(),
		}, nil
	}

	added, version, err := s.idx.Update(fresh)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SnapshotSavesTotal.WithLabelValues("error").Inc()
		}
		return document.IngestResponse{}, err
	}
	if s.metrics != nil {
		s.metrics.SnapshotSavesTotal.WithLabelValues("ok").Inc()
		s.metrics.DocsIndexedTotal.Add(float64(added))
		s.metrics.IndexDocuments.Set(float64(s.idx.Current().NumDocs()))
	}

	s.publishEvents(ctx, fresh, version)
	s.logger.Info("batch ingested", "submitted", len(docs), "added", added, "index_version", version)

	return document.IngestResponse{
		Ingested:     added,
		UpdatedIndex: added > 0,
		IndexVersion: version,
	}, nil
}

// publishEvents emits one event per ingested document. Event delivery is
// best effort; a broker outage must not fail the ingest.
func (s *Service) publishEvents(ctx context.Context, docs []document.Document, version string) {
	if s.producer == nil {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	events := make([]kafka.Event, 0, len(docs))
	for _, doc := range docs {
		events = append(events, kafka.Event{
			Key: doc.DocID,
			Value: Event{
				DocID:        doc.DocID,
				Title:        doc.Title,
				URL:          doc.URL,
				Lang:         doc.Lang,
				IndexVersion: version,
				IngestedAt:   now,
			},
		})
	}
	if err := s.producer.PublishBatch(ctx, events); err != nil {
		s.logger.Warn("failed to publish ingest events", "count", len(events), "error", err)
	}
}
