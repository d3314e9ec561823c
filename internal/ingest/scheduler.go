package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedsearch/feedsearch/internal/document"
	"github.com/feedsearch/feedsearch/pkg/config"
	"github.com/feedsearch/feedsearch/pkg/metrics"
)

// Scheduler polls the configured RSS sources on their individual intervals.
// Failures back off exponentially per feed; the sources file is re-read every
// tick so feeds can be added or disabled without a restart.
type Scheduler struct {
	svc     *Service
	fetcher *Fetcher
	cfg     config.IngestConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	state *State
}

// NewScheduler builds a Scheduler. m may be nil.
func NewScheduler(svc *Service, fetcher *Fetcher, cfg config.IngestConfig, m *metrics.Metrics, logger *slog.Logger) (*Scheduler, error) {
	state, err := LoadState(cfg.StatePath)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		svc:     svc,
		fetcher: fetcher,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		state:   state,
	}, nil
}

// Run polls feeds until ctx is cancelled. It never returns an error for a
// failing feed; those are logged and backed off.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("feed scheduler started",
		"sources_path", s.cfg.SourcesPath,
		"tick", s.cfg.TickInterval)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	// First pass immediately rather than waiting out a full tick.
	s.runPass(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("feed scheduler stopped")
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// runPass fetches every due source, bounded by MaxConcurrent, and persists
// the state afterwards.
func (s *Scheduler) runPass(ctx context.Context) {
	sources, err := LoadSources(s.cfg.SourcesPath, s.cfg.DefaultInterval, s.cfg.DefaultLimit)
	if err != nil {
		s.logger.Error("cannot load feed sources", "error", err)
		return
	}

	now := time.Now().UTC()
	var due []Source
	s.mu.Lock()
	for _, src := range sources {
		if src.IsEnabled() && s.state.feed(src.ID).due(now) {
			due = append(due, src)
		}
	}
	s.mu.Unlock()
	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := s.cfg.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, src := range due {
		src := src
		g.Go(func() error {
			s.pollSource(gctx, src, now)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	s.state.LastRun = time.Now().UTC().Format(time.RFC3339)
	if err := s.state.Save(s.cfg.StatePath); err != nil {
		s.logger.Error("cannot persist ingest state", "error", err)
	}
	s.mu.Unlock()
}

// pollSource fetches one feed and ingests its unseen documents.
func (s *Scheduler) pollSource(ctx context.Context, src Source, now time.Time) {
	docs, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		s.recordFailure(src, now, err)
		return
	}

	s.mu.Lock()
	fresh := make([]document.Document, 0, len(docs))
	for _, doc := range docs {
		if _, seen := s.state.SeenIDs[doc.DocID]; !seen {
			fresh = append(fresh, doc)
		}
	}
	s.mu.Unlock()

	ingested := 0
	if len(fresh) > 0 {
		resp, err := s.svc.Ingest(ctx, fresh)
		if err != nil {
			s.recordFailure(src, now, err)
			return
		}
		ingested = resp.Ingested
	}

	s.mu.Lock()
	for _, doc := range fresh {
		s.state.SeenIDs[doc.DocID] = struct{}{}
	}
	fs := s.state.feed(src.ID)
	fs.FailCount = 0
	fs.LastChecked = now.Format(time.RFC3339)
	fs.NextRun = now.Add(src.Interval).Format(time.RFC3339)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.FeedFetchesTotal.WithLabelValues(src.ID, "ok").Inc()
		s.metrics.FeedDocsFetched.Add(float64(len(docs)))
	}
	s.logger.Info("feed polled",
		"source", src.ID,
		"fetched", len(docs),
		"new", len(fresh),
		"ingested", ingested)
}

// recordFailure bumps the feed's fail count and pushes its next run out by
// interval * 2^failures, capped at the configured maximum.
func (s *Scheduler) recordFailure(src Source, now time.Time, err error) {
	s.mu.Lock()
	fs := s.state.feed(src.ID)
	fs.FailCount++
	backoff := backoffDelay(src.Interval, fs.FailCount, s.cfg.MaxBackoff)
	fs.LastChecked = now.Format(time.RFC3339)
	fs.NextRun = now.Add(backoff).Format(time.RFC3339)
	failCount := fs.FailCount
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.FeedFetchesTotal.WithLabelValues(src.ID, "error").Inc()
	}
	s.logger.Warn("feed poll failed",
		"source", src.ID,
		"fail_count", failCount,
		"next_in", backoff,
		"error", err)
}

// backoffDelay is interval doubled once per consecutive failure, capped.
func backoffDelay(interval time.Duration, failCount int, maxBackoff time.Duration) time.Duration {
	if maxBackoff <= 0 {
		maxBackoff = time.Hour
	}
	delay := interval
	for i := 0; i < failCount; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
