package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/feedsearch/feedsearch/internal/analytics"
	"github.com/feedsearch/feedsearch/internal/docstore"
	"github.com/feedsearch/feedsearch/internal/document"
	"github.com/feedsearch/feedsearch/internal/index"
	"github.com/feedsearch/feedsearch/internal/ingest"
	"github.com/feedsearch/feedsearch/internal/searcher"
	"github.com/feedsearch/feedsearch/internal/searcher/cache"
	"github.com/feedsearch/feedsearch/internal/server"
	"github.com/feedsearch/feedsearch/pkg/config"
	"github.com/feedsearch/feedsearch/pkg/health"
	"github.com/feedsearch/feedsearch/pkg/kafka"
	"github.com/feedsearch/feedsearch/pkg/logger"
	"github.com/feedsearch/feedsearch/pkg/metrics"
	"github.com/feedsearch/feedsearch/pkg/postgres"
	pkgredis "github.com/feedsearch/feedsearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting feedsearch", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	docs, err := docstore.Open(cfg.Index.DocumentLogPath(), logger.WithComponent("docstore"))
	if err != nil {
		slog.Error("failed to open document store", "error", err)
		os.Exit(1)
	}
	idx, err := index.Open(cfg.Index.SnapshotPath(), logger.WithComponent("index"))
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}

	if err := bootstrapIndex(cfg, docs, idx); err != nil {
		slog.Error("failed to bootstrap index", "error", err)
		os.Exit(1)
	}
	m.IndexDocuments.Set(float64(idx.Current().NumDocs()))

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m, logger.WithComponent("query-cache"))
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var ingestProducer *kafka.Producer
	var collector *analytics.Collector
	aggregator := analytics.NewAggregator(logger.WithComponent("analytics"))
	if cfg.Kafka.Enabled {
		ingestProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IngestEvents)
		defer ingestProducer.Close()

		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		collector = analytics.NewCollector(analyticsProducer, 10000, logger.WithComponent("analytics-collector"))
		collector.Start(ctx)
		defer collector.Close()

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()
		slog.Info("kafka wired", "brokers", cfg.Kafka.Brokers)
	}

	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
		} else {
			defer pg.Close()
			snapshots := analytics.NewSnapshotStore(pg, logger.WithComponent("analytics-snapshots"))
			if err := snapshots.EnsureSchema(ctx); err != nil {
				slog.Error("failed to prepare analytics schema", "error", err)
				os.Exit(1)
			}
			if last, ok, err := snapshots.Latest(ctx); err != nil {
				slog.Warn("failed to load last analytics snapshot", "error", err)
			} else if ok {
				slog.Info("previous analytics rollup found",
					"total_searches", last.TotalSearches,
					"zero_results", last.ZeroResultCount)
			}
			go snapshots.RunPeriodic(ctx, aggregator, cfg.Analytics.SnapshotInterval)
			slog.Info("analytics snapshots enabled", "interval", cfg.Analytics.SnapshotInterval)
		}
	}

	search := searcher.New(docs, idx, cfg.Search, m, logger.WithComponent("searcher"))
	ingestSvc := ingest.NewService(docs, idx, ingestProducer, m, logger.WithComponent("ingest"))

	if cfg.Ingest.SourcesPath != "" {
		fetcher := ingest.NewFetcher(cfg.Ingest.FetchTimeout)
		scheduler, err := ingest.NewScheduler(ingestSvc, fetcher, cfg.Ingest, m, logger.WithComponent("scheduler"))
		if err != nil {
			slog.Error("failed to start feed scheduler", "error", err)
			os.Exit(1)
		}
		go scheduler.Run(ctx)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		snapshot := idx.Current()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("version %s, %d docs", snapshot.Version(), snapshot.NumDocs()),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	srv := server.New(cfg, search, ingestSvc, docs, idx, queryCache, collector, aggregator, checker, m, logger.WithComponent("http"))
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("feedsearch listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("feedsearch stopped")
}

// bootstrapIndex reconciles the index with the document log: seeds demo
// documents when both are empty (and seeding is enabled), and rebuilds the
// index when the log has documents the snapshot does not.
func bootstrapIndex(cfg *config.Config, docs *docstore.Store, idx *index.Store) error {
	if docs.Len() == 0 && cfg.Index.SeedOnEmpty {
		if _, err := docs.Add(seedDocuments()); err != nil {
			return err
		}
		if _, err := idx.Build(docs.All()); err != nil {
			return err
		}
		slog.Info("seeded demo documents", "docs", docs.Len())
		return nil
	}
	if docs.Len() != idx.Current().NumDocs() {
		version, err := idx.Build(docs.All())
		if err != nil {
			return err
		}
		slog.Info("index rebuilt from document log", "docs", docs.Len(), "index_version", version)
	}
	return nil
}

// seedDocuments is the small demo corpus used on first start.
func seedDocuments() []document.Document {
	return []document.Document{
		{
			DocID:     "doc-1",
			Title:     "Building search APIs in Go",
			Body:      "Go is a practical language for building search APIs. This document talks about HTTP services, concurrency, and deployment.",
			URL:       "https://example.com/go-search",
			Timestamp: "2025-12-01T12:00:00Z",
			Lang:      "en",
		},
		{
			DocID:     "doc-2",
			Title:     "BM25 ranking explained",
			Body:      "BM25 is a strong baseline retrieval model. It uses term frequency, inverse document frequency, and document length normalization.",
			URL:       "https://example.com/bm25",
			Timestamp: "2025-11-15T12:00:00Z",
			Lang:      "en",
		},
		{
			DocID:     "doc-3",
			Title:     "Incremental indexing for live search systems",
			Body:      "Live indexing enables continuous collection of data streaming and indexing. New documents can be added without rebuilding the entire index.",
			URL:       "https://example.com/live-indexing",
			Timestamp: "2025-12-20T09:00:00Z",
			Lang:      "en",
		},
		{
			DocID:     "doc-4",
			Title:     "Frontends for search engines",
			Body:      "A search frontend needs a query box, snippets, pagination, and query suggestion. It is often deployed as static assets.",
			URL:       "https://example.com/search-ui",
			Timestamp: "2025-12-10T18:30:00Z",
			Lang:      "en",
		},
	}
}
