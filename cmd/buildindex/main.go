// Command buildindex rebuilds an index snapshot from a JSONL document log,
// for offline corpus preparation or recovering from a corrupt snapshot.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/feedsearch/feedsearch/internal/docstore"
	"github.com/feedsearch/feedsearch/internal/index"
	"github.com/feedsearch/feedsearch/pkg/logger"
)

func main() {
	docsPath := flag.String("docs", "data/docs.jsonl", "path to the JSONL document log")
	outPath := flag.String("out", "data/index.json", "path of the index snapshot to write")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger.Setup(*logLevel, "text")

	docs, err := docstore.Open(*docsPath, logger.WithComponent("docstore"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load documents: %v\n", err)
		os.Exit(1)
	}
	if docs.Len() == 0 {
		fmt.Fprintf(os.Stderr, "no documents in %s\n", *docsPath)
		os.Exit(1)
	}

	// Start from an empty snapshot regardless of what is on disk.
	if err := os.RemoveAll(*outPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to remove old snapshot: %v\n", err)
		os.Exit(1)
	}
	store, err := index.Open(*outPath, logger.WithComponent("index"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open index: %v\n", err)
		os.Exit(1)
	}
	version, err := store.Build(docs.All())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build index: %v\n", err)
		os.Exit(1)
	}

	slog.Info("index built",
		"docs", docs.Len(),
		"index_version", version,
		"snapshot", *outPath)
}
