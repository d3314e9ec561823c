package index

import (
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/feedsearch/feedsearch/internal/document"
)

// Store owns the live index snapshot. Reads go through an atomic pointer and
// never block; mutations are serialised by a writer lock, build the next
// snapshot off to the side, persist it, and only then swap it in. A failed
// save therefore leaves both the in-memory index and the snapshot file
// untouched.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Index]
	path    string
	logger  *slog.Logger
}

// Open creates a store backed by the snapshot file at path. A missing file
// starts an empty index; an unreadable or invalid snapshot is a fatal error,
// never silently ignored. Pass an empty path for a memory-only store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger}

	if path != "" {
		idx, err := loadSnapshot(path)
		switch {
		case err == nil:
			s.current.Store(idx)
			logger.Info("index snapshot loaded",
				"path", path,
				"index_version", idx.Version(),
				"docs", idx.NumDocs())
			return s, nil
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("no index snapshot found, starting empty", "path", path)
		default:
			return nil, err
		}
	}

	s.current.Store(newIndex())
	return s, nil
}

// Current returns the live snapshot. The returned index is immutable and
// stays valid for as long as the caller holds it.
func (s *Store) Current() *Index {
	return s.current.Load()
}

// Build replaces the live index with a full rebuild over docs. It always
// mints a new version, even for an empty corpus.
func (s *Store) Build(docs []document.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := newIndex()
	for _, doc := range docs {
		if next.Contains(doc.DocID) {
			continue
		}
		next.addDocument(doc)
	}
	next.finalize()

	if err := next.saveTo(s.path); err != nil {
		return s.current.Load().Version(), err
	}
	s.current.Store(next)
	s.logger.Info("index rebuilt",
		"index_version", next.Version(),
		"docs", next.NumDocs())
	return next.Version(), nil
}

// Update merges docs into the index, skipping doc ids that are already
// indexed. It reports how many documents were actually added and the version
// of the resulting snapshot. When nothing is new the index is untouched and
// the current version is returned unchanged.
func (s *Store) Update(docs []document.Document) (int, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	next := cur.clone()

	added := 0
	for _, doc := range docs {
		if next.Contains(doc.DocID) {
			continue
		}
		next.addDocument(doc)
		added++
	}
	if added == 0 {
		return 0, cur.Version(), nil
	}

	next.version = mintVersion()
	next.finalize()
	if err := next.saveTo(s.path); err != nil {
		return 0, cur.Version(), err
	}
	s.current.Store(next)
	s.logger.Info("index updated",
		"added", added,
		"index_version", next.Version(),
		"docs", next.NumDocs())
	return added, next.Version(), nil
}
