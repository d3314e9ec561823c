// Package docstore keeps the full document corpus in memory, backed by an
// append-only JSONL log so the corpus survives restarts and the index can be
// rebuilt from it at any time.
package docstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/feedsearch/feedsearch/internal/document"
	apperrors "github.com/feedsearch/feedsearch/pkg/errors"
)

// Store holds all known documents keyed by doc id, preserving insertion
// order. All methods are safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	docs  map[string]document.Document
	order []string
	path  string
}

// Open loads the document log at path if it exists. One malformed line fails
// the whole load; the log is machine-written and a bad line means something
// is wrong with the data directory. Pass an empty path for a memory-only
// store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{docs: make(map[string]document.Document), path: path}
	if path == "" {
		return s, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("no document log found, starting empty", "path", path)
			return s, nil
		}
		return nil, fmt.Errorf("opening document log %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var doc document.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%w: document log %s line %d: %v", apperrors.ErrCorruptIndex, path, line, err)
		}
		if doc.DocID == "" {
			return nil, fmt.Errorf("%w: document log %s line %d: empty doc_id", apperrors.ErrCorruptIndex, path, line)
		}
		if _, dup := s.docs[doc.DocID]; !dup {
			s.order = append(s.order, doc.DocID)
		}
		s.docs[doc.DocID] = doc
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading document log %s: %w", path, err)
	}
	logger.Info("document log loaded", "path", path, "docs", len(s.docs))
	return s, nil
}

// Add stores docs that are not yet known and appends them to the log,
// returning the newly added documents. Known doc ids are skipped, never
// overwritten.
func (s *Store) Add(docs []document.Document) ([]document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []document.Document
	for _, doc := range docs {
		if doc.DocID == "" {
			return fresh, fmt.Errorf("%w: document with empty doc_id", apperrors.ErrInvalidInput)
		}
		if _, dup := s.docs[doc.DocID]; dup {
			continue
		}
		fresh = append(fresh, doc)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	if err := s.appendLog(fresh); err != nil {
		return nil, err
	}
	for _, doc := range fresh {
		s.docs[doc.DocID] = doc
		s.order = append(s.order, doc.DocID)
	}
	return fresh, nil
}

// appendLog writes docs to the JSONL log. Called with the lock held.
func (s *Store) appendLog(docs []document.Document) error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating document log directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening document log for append: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("appending document %s: %w", doc.DocID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing document log: %w", err)
	}
	return nil
}

// Get returns the document with the given id.
func (s *Store) Get(docID string) (document.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	return doc, ok
}

// All returns every document in insertion order.
func (s *Store) All() []document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]document.Document, 0, len(s.order))
	for _, docID := range s.order {
		out = append(out, s.docs[docID])
	}
	return out
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
