package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	apperrors "github.com/feedsearch/feedsearch/pkg/errors"
)

// snapshotFile is the on-disk JSON layout of an index snapshot. Postings are
// serialised as [doc_id, tf] pairs. The positions block is optional so older
// snapshots without positional data still load.
type snapshotFile struct {
	IndexVersion string                      `json:"index_version"`
	DocLen       map[string]int              `json:"doc_len"`
	Postings     map[string][]postingPair    `json:"postings"`
	Positions    map[string]map[string][]int `json:"positions,omitempty"`
}

type postingPair Posting

func (p postingPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.DocID, p.TF})
}

func (p *postingPair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("posting entry has %d elements, want 2", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.DocID); err != nil {
		return fmt.Errorf("posting doc id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.TF); err != nil {
		return fmt.Errorf("posting term frequency: %w", err)
	}
	return nil
}

// saveTo writes the snapshot to path via a temp file and atomic rename, so a
// crash mid-write never leaves a truncated snapshot behind. An empty path
// means the store runs in memory only.
func (idx *Index) saveTo(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	snap := snapshotFile{
		IndexVersion: idx.version,
		DocLen:       idx.docLen,
		Postings:     make(map[string][]postingPair, len(idx.postings)),
		Positions:    idx.positions,
	}
	for term, list := range idx.postings {
		pairs := make([]postingPair, len(list))
		for i, p := range list {
			pairs[i] = postingPair(p)
		}
		snap.Postings[term] = pairs
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return nil
}

// loadSnapshot reads and validates an index snapshot. A snapshot missing any
// of index_version, doc_len, or postings is rejected with ErrCorruptIndex;
// partial state never reaches the live index.
func loadSnapshot(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("%w: %s is not valid JSON: %v", apperrors.ErrCorruptIndex, path, err)
	}
	for _, required := range []string{"index_version", "doc_len", "postings"} {
		if _, ok := keys[required]; !ok {
			return nil, fmt.Errorf("%w: %s missing %q", apperrors.ErrCorruptIndex, path, required)
		}
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", apperrors.ErrCorruptIndex, path, err)
	}
	if snap.DocLen == nil || snap.Postings == nil {
		return nil, fmt.Errorf("%w: %s has null doc_len or postings", apperrors.ErrCorruptIndex, path)
	}

	idx := newIndex()
	idx.version = snap.IndexVersion
	idx.docLen = snap.DocLen

	// JSON objects carry no order, so internal ids are reassigned in sorted
	// doc id order after a restart.
	docIDs := make([]string, 0, len(snap.DocLen))
	for docID := range snap.DocLen {
		docIDs = append(docIDs, docID)
	}
	sort.Strings(docIDs)
	for _, docID := range docIDs {
		idx.ids[docID] = uint32(len(idx.docIDs))
		idx.docIDs = append(idx.docIDs, docID)
		idx.totalLen += snap.DocLen[docID]
	}

	for term, pairs := range snap.Postings {
		list := make([]Posting, len(pairs))
		for i, p := range pairs {
			list[i] = Posting(p)
		}
		idx.postings[term] = list
	}
	if snap.Positions != nil {
		idx.positions = snap.Positions
	}
	idx.finalize()
	return idx, nil
}
