// Package index implements the positional inverted index. An Index is an
// immutable snapshot; all mutation goes through a Store, which builds a new
// snapshot and swaps it in atomically so in-flight searches keep reading a
// stable index.
package index

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/feedsearch/feedsearch/internal/document"
	"github.com/feedsearch/feedsearch/internal/tokenizer"
)

// Posting records that a document contains a term with the given frequency.
// A term's posting list has exactly one entry per document containing it.
type Posting struct {
	DocID string
	TF    int
}

// Index is one immutable snapshot of the inverted index. Readers may hold an
// *Index across a concurrent rebuild; they will simply keep seeing the old
// snapshot.
type Index struct {
	version string

	// term -> postings, in document insertion order
	postings map[string][]Posting
	// term -> docID -> sorted zero-based token offsets
	positions map[string]map[string][]int
	// docID -> token count of the indexed text
	docLen map[string]int

	// docID <-> dense internal id, used for bitmap set algebra
	ids    map[string]uint32
	docIDs []string

	universe *roaring.Bitmap
	totalLen int
}

var versionSeq atomic.Uint64

// mintVersion returns a fresh, strictly different version token.
func mintVersion() string {
	return fmt.Sprintf("v%d-%d", time.Now().Unix(), versionSeq.Add(1))
}

func newIndex() *Index {
	return &Index{
		version:   mintVersion(),
		postings:  make(map[string][]Posting),
		positions: make(map[string]map[string][]int),
		docLen:    make(map[string]int),
		ids:       make(map[string]uint32),
		universe:  roaring.New(),
	}
}

// Version returns the opaque version token of this snapshot.
func (idx *Index) Version() string { return idx.version }

// NumDocs returns the number of indexed documents.
func (idx *Index) NumDocs() int { return len(idx.docIDs) }

// Contains reports whether the document is already indexed.
func (idx *Index) Contains(docID string) bool {
	_, ok := idx.ids[docID]
	return ok
}

// DocLen returns the token count recorded for a document (0 if unknown).
func (idx *Index) DocLen(docID string) int { return idx.docLen[docID] }

// AvgDocLen returns the mean document length, guarded to at least 1 so BM25
// normalisation never divides by zero.
func (idx *Index) AvgDocLen() float64 {
	if len(idx.docLen) == 0 {
		return 1
	}
	avg := float64(idx.totalLen) / float64(len(idx.docLen))
	if avg < 1 {
		return 1
	}
	return avg
}

// Postings returns the posting list for a term (nil if the term is unknown).
func (idx *Index) Postings(term string) []Posting { return idx.postings[term] }

// Positions returns the sorted token offsets of term in docID, or nil.
func (idx *Index) Positions(term, docID string) []int {
	inner, ok := idx.positions[term]
	if !ok {
		return nil
	}
	return inner[docID]
}

// HasPositions reports whether this snapshot carries positional data. A
// snapshot loaded from an older on-disk format may not; phrase and proximity
// queries then degrade to plain conjunctions.
func (idx *Index) HasPositions() bool { return len(idx.positions) > 0 }

// InternalID returns the dense id assigned to docID.
func (idx *Index) InternalID(docID string) (uint32, bool) {
	id, ok := idx.ids[docID]
	return id, ok
}

// DocIDOf maps a dense internal id back to the external document id.
func (idx *Index) DocIDOf(id uint32) string { return idx.docIDs[id] }

// Universe returns the bitmap of all indexed documents. Callers must treat
// it as read-only.
func (idx *Index) Universe() *roaring.Bitmap { return idx.universe }

// TermBitmap returns the set of documents containing term as a fresh bitmap
// over internal ids.
func (idx *Index) TermBitmap(term string) *roaring.Bitmap {
	bm := roaring.New()
	for _, p := range idx.postings[term] {
		if id, ok := idx.ids[p.DocID]; ok {
			bm.Add(id)
		}
	}
	return bm
}

// addDocument indexes a single document into this (not yet published)
// snapshot. Postings and positions for the document are recorded in one
// pass; the caller has already checked for duplicates.
func (idx *Index) addDocument(doc document.Document) {
	tokens := tokenizer.Tokenize(doc.Text())

	id := uint32(len(idx.docIDs))
	idx.ids[doc.DocID] = id
	idx.docIDs = append(idx.docIDs, doc.DocID)
	idx.docLen[doc.DocID] = len(tokens)
	idx.totalLen += len(tokens)

	termFreqs := make(map[string]int)
	termPositions := make(map[string][]int)
	for pos, term := range tokens {
		termFreqs[term]++
		termPositions[term] = append(termPositions[term], pos)
	}

	for term, tf := range termFreqs {
		idx.postings[term] = append(idx.postings[term], Posting{DocID: doc.DocID, TF: tf})
		inner, ok := idx.positions[term]
		if !ok {
			inner = make(map[string][]int)
			idx.positions[term] = inner
		}
		inner[doc.DocID] = termPositions[term]
	}
}

// finalize recomputes derived structures after a batch of addDocument calls.
func (idx *Index) finalize() {
	idx.universe = roaring.New()
	if n := len(idx.docIDs); n > 0 {
		idx.universe.AddRange(0, uint64(n))
	}
}

// clone returns a copy safe to mutate under the store's writer lock while
// readers keep using the receiver. Posting slices and position slices are
// shared; appends only ever touch elements past the published length, and
// the single-writer lock serialises all mutation.
func (idx *Index) clone() *Index {
	next := &Index{
		version:   idx.version,
		postings:  make(map[string][]Posting, len(idx.postings)),
		positions: make(map[string]map[string][]int, len(idx.positions)),
		docLen:    make(map[string]int, len(idx.docLen)),
		ids:       make(map[string]uint32, len(idx.ids)),
		docIDs:    append([]string(nil), idx.docIDs...),
		totalLen:  idx.totalLen,
	}
	for term, list := range idx.postings {
		next.postings[term] = list
	}
	for term, inner := range idx.positions {
		innerCopy := make(map[string][]int, len(inner))
		for docID, offsets := range inner {
			innerCopy[docID] = offsets
		}
		next.positions[term] = innerCopy
	}
	for docID, n := range idx.docLen {
		next.docLen[docID] = n
	}
	for docID, id := range idx.ids {
		next.ids[docID] = id
	}
	return next
}
