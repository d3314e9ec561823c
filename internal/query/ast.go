package query

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/feedsearch/feedsearch/internal/index"
	"github.com/feedsearch/feedsearch/internal/tokenizer"
)

// Operator precedence, loosest first. Used both by the parser and by String
// rendering to decide where parentheses are needed.
const (
	precOr = iota + 1
	precAnd
	precNot
	precPrimary
)

// Node is one node of a parsed query. Evaluate returns the matching document
// set as a bitmap over the index's internal ids; it never mutates the index
// or any bitmap owned by it.
type Node interface {
	Evaluate(idx *index.Index) *roaring.Bitmap
	String() string

	precedence() int
	collectTerms(seen map[string]struct{}, out *[]string)
}

// render wraps n in parentheses when its operator binds looser than the
// enclosing one.
func render(n Node, parentPrec int) string {
	if n.precedence() < parentPrec {
		return "(" + n.String() + ")"
	}
	return n.String()
}

// Term matches documents containing a single word. The raw query word is
// normalised through the tokenizer at evaluation time so that "BM25" and
// "bm25" behave identically.
type Term struct {
	Text string
}

func (t *Term) Evaluate(idx *index.Index) *roaring.Bitmap {
	tokens := tokenizer.Tokenize(t.Text)
	if len(tokens) == 0 {
		return roaring.New()
	}
	return idx.TermBitmap(tokens[0])
}

func (t *Term) String() string { return t.Text }
func (t *Term) precedence() int { return precPrimary }

func (t *Term) collectTerms(seen map[string]struct{}, out *[]string) {
	for _, tok := range tokenizer.Tokenize(t.Text) {
		addTerm(tok, seen, out)
		break
	}
}

// Phrase matches documents containing all its words at consecutive
// positions. On an index without positional data it degrades to requiring
// all words anywhere in the document.
type Phrase struct {
	Text string
}

func (p *Phrase) Evaluate(idx *index.Index) *roaring.Bitmap {
	tokens := tokenizer.Tokenize(p.Text)
	if len(tokens) == 0 {
		return roaring.New()
	}
	candidates := idx.TermBitmap(tokens[0])
	for _, tok := range tokens[1:] {
		candidates = roaring.And(candidates, idx.TermBitmap(tok))
	}
	if len(tokens) == 1 || !idx.HasPositions() {
		return candidates
	}

	matched := roaring.New()
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		if phraseAt(idx, idx.DocIDOf(id), tokens) {
			matched.Add(id)
		}
	}
	return matched
}

// phraseAt reports whether tokens occur consecutively in the document,
// anchoring on each occurrence of the first token.
func phraseAt(idx *index.Index, docID string, tokens []string) bool {
	for _, start := range idx.Positions(tokens[0], docID) {
		ok := true
		for i := 1; i < len(tokens); i++ {
			if !hasPosition(idx.Positions(tokens[i], docID), start+i) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func hasPosition(positions []int, want int) bool {
	i := sort.SearchInts(positions, want)
	return i < len(positions) && positions[i] == want
}

func (p *Phrase) String() string { return `"` + p.Text + `"` }
func (p *Phrase) precedence() int { return precPrimary }

func (p *Phrase) collectTerms(seen map[string]struct{}, out *[]string) {
	for _, tok := range tokenizer.Tokenize(p.Text) {
		addTerm(tok, seen, out)
	}
}

// Proximity matches documents where two terms occur within Dist token
// positions of each other, in either order. Without positional data it
// degrades to a conjunction of the two terms.
type Proximity struct {
	Dist  int
	Term1 string
	Term2 string
}

func (x *Proximity) Evaluate(idx *index.Index) *roaring.Bitmap {
	t1 := tokenizer.Tokenize(x.Term1)
	t2 := tokenizer.Tokenize(x.Term2)
	if len(t1) == 0 || len(t2) == 0 {
		return roaring.New()
	}
	candidates := roaring.And(idx.TermBitmap(t1[0]), idx.TermBitmap(t2[0]))
	if !idx.HasPositions() {
		return candidates
	}

	matched := roaring.New()
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		docID := idx.DocIDOf(id)
		if withinDistance(idx.Positions(t1[0], docID), idx.Positions(t2[0], docID), x.Dist) {
			matched.Add(id)
		}
	}
	return matched
}

// withinDistance reports whether two sorted position lists contain a pair at
// most dist apart, using a linear merge scan.
func withinDistance(a, b []int, dist int) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		d := a[i] - b[j]
		if d < 0 {
			d = -d
		}
		if d <= dist {
			return true
		}
		if a[i] < b[j] {
			i++
		} else {
			j++
		}
	}
	return false
}

func (x *Proximity) String() string {
	return fmt.Sprintf("#%d(%s,%s)", x.Dist, x.Term1, x.Term2)
}
func (x *Proximity) precedence() int { return precPrimary }

func (x *Proximity) collectTerms(seen map[string]struct{}, out *[]string) {
	if t := tokenizer.Tokenize(x.Term1); len(t) > 0 {
		addTerm(t[0], seen, out)
	}
	if t := tokenizer.Tokenize(x.Term2); len(t) > 0 {
		addTerm(t[0], seen, out)
	}
}

// Not matches the complement of its child within the set of all indexed
// documents.
type Not struct {
	Child Node
}

func (n *Not) Evaluate(idx *index.Index) *roaring.Bitmap {
	return roaring.AndNot(idx.Universe(), n.Child.Evaluate(idx))
}

func (n *Not) String() string { return "NOT " + render(n.Child, precNot) }
func (n *Not) precedence() int { return precNot }

func (n *Not) collectTerms(seen map[string]struct{}, out *[]string) {
	n.Child.collectTerms(seen, out)
}

// And matches the intersection of its children.
type And struct {
	Left, Right Node
}

func (a *And) Evaluate(idx *index.Index) *roaring.Bitmap {
	return roaring.And(a.Left.Evaluate(idx), a.Right.Evaluate(idx))
}

func (a *And) String() string {
	return render(a.Left, precAnd) + " AND " + render(a.Right, precAnd)
}
func (a *And) precedence() int { return precAnd }

func (a *And) collectTerms(seen map[string]struct{}, out *[]string) {
	a.Left.collectTerms(seen, out)
	a.Right.collectTerms(seen, out)
}

// Or matches the union of its children.
type Or struct {
	Left, Right Node
}

func (o *Or) Evaluate(idx *index.Index) *roaring.Bitmap {
	return roaring.Or(o.Left.Evaluate(idx), o.Right.Evaluate(idx))
}

func (o *Or) String() string {
	return render(o.Left, precOr) + " OR " + render(o.Right, precOr)
}
func (o *Or) precedence() int { return precOr }

func (o *Or) collectTerms(seen map[string]struct{}, out *[]string) {
	o.Left.collectTerms(seen, out)
	o.Right.collectTerms(seen, out)
}

// Terms returns the distinct normalised terms mentioned anywhere in the
// query, in first-appearance order. The searcher uses them for BM25 scoring
// and snippet highlighting.
func Terms(n Node) []string {
	seen := make(map[string]struct{})
	var out []string
	n.collectTerms(seen, &out)
	return out
}

func addTerm(term string, seen map[string]struct{}, out *[]string) {
	if _, dup := seen[term]; dup {
		return
	}
	seen[term] = struct{}{}
	*out = append(*out, term)
}
