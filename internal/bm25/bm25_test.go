package bm25

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/RoaringBitmap/roaring"

	"github.com/feedsearch/feedsearch/internal/document"
	"github.com/feedsearch/feedsearch/internal/index"
)

func buildIndex(t *testing.T, docs []document.Document) *index.Index {
	t.Helper()
	s, err := index.Open("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Build(docs); err != nil {
		t.Fatal(err)
	}
	return s.Current()
}

func TestScoresRankRarerTermsHigher(t *testing.T) {
	idx := buildIndex(t, []document.Document{
		{DocID: "doc-1", Body: "common common common rare"},
		{DocID: "doc-2", Body: "common words appear here"},
		{DocID: "doc-3", Body: "common again and again"},
	})

	scores := Scores([]string{"common", "rare"}, idx, nil)
	if len(scores) != 3 {
		t.Fatalf("scored %d docs, want 3", len(scores))
	}
	if scores["doc-1"] <= scores["doc-2"] {
		t.Errorf("doc-1 (has rare term) should outscore doc-2: %v vs %v",
			scores["doc-1"], scores["doc-2"])
	}
}

func TestScoresTermFrequencySaturates(t *testing.T) {
	idx := buildIndex(t, []document.Document{
		{DocID: "once", Body: "term filler filler filler"},
		{DocID: "twice", Body: "term term filler filler"},
		{DocID: "many", Body: "term term term term"},
		{DocID: "none", Body: "filler filler filler filler"},
	})

	scores := Scores([]string{"term"}, idx, nil)
	if _, ok := scores["none"]; ok {
		t.Error("document without the term must not be scored")
	}
	if !(scores["once"] < scores["twice"] && scores["twice"] < scores["many"]) {
		t.Fatalf("scores not monotone in tf: %v", scores)
	}
	// Diminishing returns: the second occurrence adds less than the first.
	if scores["many"]-scores["twice"] >= scores["twice"]-scores["once"] {
		t.Errorf("tf gains should shrink: once=%v twice=%v many=%v",
			scores["once"], scores["twice"], scores["many"])
	}
}

func TestScoresUnknownTermContributesNothing(t *testing.T) {
	idx := buildIndex(t, []document.Document{
		{DocID: "doc-1", Body: "hello world"},
	})
	if got := Scores([]string{"absent"}, idx, nil); len(got) != 0 {
		t.Errorf("unknown term produced scores: %v", got)
	}
	if got := Scores(nil, idx, nil); len(got) != 0 {
		t.Errorf("empty term list produced scores: %v", got)
	}
}

func TestScoresDuplicateQueryTermsAccumulate(t *testing.T) {
	idx := buildIndex(t, []document.Document{
		{DocID: "doc-1", Body: "alpha beta"},
		{DocID: "doc-2", Body: "gamma delta"},
	})
	single := Scores([]string{"alpha"}, idx, nil)
	double := Scores([]string{"alpha", "alpha"}, idx, nil)
	if math.Abs(double["doc-1"]-2*single["doc-1"]) > 1e-12 {
		t.Errorf("duplicate term should double the score: %v vs %v",
			double["doc-1"], single["doc-1"])
	}
}

func TestScoresRespectTargetSet(t *testing.T) {
	idx := buildIndex(t, []document.Document{
		{DocID: "doc-1", Body: "shared term one"},
		{DocID: "doc-2", Body: "shared term two"},
		{DocID: "doc-3", Body: "shared term three"},
	})

	target := roaring.New()
	id, ok := idx.InternalID("doc-2")
	if !ok {
		t.Fatal("doc-2 missing from index")
	}
	target.Add(id)

	scores := Scores([]string{"shared"}, idx, target)
	if len(scores) != 1 {
		t.Fatalf("restricted scoring returned %d docs, want 1: %v", len(scores), scores)
	}
	if _, ok := scores["doc-2"]; !ok {
		t.Errorf("expected doc-2 in restricted scores, got %v", scores)
	}

	// Restricting must not change the value, only the domain.
	full := Scores([]string{"shared"}, idx, nil)
	if math.Abs(full["doc-2"]-scores["doc-2"]) > 1e-12 {
		t.Errorf("restricted score %v differs from unrestricted %v",
			scores["doc-2"], full["doc-2"])
	}
}

func TestScoresMatchHandComputedValue(t *testing.T) {
	idx := buildIndex(t, []document.Document{
		{DocID: "doc-1", Body: "apple banana apple"},
		{DocID: "doc-2", Body: "banana cherry"},
	})

	// N=2, df(apple)=1, tf=2, dl=3, avgdl=2.5.
	idf := math.Log(1 + (2-1+0.5)/(1+0.5))
	tf := 2.0
	norm := K1 * (1 - B + B*3/2.5)
	want := idf * tf * (K1 + 1) / (tf + norm)

	got := Scores([]string{"apple"}, idx, nil)["doc-1"]
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("score = %v, want %v", got, want)
	}
}
