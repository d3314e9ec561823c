package prf

import (
	"reflect"
	"testing"
)

func lookupFrom(texts map[string]string) func(string) (string, bool) {
	return func(docID string) (string, bool) {
		text, ok := texts[docID]
		return text, ok
	}
}

func TestExpandRanksByFrequency(t *testing.T) {
	texts := map[string]string{
		"doc-1": "ranking ranking ranking retrieval model",
		"doc-2": "retrieval retrieval scoring",
	}
	got := Expand([]string{"search"}, []string{"doc-1", "doc-2"}, lookupFrom(texts), 2)
	// ranking appears 3 times, retrieval 3 times; ranking was seen first.
	want := []string{"ranking", "retrieval"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand = %v, want %v", got, want)
	}
}

func TestExpandTiesBreakByFirstAppearance(t *testing.T) {
	texts := map[string]string{
		"doc-1": "zebra apple zebra apple mango",
	}
	got := Expand(nil, []string{"doc-1"}, lookupFrom(texts), 3)
	want := []string{"zebra", "apple", "mango"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand = %v, want %v", got, want)
	}
}

func TestExpandFiltersCandidates(t *testing.T) {
	texts := map[string]string{
		"doc-1": "the and with is go ok searching searching query",
	}
	got := Expand([]string{"query"}, []string{"doc-1"}, lookupFrom(texts), 10)
	// Stop words, short terms (go, ok, is), and the query term itself are
	// all excluded.
	want := []string{"searching"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand = %v, want %v", got, want)
	}
}

func TestExpandSkipsUnknownDocs(t *testing.T) {
	texts := map[string]string{
		"doc-1": "useful expansion terms",
	}
	got := Expand(nil, []string{"missing", "doc-1"}, lookupFrom(texts), 5)
	want := []string{"useful", "expansion", "terms"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand = %v, want %v", got, want)
	}
}

func TestExpandEdgeCases(t *testing.T) {
	texts := map[string]string{"doc-1": "alpha beta"}
	if got := Expand(nil, nil, lookupFrom(texts), 5); got != nil {
		t.Errorf("Expand with no feedback docs = %v, want nil", got)
	}
	if got := Expand(nil, []string{"doc-1"}, lookupFrom(texts), 0); got != nil {
		t.Errorf("Expand with n=0 = %v, want nil", got)
	}
}

func TestExpandIsDeterministic(t *testing.T) {
	texts := map[string]string{
		"doc-1": "gamma delta gamma epsilon delta zeta",
		"doc-2": "epsilon zeta zeta gamma",
	}
	first := Expand([]string{"seed"}, []string{"doc-1", "doc-2"}, lookupFrom(texts), 3)
	for i := 0; i < 20; i++ {
		again := Expand([]string{"seed"}, []string{"doc-1", "doc-2"}, lookupFrom(texts), 3)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differed: %v vs %v", i, again, first)
		}
	}
}
