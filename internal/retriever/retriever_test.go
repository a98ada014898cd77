package retriever

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/XiandaDu/WatAIOliver/internal/capability"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// fakeSearcher returns canned results keyed by query substring.
type fakeSearcher struct {
	mu      sync.Mutex
	byQuery map[string][]capability.SearchResult
	errFor  map[string]error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query, _ string, _ int) ([]capability.SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if err, ok := f.errFor[query]; ok {
		return nil, err
	}
	return f.byQuery[query], nil
}

type fixedGen struct {
	text string
	err  error
}

func (g *fixedGen) Generate(_ context.Context, _ string, _ capability.GenerateParams) (string, error) {
	return g.text, g.err
}

func TestDirectOnlyWithoutGenerator(t *testing.T) {
	search := &fakeSearcher{byQuery: map[string][]capability.SearchResult{
		"what is backprop": {
			{Source: "lec07.pdf", Content: "backpropagation computes gradients", Score: 0.9},
		},
	}}
	r := New(search, nil, 3, testLog())

	res, err := r.Retrieve(context.Background(), "what is backprop", "cs480", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Reframes) != 0 {
		t.Errorf("reframes = %v, want none without a generator", res.Reframes)
	}
	if len(res.Passages) != 1 || res.Passages[0].Method != "direct" {
		t.Errorf("passages = %+v, want one direct passage", res.Passages)
	}
	if res.Ungrounded {
		t.Error("Ungrounded must be false when passages exist")
	}
}

func TestReframesFanOutAndMerge(t *testing.T) {
	search := &fakeSearcher{byQuery: map[string][]capability.SearchResult{
		"what is backprop": {
			{Source: "lec07.pdf", Content: "backpropagation computes gradients using the chain rule", Score: 0.9},
		},
		"how does backpropagation work": {
			// Same chunk surfaced again with near-identical text.
			{Source: "lec07.pdf", Content: "backpropagation computes gradients via the chain rule", Score: 0.95},
			{Source: "notes03.md", Content: "loss surfaces and optimization landscapes", Score: 0.6},
		},
		"explain the backward pass": {
			{Source: "assn2.pdf", Content: "implement the backward pass for a two layer network", Score: 0.7},
		},
	}}
	gen := &fixedGen{text: "how does backpropagation work\nexplain the backward pass"}
	r := New(search, gen, 3, testLog())

	res, err := r.Retrieve(context.Background(), "what is backprop", "cs480", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Reframes) != 2 {
		t.Fatalf("reframes = %v, want 2", res.Reframes)
	}
	if len(res.Passages) != 3 {
		t.Fatalf("passages = %d, want 3 after dedupe: %+v", len(res.Passages), res.Passages)
	}
	// The duplicated chunk keeps its higher-scored surfacing, ranking by score.
	if res.Passages[0].Source != "lec07.pdf" || res.Passages[0].Score != 0.95 {
		t.Errorf("top passage = %+v, want lec07.pdf at 0.95", res.Passages[0])
	}
	if res.Passages[1].Source != "assn2.pdf" {
		t.Errorf("second passage = %+v, want assn2.pdf", res.Passages[1])
	}
}

func TestDistinctChunksOfOneSourceBothKept(t *testing.T) {
	search := &fakeSearcher{byQuery: map[string][]capability.SearchResult{
		"how do heaps work": {
			{Source: "lec3.pdf", Content: "A heap is a complete binary tree.", Score: 0.9},
			{Source: "lec3.pdf", Content: "Insertion into a heap costs O(log n) sift-up swaps.", Score: 0.8},
		},
	}}
	r := New(search, nil, 0, testLog())

	res, err := r.Retrieve(context.Background(), "how do heaps work", "cs240", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Passages) != 2 {
		t.Fatalf("passages = %d, want both chunks of lec3.pdf: %+v", len(res.Passages), res.Passages)
	}
	for _, p := range res.Passages {
		if p.Source != "lec3.pdf" {
			t.Errorf("source = %s, want lec3.pdf", p.Source)
		}
	}
	if res.Passages[0].Content == res.Passages[1].Content {
		t.Error("distinct chunks must survive the merge")
	}
}

func TestKBoundsMergedSet(t *testing.T) {
	search := &fakeSearcher{byQuery: map[string][]capability.SearchResult{
		"q": {
			{Source: "a.pdf", Content: "a", Score: 0.5},
			{Source: "b.pdf", Content: "b", Score: 0.9},
			{Source: "c.pdf", Content: "c", Score: 0.7},
		},
	}}
	r := New(search, nil, 0, testLog())

	res, err := r.Retrieve(context.Background(), "q", "cs480", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Passages) != 2 {
		t.Fatalf("passages = %d, want 2", len(res.Passages))
	}
	if res.Passages[0].Source != "b.pdf" || res.Passages[1].Source != "c.pdf" {
		t.Errorf("ranking wrong: %+v", res.Passages)
	}
}

func TestReframeFailureDegradesToDirect(t *testing.T) {
	search := &fakeSearcher{byQuery: map[string][]capability.SearchResult{
		"q": {{Source: "a.pdf", Content: "a", Score: 0.5}},
	}}
	gen := &fixedGen{err: errors.New("backend down")}
	r := New(search, gen, 3, testLog())

	res, err := r.Retrieve(context.Background(), "q", "cs480", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Reframes) != 0 {
		t.Errorf("reframes = %v, want none after generator failure", res.Reframes)
	}
	if len(res.Passages) != 1 {
		t.Errorf("passages = %d, want the direct result", len(res.Passages))
	}
}

func TestDirectSearchFailureIsFatal(t *testing.T) {
	search := &fakeSearcher{errFor: map[string]error{"q": errors.New("search exploded")}}
	r := New(search, nil, 0, testLog())

	_, err := r.Retrieve(context.Background(), "q", "cs480", 10)
	if err == nil {
		t.Fatal("want error when the direct search fails")
	}
	if !strings.Contains(err.Error(), "search exploded") {
		t.Errorf("err = %v, want wrapped search error", err)
	}
}

func TestReframedVariantFailureDropsVariantOnly(t *testing.T) {
	search := &fakeSearcher{
		byQuery: map[string][]capability.SearchResult{
			"q": {{Source: "a.pdf", Content: "a", Score: 0.5}},
		},
		errFor: map[string]error{"alt phrasing": errors.New("variant failed")},
	}
	gen := &fixedGen{text: "alt phrasing"}
	r := New(search, gen, 1, testLog())

	res, err := r.Retrieve(context.Background(), "q", "cs480", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Passages) != 1 || res.Passages[0].Source != "a.pdf" {
		t.Errorf("passages = %+v, want only the surviving direct result", res.Passages)
	}
}

func TestEmptyResultsSetUngrounded(t *testing.T) {
	search := &fakeSearcher{byQuery: map[string][]capability.SearchResult{}}
	r := New(search, nil, 0, testLog())

	res, err := r.Retrieve(context.Background(), "q", "cs480", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.Ungrounded {
		t.Error("Ungrounded must be true when nothing was found")
	}
	if len(res.Passages) != 0 {
		t.Errorf("passages = %+v, want none", res.Passages)
	}
}

func TestNumberedReframeLinesAreCleaned(t *testing.T) {
	search := &fakeSearcher{byQuery: map[string][]capability.SearchResult{}}
	gen := &fixedGen{text: "1. first variant\n2) second variant\n- third variant\n\nfourth variant"}
	r := New(search, gen, 3, testLog())

	res, err := r.Retrieve(context.Background(), "q", "cs480", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	want := []string{"first variant", "second variant", "third variant"}
	if len(res.Reframes) != len(want) {
		t.Fatalf("reframes = %v, want %v", res.Reframes, want)
	}
	for i := range want {
		if res.Reframes[i] != want[i] {
			t.Errorf("reframes[%d] = %q, want %q", i, res.Reframes[i], want[i])
		}
	}
}
