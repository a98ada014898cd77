// Package retriever performs the single evidence pass that opens every
// deliberation: speculative query reframing followed by a parallel fan-out
// search whose merged, deduplicated results are fixed for the turn.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/XiandaDu/WatAIOliver/internal/capability"
	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

// #region retriever

// Retriever fans a query (plus generated reframings) out over the search
// capability and merges the results into one ranked passage set.
type Retriever struct {
	search       capability.Searcher
	gen          capability.Generator // nil disables reframing
	reframeCount int
	log          *logrus.Entry
}

// New builds a Retriever. gen may be nil, in which case only the learner's
// original phrasing is searched.
func New(search capability.Searcher, gen capability.Generator, reframeCount int, log *logrus.Entry) *Retriever {
	return &Retriever{
		search:       search,
		gen:          gen,
		reframeCount: reframeCount,
		log:          log,
	}
}

// Retrieve runs the full pass. The original query's search failing is fatal;
// a reframed variant failing only loses that variant's passages. k bounds the
// merged result set, not the per-variant fetch.
func (r *Retriever) Retrieve(ctx context.Context, query, courseScope string, k int) (engine.RetrievalResult, error) {
	reframes := r.reframe(ctx, query)

	type variantResult struct {
		method  string
		results []capability.SearchResult
		err     error
	}

	variants := make([]string, 0, len(reframes)+1)
	variants = append(variants, query)
	variants = append(variants, reframes...)

	out := make([]variantResult, len(variants))
	var wg sync.WaitGroup
	for i, v := range variants {
		wg.Add(1)
		go func(i int, v string) {
			defer wg.Done()
			method := "reframed"
			if i == 0 {
				method = "direct"
			}
			results, err := r.search.Search(ctx, v, courseScope, k)
			out[i] = variantResult{method: method, results: results, err: err}
		}(i, v)
	}
	wg.Wait()

	if out[0].err != nil {
		return engine.RetrievalResult{}, fmt.Errorf("search %q: %w", query, out[0].err)
	}

	// Dedupe on content, not source: a chunked corpus yields many distinct
	// passages per document, and different query variants surface the same
	// chunk with slightly different text.
	merged := make([]engine.RetrievedPassage, 0, k)
	for _, vr := range out {
		if vr.err != nil {
			r.log.WithError(vr.err).Warn("reframed search variant dropped")
			continue
		}
		for _, sr := range vr.results {
			if idx, dup := duplicateOf(merged, sr.Content); dup {
				// Keep the better-scored surfacing of the same chunk.
				if sr.Score > merged[idx].Score {
					merged[idx] = engine.RetrievedPassage{
						Source:  sr.Source,
						Content: sr.Content,
						Score:   sr.Score,
						Method:  vr.method,
					}
				}
				continue
			}
			merged = append(merged, engine.RetrievedPassage{
				Source:  sr.Source,
				Content: sr.Content,
				Score:   sr.Score,
				Method:  vr.method,
			})
		}
	}

	// Rank score-descending with source as the tiebreak so repeated runs
	// over the same corpus produce the same ordering.
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Source < merged[j].Source
	})
	if len(merged) > k {
		merged = merged[:k]
	}

	return engine.RetrievalResult{
		Passages:   merged,
		Reframes:   reframes,
		Ungrounded: len(merged) == 0,
	}, nil
}

// #endregion retriever

// #region dedupe

// dupThreshold is the word-overlap fraction above which two passages count
// as the same chunk.
const dupThreshold = 0.7

// duplicateOf finds an already-merged passage whose content overlaps the
// candidate's beyond dupThreshold.
func duplicateOf(merged []engine.RetrievedPassage, content string) (int, bool) {
	words := wordSet(content)
	for i := range merged {
		if wordOverlap(words, wordSet(merged[i].Content)) > dupThreshold {
			return i, true
		}
	}
	return -1, false
}

// wordOverlap is the intersection size relative to the smaller set, so a
// chunk fully contained in a longer one still registers as a duplicate.
func wordOverlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(inter) / float64(smaller)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// #endregion dedupe

// #region reframing

// reframe asks the inference capability for alternative phrasings of the
// query. Any failure degrades to direct-only search; it never fails the turn.
func (r *Retriever) reframe(ctx context.Context, query string) []string {
	if r.gen == nil || r.reframeCount <= 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rephrase the following student question %d different ways to improve document retrieval. ", r.reframeCount)
	b.WriteString("Reply with one rephrasing per line and nothing else.\n\nQuestion: ")
	b.WriteString(query)

	text, err := r.gen.Generate(ctx, b.String(), capability.GenerateParams{Temperature: 0.7, MaxTokens: 200})
	if err != nil {
		r.log.WithError(err).Warn("query reframing unavailable, searching direct only")
		return nil
	}

	var reframes []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "0123456789.-) "))
		if line == "" || strings.EqualFold(line, query) {
			continue
		}
		reframes = append(reframes, line)
		if len(reframes) == r.reframeCount {
			break
		}
	}
	return reframes
}

// #endregion reframing
