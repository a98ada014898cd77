package critic

import (
	"strings"

	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

// #region sentence-split

// splitSentences returns substantive sentences (5+ words).
func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if len(strings.Fields(s)) >= 5 {
			out = append(out, s)
		}
	}
	return out
}

// #endregion sentence-split

// #region stopwords

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"of": true, "to": true, "in": true, "on": true, "for": true, "with": true,
	"that": true, "this": true, "these": true, "those": true, "it": true,
	"as": true, "at": true, "by": true, "from": true, "not": true, "can": true,
	"will": true, "which": true, "their": true, "its": true, "such": true,
}

// contentWords returns lowercase non-stopword tokens of 4+ characters.
func contentWords(text string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, `.,;:!?"'()[]`)
		if len(w) >= 4 && !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

// #endregion stopwords

// #region support

// bestSupport returns the highest content-word overlap between the sentence
// and any single passage, in [0,1].
func bestSupport(sentence string, passages []engine.RetrievedPassage) float64 {
	words := contentWords(sentence)
	if len(words) == 0 {
		return 1 // nothing factual to support
	}

	best := 0.0
	for _, p := range passages {
		passageWords := make(map[string]bool)
		for _, w := range contentWords(p.Content) {
			passageWords[w] = true
		}
		matched := 0
		for _, w := range words {
			if passageWords[w] {
				matched++
			}
		}
		if overlap := float64(matched) / float64(len(words)); overlap > best {
			best = overlap
		}
	}
	return best
}

// #endregion support

// #region repetition

// hasRepetition detects three or more identical substantive sentences.
func hasRepetition(sentences []string) bool {
	if len(sentences) < 3 {
		return false
	}
	counts := make(map[string]int)
	for _, s := range sentences {
		key := strings.ToLower(strings.TrimSpace(s))
		if len(key) > 10 {
			counts[key]++
			if counts[key] >= 3 {
				return true
			}
		}
	}
	return false
}

// #endregion repetition

// #region contradiction

// findContradiction looks for a sentence pair where one is the direct
// negation of the other ("X is Y" vs "X is not Y"). Crude, but catches the
// degenerate self-contradictions drafts actually produce.
func findContradiction(sentences []string) (string, string, bool) {
	normalized := make([]string, len(sentences))
	for i, s := range sentences {
		normalized[i] = " " + strings.Join(strings.Fields(strings.ToLower(s)), " ") + " "
	}

	negations := []string{" not ", " never ", " no longer "}
	for i := range normalized {
		for j := range normalized {
			if i == j {
				continue
			}
			for _, neg := range negations {
				if !strings.Contains(normalized[i], neg) {
					continue
				}
				stripped := strings.Replace(normalized[i], neg, " ", 1)
				stripped = " " + strings.Join(strings.Fields(stripped), " ") + " "
				if stripped == normalized[j] {
					return sentences[j], sentences[i], true
				}
			}
		}
	}
	return "", "", false
}

// #endregion contradiction

// #region helpers

// mentionsAny reports whether lower contains any of the given words.
func mentionsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
