// Package tutor watches a session across turns and adapts how the next
// answer is presented. It runs before deliberation starts and never blocks
// it: a style hint is advice to the drafter and reporter, not a gate.
package tutor

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

// RepeatThreshold is the lexical similarity above which two queries count as
// the same question asked again.
const RepeatThreshold = 0.8

// RepeatLimit is how many near-identical consecutive asks trigger the
// simplified presentation.
const RepeatLimit = 3

type Tutor struct {
	log *logrus.Entry
}

func New(log *logrus.Entry) *Tutor {
	return &Tutor{log: log}
}

// FollowUp inspects the session history and the incoming utterance and
// returns the presentation adjustment for the next turn. Explicit requests
// win over inferred signals.
func (t *Tutor) FollowUp(history []*engine.Turn, newUtterance string) engine.TutorAction {
	lower := strings.ToLower(newUtterance)

	if wantsSimpler(lower) {
		return engine.TutorAction{Style: engine.StyleSimplify}
	}
	if wantsDeeper(lower) {
		return engine.TutorAction{Style: engine.StyleDeepen}
	}
	if soundsFrustrated(lower) {
		return engine.TutorAction{
			Style:   engine.StyleCooldown,
			Message: "learner frustration detected",
		}
	}

	if repeats := consecutiveRepeats(history, newUtterance); repeats+1 >= RepeatLimit {
		t.log.WithField("repeats", repeats).Info("repeated confusion, simplifying")
		return engine.TutorAction{
			Style:   engine.StyleSimplify,
			Message: "same question asked repeatedly; switching to a simpler explanation",
		}
	}

	return engine.TutorAction{Style: engine.StyleDefault}
}

// #region signals

func wantsSimpler(utterance string) bool {
	for _, marker := range []string{"simpler", "simplify", "eli5", "in plain", "don't understand", "do not understand", "still confused"} {
		if strings.Contains(utterance, marker) {
			return true
		}
	}
	return false
}

func wantsDeeper(utterance string) bool {
	for _, marker := range []string{"more detail", "in depth", "deeper", "rigorous", "derivation", "prove", "formally"} {
		if strings.Contains(utterance, marker) {
			return true
		}
	}
	return false
}

func soundsFrustrated(utterance string) bool {
	for _, marker := range []string{"makes no sense", "give up", "frustrated", "this is useless", "so stuck"} {
		if strings.Contains(utterance, marker) {
			return true
		}
	}
	return false
}

// consecutiveRepeats counts how many of the most recent turns asked a
// near-identical question, walking backwards until similarity drops.
func consecutiveRepeats(history []*engine.Turn, utterance string) int {
	count := 0
	for i := len(history) - 1; i >= 0; i-- {
		if similarity(history[i].Query, utterance) < RepeatThreshold {
			break
		}
		count++
	}
	return count
}

// similarity is the Jaccard index over lowercased word sets. Crude, but the
// repeated-confusion signal only needs to catch verbatim and near-verbatim
// re-asks.
func similarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
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

// #endregion signals
