// Package reporter synthesizes the deliberation's final answer. It never
// calls outward: everything it needs is already in the round log, so a
// reporter failure cannot sink a turn that deliberation finished.
package reporter

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

type Reporter struct {
	log *logrus.Entry
}

func New(log *logrus.Entry) *Reporter {
	return &Reporter{log: log}
}

// Synthesize turns the round log into the learner-facing response. Converged
// debates pass the accepted draft through nearly untouched; forced and
// aborted endings get an explicit caveat and a softened confidence.
func (r *Reporter) Synthesize(state engine.DeliberationState, rounds []engine.Round, style engine.StyleHint) engine.FinalResponse {
	if len(rounds) == 0 {
		return engine.FinalResponse{
			Answer:     "I was unable to produce an answer for this question. Please try rephrasing it.",
			Confidence: 0,
			Degraded:   true,
		}
	}

	best := bestRound(rounds)
	confidence := best.Critique.Aggregate()

	switch state {
	case engine.StateConverged:
		last := rounds[len(rounds)-1]
		return engine.FinalResponse{
			Answer:     applyStyleClose(last.Draft.Content, style),
			Round:      last.Index,
			Confidence: last.Critique.Aggregate(),
		}

	case engine.StateForcedFinalize:
		var b strings.Builder
		b.WriteString(best.Draft.Content)
		if caveat := unresolvedCaveat(best.Critique); caveat != "" {
			b.WriteString("\n\n")
			b.WriteString(caveat)
		}
		return engine.FinalResponse{
			Answer:     applyStyleClose(b.String(), style),
			Round:      best.Index,
			Confidence: confidence * 0.8,
			Degraded:   true,
		}

	case engine.StateAborted:
		var b strings.Builder
		b.WriteString("I ran into a problem while checking this answer, so treat it as a best effort:\n\n")
		b.WriteString(best.Draft.Content)
		return engine.FinalResponse{
			Answer:     b.String(),
			Round:      best.Index,
			Confidence: confidence * 0.5,
			Degraded:   true,
		}
	}

	r.log.WithField("state", state).Warn("synthesize called in non-terminal state")
	last := rounds[len(rounds)-1]
	return engine.FinalResponse{
		Answer:     last.Draft.Content,
		Round:      last.Index,
		Confidence: confidence,
		Degraded:   true,
	}
}

// #region helpers

// bestRound picks the round whose critique scored highest, preferring later
// rounds on ties since revisions address earlier findings.
func bestRound(rounds []engine.Round) engine.Round {
	best := rounds[0]
	for _, rd := range rounds[1:] {
		if rd.Critique.Aggregate() >= best.Critique.Aggregate() {
			best = rd
		}
	}
	return best
}

// unresolvedCaveat summarizes the findings still open when deliberation was
// cut off. Low-severity findings are not worth alarming the learner over.
func unresolvedCaveat(crit engine.Critique) string {
	var open []string
	for _, f := range crit.Findings {
		if f.Severity == engine.SeverityLow {
			continue
		}
		open = append(open, fmt.Sprintf("%s (%s)", f.Description, f.Severity))
	}
	if len(open) == 0 {
		return ""
	}
	return "Note: review time ran out before these points were fully verified:\n- " + strings.Join(open, "\n- ")
}

func applyStyleClose(answer string, style engine.StyleHint) string {
	switch style {
	case engine.StyleSimplify:
		return answer + "\n\nIf any step above is unclear, ask me to walk through it again more slowly."
	case engine.StyleDeepen:
		return answer + "\n\nHappy to go deeper into any part of this."
	case engine.StyleCooldown:
		return answer + "\n\nYou're closer than it feels. Take it one step at a time."
	default:
		return answer
	}
}

// #endregion helpers
