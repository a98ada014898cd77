// Package critic performs evidence-based review of drafts: logical
// consistency, factual grounding against retrieved passages, and
// hallucination risk. Axis scores are computed from deterministic text
// analysis; the generation capability contributes free-text findings and its
// failure degrades the verdict instead of failing the turn.
package critic

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/XiandaDu/WatAIOliver/internal/capability"
	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

// #region critic-struct

// Thresholds drive verdict derivation. Accept requires every axis above
// Accept; any axis below Reject is a hard failure.
type Thresholds struct {
	Accept float64
	Reject float64
}

// Critic scores drafts. gen may be nil; scoring then runs purely on text
// analysis.
type Critic struct {
	gen        capability.Generator
	thresholds Thresholds
	log        *logrus.Entry
}

// New creates a Critic.
func New(gen capability.Generator, thresholds Thresholds, log *logrus.Entry) *Critic {
	return &Critic{gen: gen, thresholds: thresholds, log: log}
}

// #endregion critic-struct

// #region critique

// Critique reviews a draft against its passages. prior carries the previous
// round's critique; revise/reject findings the draft does not address are
// themselves flagged as findings.
func (c *Critic) Critique(ctx context.Context, draft engine.Draft, passages []engine.RetrievedPassage, prior *engine.Critique) engine.Critique {
	sentences := splitSentences(draft.Content)

	var findings []engine.Finding

	factuality, factFindings := c.scoreFactuality(sentences, passages)
	findings = append(findings, factFindings...)

	grounding, halFindings := c.scoreGrounding(sentences, passages)
	findings = append(findings, halFindings...)

	consistency, logicFindings := c.scoreConsistency(draft.Content, sentences, prior)
	findings = append(findings, logicFindings...)

	crit := engine.Critique{
		Consistency: consistency,
		Factuality:  factuality,
		Grounding:   grounding,
		Findings:    findings,
	}
	crit.Verdict = c.verdict(crit)

	// Ask the inference capability for a reviewer's note. Failure here is
	// non-fatal: the round proceeds with a degraded revise verdict.
	if c.gen != nil {
		note, err := c.reviewNote(ctx, draft, passages)
		if err != nil {
			c.log.WithError(err).Warn("critique inference degraded")
			crit.Note = "critique degraded: inference unavailable, insufficient evidence to accept"
			if crit.Verdict == engine.VerdictAccept {
				crit.Verdict = engine.VerdictRevise
			}
		} else if note != "" {
			crit.Findings = append(crit.Findings, engine.Finding{
				Axis:        engine.AxisConsistency,
				Severity:    engine.SeverityLow,
				Description: note,
			})
		}
	}

	return crit
}

// #endregion critique

// #region factuality

// scoreFactuality checks each substantive sentence for support in the
// passages. Unsupported claims lower the score and produce findings.
func (c *Critic) scoreFactuality(sentences []string, passages []engine.RetrievedPassage) (float64, []engine.Finding) {
	if len(sentences) == 0 {
		return 0, []engine.Finding{{
			Axis:        engine.AxisFactuality,
			Severity:    engine.SeverityCritical,
			Description: "draft contains no substantive sentences",
		}}
	}
	if len(passages) == 0 {
		// Ungrounded turn: nothing to verify against. Low, not zero — the
		// drafter was told it is answering from general knowledge.
		return 0.3, []engine.Finding{{
			Axis:        engine.AxisFactuality,
			Severity:    engine.SeverityHigh,
			Description: "no retrieved passages available to verify claims against",
		}}
	}

	var findings []engine.Finding
	total := 0.0
	for _, s := range sentences {
		best := bestSupport(s, passages)
		total += best
		if best < 0.15 {
			findings = append(findings, engine.Finding{
				Axis:        engine.AxisFactuality,
				Severity:    engine.SeverityHigh,
				Description: fmt.Sprintf("claim lacks passage support: %q", truncate(s, 120)),
			})
		}
	}
	score := clamp(total / float64(len(sentences)) * 1.8) // overlap rarely reaches 1; rescale
	return score, findings
}

// #endregion factuality

// #region grounding

// scoreGrounding measures the inverse of hallucination risk: the fraction
// of sentences with a traceable source among the passages.
func (c *Critic) scoreGrounding(sentences []string, passages []engine.RetrievedPassage) (float64, []engine.Finding) {
	if len(sentences) == 0 || len(passages) == 0 {
		return 0.3, nil
	}

	supported := 0
	var worst string
	worstScore := 1.0
	for _, s := range sentences {
		best := bestSupport(s, passages)
		if best >= 0.15 {
			supported++
		} else if best < worstScore {
			worstScore = best
			worst = s
		}
	}

	score := float64(supported) / float64(len(sentences))
	var findings []engine.Finding
	if score < 0.5 && worst != "" {
		findings = append(findings, engine.Finding{
			Axis:        engine.AxisGrounding,
			Severity:    engine.SeverityMedium,
			Description: fmt.Sprintf("content with no traceable source, e.g. %q", truncate(worst, 120)),
		})
	}
	return score, findings
}

// #endregion grounding

// #region consistency

// scoreConsistency checks the draft for internal contradiction, degenerate
// repetition, and unaddressed findings from the prior critique.
func (c *Critic) scoreConsistency(content string, sentences []string, prior *engine.Critique) (float64, []engine.Finding) {
	score := 1.0
	var findings []engine.Finding

	if hasRepetition(sentences) {
		score -= 0.4
		findings = append(findings, engine.Finding{
			Axis:        engine.AxisConsistency,
			Severity:    engine.SeverityHigh,
			Description: "draft repeats the same sentence three or more times",
		})
	}

	if a, b, ok := findContradiction(sentences); ok {
		score -= 0.5
		findings = append(findings, engine.Finding{
			Axis:        engine.AxisConsistency,
			Severity:    engine.SeverityCritical,
			Description: fmt.Sprintf("internal contradiction between %q and %q", truncate(a, 80), truncate(b, 80)),
		})
	}

	// A revision that ignores the findings it was asked to fix is a policy
	// violation.
	if prior != nil {
		lower := strings.ToLower(content)
		for _, f := range prior.Findings {
			if f.Severity == engine.SeverityLow {
				continue
			}
			if !mentionsAny(lower, contentWords(f.Description)) {
				score -= 0.25
				findings = append(findings, engine.Finding{
					Axis:        engine.AxisConsistency,
					Severity:    engine.SeverityHigh,
					Description: fmt.Sprintf("prior finding not addressed: %s", truncate(f.Description, 120)),
				})
			}
		}
	}

	return clamp(score), findings
}

// #endregion consistency

// #region verdict

func (c *Critic) verdict(crit engine.Critique) engine.Verdict {
	scores := []float64{crit.Consistency, crit.Factuality, crit.Grounding}

	allAbove := true
	for _, s := range scores {
		if s < c.thresholds.Reject {
			return engine.VerdictReject
		}
		if s <= c.thresholds.Accept {
			allAbove = false
		}
	}
	if allAbove {
		return engine.VerdictAccept
	}
	return engine.VerdictRevise
}

// #endregion verdict

// #region review-note

func (c *Critic) reviewNote(ctx context.Context, draft engine.Draft, passages []engine.RetrievedPassage) (string, error) {
	var b strings.Builder
	b.WriteString("You are a rigorous academic fact-checker. Identify problems in the draft; do not provide corrections.\n\nDraft:\n")
	b.WriteString(draft.Content)
	b.WriteString("\n\nSupporting passages:\n")
	for _, p := range passages {
		b.WriteString("- ")
		b.WriteString(truncate(p.Content, 300))
		b.WriteString("\n")
	}
	b.WriteString("\nReply with one short paragraph of review notes, or NO_ISSUES.")

	text, err := c.gen.Generate(ctx, b.String(), capability.GenerateParams{Temperature: 0.1, MaxTokens: 300})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "NO_ISSUES") {
		return "", nil
	}
	return text, nil
}

// #endregion review-note
