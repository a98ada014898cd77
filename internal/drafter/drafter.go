// Package drafter turns a query, its supporting passages, and the prior
// round's critique into the next candidate answer.
package drafter

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/XiandaDu/WatAIOliver/internal/capability"
	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

// Drafter generates candidate answers through the inference capability.
type Drafter struct {
	gen capability.Generator
	log *logrus.Entry
}

func New(gen capability.Generator, log *logrus.Entry) *Drafter {
	return &Drafter{gen: gen, log: log}
}

// Draft produces the candidate for one round. prior is nil on round 1; on
// revision rounds each prior finding is enumerated so the model must address
// it rather than restate the last draft.
func (d *Drafter) Draft(ctx context.Context, query string, passages []engine.RetrievedPassage, ungrounded bool, prior *engine.Critique, round int, style engine.StyleHint) (engine.Draft, error) {
	prompt := buildPrompt(query, passages, ungrounded, prior, round, style)

	temp := 0.3
	if round > 1 {
		// Revisions should explore less, not more.
		temp = 0.2
	}
	content, err := d.gen.Generate(ctx, prompt, capability.GenerateParams{Temperature: temp, MaxTokens: 900})
	if err != nil {
		return engine.Draft{}, fmt.Errorf("draft round %d: %w", round, err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return engine.Draft{}, fmt.Errorf("draft round %d: empty completion", round)
	}

	return engine.Draft{Round: round, Content: content, Prompt: prompt}, nil
}

// #region prompt

func buildPrompt(query string, passages []engine.RetrievedPassage, ungrounded bool, prior *engine.Critique, round int, style engine.StyleHint) string {
	var b strings.Builder
	b.WriteString("You are a course teaching assistant. Answer the student's question using only the course material below.\n")
	b.WriteString(styleInstruction(style))

	if ungrounded {
		b.WriteString("\nNo course material matched this question. Say so explicitly, then answer from general knowledge, clearly marked as such.\n")
	} else {
		b.WriteString("\nCourse material:\n")
		for i, p := range passages {
			fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, p.Source, p.Content)
		}
		b.WriteString("\nCite the bracketed passage numbers for every claim you make.\n")
	}

	if prior != nil && round > 1 {
		b.WriteString("\nYour previous draft was reviewed. You MUST fix every issue below; do not repeat the rejected text:\n")
		for _, f := range prior.Findings {
			fmt.Fprintf(&b, "- [%s/%s] %s\n", f.Axis, f.Severity, f.Description)
		}
		if prior.Note != "" {
			fmt.Fprintf(&b, "Reviewer note: %s\n", prior.Note)
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n", query)
	return b.String()
}

func styleInstruction(style engine.StyleHint) string {
	switch style {
	case engine.StyleSimplify:
		return "The student has struggled with this topic. Use plain language, short sentences, and one worked example.\n"
	case engine.StyleDeepen:
		return "The student wants depth. Include derivations, edge cases, and pointers to further material.\n"
	case engine.StyleCooldown:
		return "The student seems frustrated. Be brief, warm, and concrete; skip caveats.\n"
	default:
		return ""
	}
}

// #endregion prompt
