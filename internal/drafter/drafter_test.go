package drafter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/XiandaDu/WatAIOliver/internal/capability"
	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type recordingGen struct {
	prompt string
	text   string
	err    error
}

func (g *recordingGen) Generate(_ context.Context, prompt string, _ capability.GenerateParams) (string, error) {
	g.prompt = prompt
	return g.text, g.err
}

var passages = []engine.RetrievedPassage{
	{Source: "lec01.pdf", Content: "A heap is a complete binary tree.", Score: 0.9},
}

func TestFirstRoundPromptCitesPassages(t *testing.T) {
	gen := &recordingGen{text: "A heap is a complete binary tree [1]."}
	d := New(gen, testLog())

	draft, err := d.Draft(context.Background(), "what is a heap", passages, false, nil, 1, engine.StyleDefault)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if draft.Round != 1 {
		t.Errorf("round = %d, want 1", draft.Round)
	}
	if !strings.Contains(gen.prompt, "lec01.pdf") {
		t.Error("prompt must include the passage source")
	}
	if !strings.Contains(gen.prompt, "what is a heap") {
		t.Error("prompt must include the question")
	}
	if strings.Contains(gen.prompt, "previous draft") {
		t.Error("round 1 prompt must not mention a previous draft")
	}
	if draft.Prompt != gen.prompt {
		t.Error("Draft.Prompt must record the prompt actually sent")
	}
}

func TestUngroundedPromptSkipsCitations(t *testing.T) {
	gen := &recordingGen{text: "No course material covers this, but generally..."}
	d := New(gen, testLog())

	_, err := d.Draft(context.Background(), "what is a heap", nil, true, nil, 1, engine.StyleDefault)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if !strings.Contains(gen.prompt, "No course material matched") {
		t.Error("ungrounded prompt must disclose the missing material")
	}
	if strings.Contains(gen.prompt, "Cite the bracketed") {
		t.Error("ungrounded prompt must not demand citations")
	}
}

func TestRevisionPromptEnumeratesFindings(t *testing.T) {
	gen := &recordingGen{text: "revised answer"}
	d := New(gen, testLog())
	prior := &engine.Critique{
		Verdict: engine.VerdictRevise,
		Findings: []engine.Finding{
			{Axis: engine.AxisFactuality, Severity: engine.SeverityHigh, Description: "claim about heap height is wrong"},
			{Axis: engine.AxisGrounding, Severity: engine.SeverityMedium, Description: "no citation for the insertion cost"},
		},
	}

	draft, err := d.Draft(context.Background(), "what is a heap", passages, false, prior, 2, engine.StyleDefault)
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if draft.Round != 2 {
		t.Errorf("round = %d, want 2", draft.Round)
	}
	for _, want := range []string{"claim about heap height is wrong", "no citation for the insertion cost"} {
		if !strings.Contains(gen.prompt, want) {
			t.Errorf("prompt missing prior finding %q", want)
		}
	}
}

func TestStyleHintChangesInstruction(t *testing.T) {
	gen := &recordingGen{text: "answer"}
	d := New(gen, testLog())

	if _, err := d.Draft(context.Background(), "q", passages, false, nil, 1, engine.StyleSimplify); err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if !strings.Contains(gen.prompt, "plain language") {
		t.Error("simplify hint must change the instruction")
	}

	if _, err := d.Draft(context.Background(), "q", passages, false, nil, 1, engine.StyleDeepen); err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if !strings.Contains(gen.prompt, "derivations") {
		t.Error("deepen hint must change the instruction")
	}
}

func TestGeneratorErrorPropagates(t *testing.T) {
	gen := &recordingGen{err: errors.New("backend down")}
	d := New(gen, testLog())

	_, err := d.Draft(context.Background(), "q", passages, false, nil, 1, engine.StyleDefault)
	if err == nil {
		t.Fatal("want error from failing generator")
	}
	if !strings.Contains(err.Error(), "backend down") {
		t.Errorf("err = %v, want wrapped generator error", err)
	}
}

func TestEmptyCompletionIsAnError(t *testing.T) {
	gen := &recordingGen{text: "   \n"}
	d := New(gen, testLog())

	if _, err := d.Draft(context.Background(), "q", passages, false, nil, 1, engine.StyleDefault); err == nil {
		t.Fatal("want error for empty completion")
	}
}
