package tutor

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

func testTutor() *Tutor {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return New(logrus.NewEntry(l))
}

func turns(queries ...string) []*engine.Turn {
	out := make([]*engine.Turn, len(queries))
	for i, q := range queries {
		out[i] = &engine.Turn{Query: q}
	}
	return out
}

func TestDefaultStyleForFreshQuestion(t *testing.T) {
	action := testTutor().FollowUp(turns("what is a red-black tree"), "how does quicksort partition work")
	if action.Style != engine.StyleDefault {
		t.Errorf("style = %s, want default", action.Style)
	}
}

func TestExplicitSimplifyRequest(t *testing.T) {
	action := testTutor().FollowUp(nil, "can you explain that in plain english, I don't understand")
	if action.Style != engine.StyleSimplify {
		t.Errorf("style = %s, want simplify", action.Style)
	}
}

func TestExplicitDeepenRequest(t *testing.T) {
	action := testTutor().FollowUp(nil, "can you prove that bound with a full derivation")
	if action.Style != engine.StyleDeepen {
		t.Errorf("style = %s, want deepen", action.Style)
	}
}

func TestFrustrationTriggersCooldown(t *testing.T) {
	action := testTutor().FollowUp(nil, "this makes no sense at all")
	if action.Style != engine.StyleCooldown {
		t.Errorf("style = %s, want cooldown", action.Style)
	}
	if action.Message == "" {
		t.Error("cooldown should carry a message for the audit log")
	}
}

func TestRepeatedQuestionTriggersSimplify(t *testing.T) {
	history := turns(
		"how does gradient descent converge",
		"how does gradient descent converge",
	)
	action := testTutor().FollowUp(history, "how does gradient descent converge")
	if action.Style != engine.StyleSimplify {
		t.Errorf("style = %s, want simplify on the third near-identical ask", action.Style)
	}
}

func TestTwoAsksAreNotEnough(t *testing.T) {
	history := turns("how does gradient descent converge")
	action := testTutor().FollowUp(history, "how does gradient descent converge")
	if action.Style != engine.StyleDefault {
		t.Errorf("style = %s, want default on only the second ask", action.Style)
	}
}

func TestRepeatRunMustBeConsecutive(t *testing.T) {
	history := turns(
		"how does gradient descent converge",
		"what is a convex function",
		"how does gradient descent converge",
	)
	action := testTutor().FollowUp(history, "how does gradient descent converge")
	if action.Style != engine.StyleDefault {
		t.Errorf("style = %s, want default when the run was interrupted", action.Style)
	}
}

func TestExplicitRequestWinsOverRepeats(t *testing.T) {
	history := turns(
		"how does gradient descent converge, rigorous please",
		"how does gradient descent converge, rigorous please",
	)
	action := testTutor().FollowUp(history, "how does gradient descent converge, rigorous please")
	if action.Style != engine.StyleDeepen {
		t.Errorf("style = %s, want the explicit deepen request to win", action.Style)
	}
}
