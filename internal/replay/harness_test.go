package replay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/XiandaDu/WatAIOliver/internal/config"
	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

func replayConfig() config.DeliberationConfig {
	return config.DeliberationConfig{
		MaxRounds:       3,
		AcceptThreshold: 0.7,
		RejectThreshold: 0.3,
		StagnationDelta: 0.05,
		TurnBudget:      time.Minute,
	}
}

func recorded(idx int, verdict engine.Verdict, agg float64, action engine.DecisionAction, state engine.DeliberationState) RecordedRound {
	return RecordedRound{
		Round: engine.Round{
			Index:    idx,
			Critique: engine.Critique{Consistency: agg, Factuality: agg, Grounding: agg, Verdict: verdict},
		},
		Elapsed:  time.Duration(idx) * time.Second,
		Expected: engine.Decision{Action: action, State: state},
	}
}

func TestReplayMatchesRecordedDecisions(t *testing.T) {
	turns := []RecordedTurn{{
		TurnID: "t1",
		Rounds: []RecordedRound{
			recorded(1, engine.VerdictRevise, 0.40, engine.ActionContinue, engine.StateDeliberating),
			recorded(2, engine.VerdictAccept, 0.90, engine.ActionFinalize, engine.StateConverged),
		},
	}}

	results := Replay(replayConfig(), turns)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, r := range results {
		if r.Diverged {
			t.Errorf("turn %s round %d diverged: got %+v want %+v", r.TurnID, r.Index, r.Got, r.Expected)
		}
	}

	s := Summarize(results)
	if s.Turns != 1 || s.Rounds != 2 || s.Divergences != 0 {
		t.Errorf("summary = %+v", s)
	}
}

func TestReplayDetectsDivergence(t *testing.T) {
	// Recorded as converged, but an accept verdict is absent: the policy
	// will continue instead.
	turns := []RecordedTurn{{
		TurnID: "t1",
		Rounds: []RecordedRound{
			recorded(1, engine.VerdictRevise, 0.40, engine.ActionFinalize, engine.StateConverged),
		},
	}}

	results := Replay(replayConfig(), turns)
	if !results[0].Diverged {
		t.Fatal("expected divergence")
	}
	if Summarize(results).Divergences != 1 {
		t.Errorf("summary = %+v, want one divergence", Summarize(results))
	}
}

func TestReplayForcedFinalizeAtBudget(t *testing.T) {
	turns := []RecordedTurn{{
		TurnID: "t1",
		Rounds: []RecordedRound{
			recorded(1, engine.VerdictRevise, 0.40, engine.ActionContinue, engine.StateDeliberating),
			recorded(2, engine.VerdictRevise, 0.55, engine.ActionContinue, engine.StateDeliberating),
			recorded(3, engine.VerdictRevise, 0.65, engine.ActionFinalize, engine.StateForcedFinalize),
		},
	}}

	results := Replay(replayConfig(), turns)
	for _, r := range results {
		if r.Diverged {
			t.Errorf("round %d diverged: got %+v want %+v", r.Index, r.Got, r.Expected)
		}
	}
}

func TestFixtureRoundTrip(t *testing.T) {
	raw := `{
	  "description": "two-round convergence",
	  "config": {
	    "max_rounds": 3,
	    "accept_threshold": 0.7,
	    "reject_threshold": 0.3,
	    "stagnation_delta": 0.05,
	    "turn_budget_ms": 60000
	  },
	  "turns": [{
	    "turn_id": "t1",
	    "rounds": [
	      {"index": 1, "verdict": "revise", "consistency": 0.4, "factuality": 0.4, "grounding": 0.4,
	       "elapsed_ms": 1000, "expected_action": "continue", "expected_state": "deliberating"},
	      {"index": 2, "verdict": "accept", "consistency": 0.9, "factuality": 0.9, "grounding": 0.9,
	       "elapsed_ms": 2000, "expected_action": "finalize", "expected_state": "converged"}
	    ]
	  }]
	}`
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if f.Description != "two-round convergence" {
		t.Errorf("description = %q", f.Description)
	}

	cfg := f.Config.ToDeliberationConfig()
	if cfg.TurnBudget != time.Minute {
		t.Errorf("turn budget = %v, want 1m", cfg.TurnBudget)
	}

	turns := make([]RecordedTurn, 0, len(f.Turns))
	for _, ft := range f.Turns {
		turns = append(turns, ft.ToRecordedTurn())
	}
	results := Replay(cfg, turns)
	if Summarize(results).Divergences != 0 {
		t.Errorf("results = %+v, want no divergence", results)
	}
}

func TestLoadFixtureMissingFile(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("want error for missing fixture")
	}
}
