package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/XiandaDu/WatAIOliver/internal/config"
	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string          `json:"description"`
	Config      FixtureConfig   `json:"config"`
	Turns       []FixtureTurn   `json:"turns"`
}

// FixtureConfig mirrors the deliberation knobs the moderator reads.
type FixtureConfig struct {
	MaxRounds       int     `json:"max_rounds"`
	AcceptThreshold float64 `json:"accept_threshold"`
	RejectThreshold float64 `json:"reject_threshold"`
	StagnationDelta float64 `json:"stagnation_delta"`
	TurnBudgetMS    int64   `json:"turn_budget_ms"`
}

// FixtureTurn is one recorded deliberation: its rounds as the critic scored
// them, plus the decision the moderator made at each round.
type FixtureTurn struct {
	TurnID string         `json:"turn_id"`
	Rounds []FixtureRound `json:"rounds"`
}

// FixtureRound carries the critique inputs and the recorded decision.
type FixtureRound struct {
	Index       int     `json:"index"`
	Verdict     string  `json:"verdict"`
	Consistency float64 `json:"consistency"`
	Factuality  float64 `json:"factuality"`
	Grounding   float64 `json:"grounding"`
	ElapsedMS   int64   `json:"elapsed_ms"` // wall clock at decision time

	ExpectedAction string `json:"expected_action"`
	ExpectedState  string `json:"expected_state"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToDeliberationConfig converts fixture knobs to the domain config.
func (fc *FixtureConfig) ToDeliberationConfig() config.DeliberationConfig {
	return config.DeliberationConfig{
		MaxRounds:       fc.MaxRounds,
		AcceptThreshold: fc.AcceptThreshold,
		RejectThreshold: fc.RejectThreshold,
		StagnationDelta: fc.StagnationDelta,
		TurnBudget:      time.Duration(fc.TurnBudgetMS) * time.Millisecond,
	}
}

// ToRound converts a fixture round to the domain round the moderator sees.
func (fr *FixtureRound) ToRound() engine.Round {
	return engine.Round{
		Index: fr.Index,
		Critique: engine.Critique{
			Consistency: fr.Consistency,
			Factuality:  fr.Factuality,
			Grounding:   fr.Grounding,
			Verdict:     engine.Verdict(fr.Verdict),
		},
	}
}

// ToRecordedTurn converts a fixture turn to the harness input.
func (ft *FixtureTurn) ToRecordedTurn() RecordedTurn {
	rt := RecordedTurn{TurnID: ft.TurnID}
	for _, fr := range ft.Rounds {
		rt.Rounds = append(rt.Rounds, RecordedRound{
			Round:   fr.ToRound(),
			Elapsed: time.Duration(fr.ElapsedMS) * time.Millisecond,
			Expected: engine.Decision{
				Action: engine.DecisionAction(fr.ExpectedAction),
				State:  engine.DeliberationState(fr.ExpectedState),
			},
		})
	}
	return rt
}

// #endregion fixture-loader
