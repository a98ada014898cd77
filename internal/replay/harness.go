// Package replay re-runs the moderator's convergence policy over recorded
// rounds and reports any decision that no longer matches the audit log. The
// policy is a pure function of round history and elapsed time, so replay
// needs no capabilities and runs entirely in-memory.
package replay

import (
	"time"

	"github.com/XiandaDu/WatAIOliver/internal/config"
	"github.com/XiandaDu/WatAIOliver/internal/engine"
	"github.com/XiandaDu/WatAIOliver/internal/moderator"
)

// #region types

// RecordedRound is one round as recorded: the critique the moderator ruled
// on, the wall clock at decision time, and the decision it made.
type RecordedRound struct {
	Round    engine.Round
	Elapsed  time.Duration
	Expected engine.Decision
}

// RecordedTurn is one deliberation's full round sequence.
type RecordedTurn struct {
	TurnID string
	Rounds []RecordedRound
}

// RoundResult is the replay outcome for one round.
type RoundResult struct {
	TurnID   string
	Index    int
	Got      engine.Decision
	Expected engine.Decision
	Diverged bool
}

// Summary aggregates a replay run.
type Summary struct {
	Turns       int
	Rounds      int
	Divergences int
}

// #endregion types

// #region replay

// Replay re-runs the moderator over every recorded turn. For each round the
// moderator sees exactly the prefix of rounds the original run had seen.
func Replay(cfg config.DeliberationConfig, turns []RecordedTurn) []RoundResult {
	mod := moderator.New(cfg)
	var results []RoundResult

	for _, turn := range turns {
		prefix := make([]engine.Round, 0, len(turn.Rounds))
		for _, rec := range turn.Rounds {
			prefix = append(prefix, rec.Round)
			got := mod.Decide(prefix, rec.Elapsed)

			diverged := got.Action != rec.Expected.Action || got.State != rec.Expected.State
			results = append(results, RoundResult{
				TurnID:   turn.TurnID,
				Index:    rec.Round.Index,
				Got:      got,
				Expected: rec.Expected,
				Diverged: diverged,
			})
		}
	}
	return results
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []RoundResult) Summary {
	s := Summary{}
	seen := make(map[string]bool)
	for _, r := range results {
		if !seen[r.TurnID] {
			seen[r.TurnID] = true
			s.Turns++
		}
		s.Rounds++
		if r.Diverged {
			s.Divergences++
		}
	}
	return s
}

// #endregion replay
