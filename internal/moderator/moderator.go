// Package moderator owns the convergence policy for the debate loop. Its
// decisions are deterministic functions of the round history, so recorded
// turns can be replayed and audited.
package moderator

import (
	"fmt"
	"time"

	"github.com/XiandaDu/WatAIOliver/internal/config"
	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

// #region moderator

// Moderator applies the convergence rules: natural convergence on an accept
// verdict, forced finalization on round budget, wall-clock budget, or
// stagnation, and abort on unrecoverable infrastructure failure.
type Moderator struct {
	cfg config.DeliberationConfig
}

// New creates a Moderator with the given deliberation config.
func New(cfg config.DeliberationConfig) *Moderator {
	return &Moderator{cfg: cfg}
}

// #endregion moderator

// #region decide

// Decide rules on the latest round. rounds must be non-empty; the final
// element's Decision field is ignored (it is what Decide produces).
func (m *Moderator) Decide(rounds []engine.Round, elapsed time.Duration) engine.Decision {
	latest := rounds[len(rounds)-1]
	round := latest.Index
	agg := latest.Critique.Aggregate()

	// Natural convergence ends deliberation immediately.
	if latest.Critique.Verdict == engine.VerdictAccept {
		return engine.Decision{
			Action:      engine.ActionFinalize,
			State:       engine.StateConverged,
			Rationale:   fmt.Sprintf("critique accepted draft at round %d (aggregate %.2f)", round, agg),
			Convergence: agg,
		}
	}

	// Round budget: deliberation never runs unbounded.
	if round >= m.cfg.MaxRounds {
		return engine.Decision{
			Action:      engine.ActionFinalize,
			State:       engine.StateForcedFinalize,
			Rationale:   fmt.Sprintf("round budget (%d) exhausted without convergence", m.cfg.MaxRounds),
			Convergence: agg,
		}
	}

	// Wall-clock budget.
	if m.cfg.TurnBudget > 0 && elapsed >= m.cfg.TurnBudget {
		return engine.Decision{
			Action:      engine.ActionFinalize,
			State:       engine.StateForcedFinalize,
			Rationale:   fmt.Sprintf("turn budget (%s) exhausted after round %d", m.cfg.TurnBudget, round),
			Convergence: agg,
		}
	}

	// Stagnation: two consecutive rounds without measurable improvement
	// mean further iteration is unlikely to pay for its latency.
	if len(rounds) >= 2 {
		prev := rounds[len(rounds)-2].Critique.Aggregate()
		if delta := agg - prev; absf(delta) < m.cfg.StagnationDelta {
			return engine.Decision{
				Action:      engine.ActionFinalize,
				State:       engine.StateForcedFinalize,
				Rationale:   fmt.Sprintf("stagnation: aggregate moved %.3f between rounds %d and %d (min delta %.3f)", delta, round-1, round, m.cfg.StagnationDelta),
				Convergence: agg,
			}
		}
	}

	return engine.Decision{
		Action:      engine.ActionContinue,
		State:       engine.StateDeliberating,
		Rationale:   fmt.Sprintf("verdict %s at round %d/%d; continuing", latest.Critique.Verdict, round, m.cfg.MaxRounds),
		Convergence: agg,
	}
}

// #endregion decide

// #region abort

// AbortDecision records an unrecoverable infrastructure failure. The engine
// invokes it when a required stage exhausts its retries.
func (m *Moderator) AbortDecision(stage string, cause error) engine.Decision {
	return engine.Decision{
		Action:    engine.ActionAbort,
		State:     engine.StateAborted,
		Rationale: fmt.Sprintf("stage %s unavailable after retries: %v", stage, cause),
	}
}

// #endregion abort

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
