package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/XiandaDu/WatAIOliver/internal/config"
	"github.com/XiandaDu/WatAIOliver/internal/replay"
	"github.com/XiandaDu/WatAIOliver/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to oliver_audit.db (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/oliver_audit.db")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	turns := make([]replay.RecordedTurn, 0, len(f.Turns))
	for _, ft := range f.Turns {
		turns = append(turns, ft.ToRecordedTurn())
	}

	results := replay.Replay(f.Config.ToDeliberationConfig(), turns)
	return report(results)
}

// #endregion fixture-mode

// #region db-mode

// runDBMode replays every audited turn against the current policy with
// default thresholds. Per-round wall clock is not audited, so the turn
// budget rule is disabled for DB replays.
func runDBMode(path string) int {
	s, err := store.NewStore(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer s.Close()

	cfg := config.Default().Deliberation
	cfg.TurnBudget = 0 // 0 disables the wall-clock rule

	ctx := context.Background()
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list sessions: %v\n", err)
		return 2
	}

	var turns []replay.RecordedTurn
	for _, sess := range sessions {
		summaries, err := s.ListTurns(ctx, sess.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list turns: %v\n", err)
			return 2
		}
		for _, ts := range summaries {
			turn, err := s.LoadTurn(ctx, ts.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "load turn %s: %v\n", ts.ID, err)
				return 2
			}
			rt := replay.RecordedTurn{TurnID: turn.ID}
			for _, r := range turn.Rounds {
				// Wall clock is not audited per round, so budget-forced
				// decisions are not re-derivable.
				if strings.Contains(r.Decision.Rationale, "turn budget") {
					continue
				}
				rt.Rounds = append(rt.Rounds, replay.RecordedRound{
					Round:    r,
					Expected: r.Decision,
				})
			}
			if len(rt.Rounds) > 0 {
				turns = append(turns, rt)
			}
		}
	}

	results := replay.Replay(cfg, turns)
	return report(results)
}

// #endregion db-mode

// #region report

// report prints per-round outcomes and returns the exit code: non-zero when
// any replayed decision diverges from the recorded one.
func report(results []replay.RoundResult) int {
	for _, r := range results {
		mark := "ok"
		if r.Diverged {
			mark = "DIVERGED"
		}
		fmt.Printf("%-36s round %d  %-8s  got %s/%s  recorded %s/%s\n",
			r.TurnID, r.Index, mark,
			r.Got.Action, r.Got.State,
			r.Expected.Action, r.Expected.State)
	}

	s := replay.Summarize(results)
	fmt.Printf("\n%d turns, %d rounds, %d divergences\n", s.Turns, s.Rounds, s.Divergences)
	if s.Divergences > 0 {
		return 1
	}
	return 0
}

// #endregion report
