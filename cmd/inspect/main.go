package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/XiandaDu/WatAIOliver/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to oliver_audit.db")
	session := flag.String("session", "", "list turns of one session")
	turn := flag.String("turn", "", "show full detail of one turn")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/oliver_audit.db [--session id] [--turn id] [--json]")
		os.Exit(2)
	}

	s, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	ctx := context.Background()
	switch {
	case *turn != "":
		err = runTurnMode(ctx, s, *turn, *jsonOut)
	case *session != "":
		err = runSessionMode(ctx, s, *session, *jsonOut)
	default:
		err = runListMode(ctx, s, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

func runListMode(ctx context.Context, s *store.Store, jsonOut bool) error {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(sessions)
	}
	fmt.Printf("%-36s  %-12s  %s\n", "SESSION", "COURSE", "LAST TURN")
	for _, sess := range sessions {
		fmt.Printf("%-36s  %-12s  %s\n", sess.ID, sess.CourseScope, sess.LastTurnAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// #endregion list-mode

// #region session-mode

func runSessionMode(ctx context.Context, s *store.Store, sessionID string, jsonOut bool) error {
	turns, err := s.ListTurns(ctx, sessionID)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(turns)
	}
	fmt.Printf("%-36s  %-9s  %-6s  %-8s  %s\n", "TURN", "STATUS", "ROUNDS", "ELAPSED", "QUERY")
	for _, t := range turns {
		fmt.Printf("%-36s  %-9s  %-6d  %-8s  %s\n", t.ID, t.Status, t.Rounds, t.Elapsed, truncate(t.Query, 60))
	}
	return nil
}

// #endregion session-mode

// #region turn-mode

func runTurnMode(ctx context.Context, s *store.Store, turnID string, jsonOut bool) error {
	turn, err := s.LoadTurn(ctx, turnID)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(turn)
	}

	fmt.Printf("turn %s  status=%s  elapsed=%s\n", turn.ID, turn.Status, turn.Elapsed)
	fmt.Printf("query: %s\n", turn.Query)
	for _, q := range turn.ReframedQueries {
		fmt.Printf("  reframed: %s\n", q)
	}
	fmt.Printf("passages: %d (ungrounded=%v)\n", len(turn.Passages), turn.Ungrounded)
	for _, p := range turn.Passages {
		fmt.Printf("  [%.2f] %s (%s)\n", p.Score, p.Source, p.Method)
	}
	for _, r := range turn.Rounds {
		c := r.Critique
		fmt.Printf("round %d: verdict=%s scores=%.2f/%.2f/%.2f decision=%s/%s\n",
			r.Index, c.Verdict, c.Consistency, c.Factuality, c.Grounding,
			r.Decision.Action, r.Decision.State)
		for _, f := range c.Findings {
			fmt.Printf("  finding [%s/%s] %s\n", f.Axis, f.Severity, f.Description)
		}
		if r.Decision.Rationale != "" {
			fmt.Printf("  rationale: %s\n", r.Decision.Rationale)
		}
	}
	if turn.Abort != nil {
		fmt.Printf("aborted: %s\n", turn.Abort.Rationale)
	}
	if turn.Final != nil {
		fmt.Printf("final (round %d, confidence %.2f, degraded=%v):\n%s\n",
			turn.Final.Round, turn.Final.Confidence, turn.Final.Degraded, turn.Final.Answer)
	}
	return nil
}

// #endregion turn-mode

// #region helpers

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// #endregion helpers
