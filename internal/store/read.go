package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

// #region records

// SessionRecord is one row of the sessions table.
type SessionRecord struct {
	ID          string
	CourseScope string
	CreatedAt   time.Time
	LastTurnAt  time.Time
}

// TurnSummary is the turns-table view of one deliberation, without its
// rounds or passages.
type TurnSummary struct {
	ID         string
	SessionID  string
	Query      string
	Status     engine.TurnStatus
	Ungrounded bool
	Rounds     int
	StartedAt  time.Time
	Elapsed    time.Duration
}

// #endregion records

// #region list-sessions
// ListSessions returns all audited sessions, most recent first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, course_scope, created_at, last_turn_at
		 FROM sessions ORDER BY last_turn_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var created, last string
		if err := rows.Scan(&rec.ID, &rec.CourseScope, &created, &last); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		rec.LastTurnAt, _ = time.Parse(time.RFC3339Nano, last)
		out = append(out, rec)
	}
	return out, rows.Err()
}
// #endregion list-sessions

// #region list-turns
// ListTurns returns the audited turns of one session in submission order.
func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]TurnSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.turn_id, t.session_id, t.query, t.status, t.ungrounded, t.started_at, t.elapsed_ms,
		        (SELECT COUNT(*) FROM rounds r WHERE r.turn_id = t.turn_id)
		 FROM turns t WHERE t.session_id = ? ORDER BY t.started_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []TurnSummary
	for rows.Next() {
		var ts TurnSummary
		var started string
		var ungrounded int
		var elapsedMS int64
		if err := rows.Scan(&ts.ID, &ts.SessionID, &ts.Query, &ts.Status, &ungrounded, &started, &elapsedMS, &ts.Rounds); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		ts.Ungrounded = ungrounded != 0
		ts.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		ts.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, ts)
	}
	return out, rows.Err()
}
// #endregion list-turns

// #region load-turn
// LoadTurn rebuilds a full turn record, rounds and passages included.
func (s *Store) LoadTurn(ctx context.Context, turnID string) (*engine.Turn, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT turn_id, query, reframes_json, ungrounded, status, final_json, abort_json, timings_json, started_at, elapsed_ms
		 FROM turns WHERE turn_id = ?`, turnID)

	turn := &engine.Turn{}
	var reframes, timings, started string
	var finalJSON, abortJSON sql.NullString
	var ungrounded int
	var elapsedMS int64
	err := row.Scan(&turn.ID, &turn.Query, &reframes, &ungrounded, &turn.Status,
		&finalJSON, &abortJSON, &timings, &started, &elapsedMS)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("turn %s: not found", turnID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan turn: %w", err)
	}
	turn.Ungrounded = ungrounded != 0
	turn.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	turn.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	if err := json.Unmarshal([]byte(reframes), &turn.ReframedQueries); err != nil {
		return nil, fmt.Errorf("unmarshal reframes: %w", err)
	}
	if err := json.Unmarshal([]byte(timings), &turn.Timings); err != nil {
		return nil, fmt.Errorf("unmarshal timings: %w", err)
	}
	if finalJSON.Valid {
		turn.Final = &engine.FinalResponse{}
		if err := json.Unmarshal([]byte(finalJSON.String), turn.Final); err != nil {
			return nil, fmt.Errorf("unmarshal final: %w", err)
		}
	}
	if abortJSON.Valid {
		turn.Abort = &engine.Decision{}
		if err := json.Unmarshal([]byte(abortJSON.String), turn.Abort); err != nil {
			return nil, fmt.Errorf("unmarshal abort: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, content, score, method FROM passages WHERE turn_id = ? ORDER BY id ASC`, turnID)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p engine.RetrievedPassage
		if err := rows.Scan(&p.Source, &p.Content, &p.Score, &p.Method); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		turn.Passages = append(turn.Passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rounds, err := s.loadRounds(ctx, turnID)
	if err != nil {
		return nil, err
	}
	turn.Rounds = rounds
	return turn, nil
}

func (s *Store) loadRounds(ctx context.Context, turnID string) ([]engine.Round, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT round_index, draft_json, critique_json, decision_json
		 FROM rounds WHERE turn_id = ? ORDER BY round_index ASC`, turnID)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []engine.Round
	for rows.Next() {
		var r engine.Round
		var draft, crit, dec string
		if err := rows.Scan(&r.Index, &draft, &crit, &dec); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		if err := json.Unmarshal([]byte(draft), &r.Draft); err != nil {
			return nil, fmt.Errorf("unmarshal draft: %w", err)
		}
		if err := json.Unmarshal([]byte(crit), &r.Critique); err != nil {
			return nil, fmt.Errorf("unmarshal critique: %w", err)
		}
		if err := json.Unmarshal([]byte(dec), &r.Decision); err != nil {
			return nil, fmt.Errorf("unmarshal decision: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
// #endregion load-turn
