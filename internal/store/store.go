// Package store persists completed turns to SQLite for audit, inspection,
// and moderator replay. The engine writes a turn exactly once, after its
// status is terminal; nothing here is on the hot path of a deliberation.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/XiandaDu/WatAIOliver/internal/engine"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	course_scope  TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	last_turn_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	turn_id       TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	query         TEXT NOT NULL,
	reframes_json TEXT,
	ungrounded    INTEGER NOT NULL,
	status        TEXT NOT NULL,
	final_json    TEXT,
	abort_json    TEXT,
	timings_json  TEXT,
	started_at    TEXT NOT NULL,
	elapsed_ms    INTEGER NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE TABLE IF NOT EXISTS passages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	turn_id       TEXT NOT NULL,
	source        TEXT NOT NULL,
	content       TEXT NOT NULL,
	score         REAL NOT NULL,
	method        TEXT NOT NULL,
	FOREIGN KEY (turn_id) REFERENCES turns(turn_id)
);

CREATE TABLE IF NOT EXISTS rounds (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	turn_id       TEXT NOT NULL,
	round_index   INTEGER NOT NULL,
	draft_json    TEXT NOT NULL,
	critique_json TEXT NOT NULL,
	decision_json TEXT NOT NULL,
	FOREIGN KEY (turn_id) REFERENCES turns(turn_id)
);

CREATE TABLE IF NOT EXISTS decision_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	turn_id       TEXT NOT NULL,
	round_index   INTEGER NOT NULL,
	action        TEXT NOT NULL,
	state         TEXT NOT NULL,
	rationale     TEXT,
	convergence   REAL NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (turn_id) REFERENCES turns(turn_id)
);
`
// #endregion schema

// #region store-struct
// Store is the SQLite audit log. Implements engine.AuditSink.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region save-turn
// SaveTurn writes one terminal turn and all its rounds in a transaction.
func (s *Store) SaveTurn(ctx context.Context, sessionID, courseScope string, turn *engine.Turn) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	reframes, err := json.Marshal(turn.ReframedQueries)
	if err != nil {
		return fmt.Errorf("marshal reframes: %w", err)
	}
	timings, err := json.Marshal(turn.Timings)
	if err != nil {
		return fmt.Errorf("marshal timings: %w", err)
	}
	var finalJSON []byte
	if turn.Final != nil {
		if finalJSON, err = json.Marshal(turn.Final); err != nil {
			return fmt.Errorf("marshal final: %w", err)
		}
	}
	var abortJSON []byte
	if turn.Abort != nil {
		if abortJSON, err = json.Marshal(turn.Abort); err != nil {
			return fmt.Errorf("marshal abort: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, course_scope, created_at, last_turn_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET last_turn_at = excluded.last_turn_at`,
		sessionID, courseScope, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (turn_id, session_id, query, reframes_json, ungrounded, status,
		                    final_json, abort_json, timings_json, started_at, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, sessionID, turn.Query, string(reframes), boolInt(turn.Ungrounded),
		string(turn.Status), nullable(finalJSON), nullable(abortJSON), string(timings),
		turn.StartedAt.Format(time.RFC3339Nano), turn.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	for _, p := range turn.Passages {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO passages (turn_id, source, content, score, method) VALUES (?, ?, ?, ?, ?)`,
			turn.ID, p.Source, p.Content, p.Score, p.Method,
		)
		if err != nil {
			return fmt.Errorf("insert passage: %w", err)
		}
	}

	for _, r := range turn.Rounds {
		draftJSON, err := json.Marshal(r.Draft)
		if err != nil {
			return fmt.Errorf("marshal draft: %w", err)
		}
		critJSON, err := json.Marshal(r.Critique)
		if err != nil {
			return fmt.Errorf("marshal critique: %w", err)
		}
		decJSON, err := json.Marshal(r.Decision)
		if err != nil {
			return fmt.Errorf("marshal decision: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO rounds (turn_id, round_index, draft_json, critique_json, decision_json)
			 VALUES (?, ?, ?, ?, ?)`,
			turn.ID, r.Index, string(draftJSON), string(critJSON), string(decJSON),
		)
		if err != nil {
			return fmt.Errorf("insert round: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO decision_log (turn_id, round_index, action, state, rationale, convergence, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			turn.ID, r.Index, string(r.Decision.Action), string(r.Decision.State),
			r.Decision.Rationale, r.Decision.Convergence, now,
		)
		if err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
// #endregion save-turn

// #region helpers
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
// #endregion helpers
