// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store archives completed research sessions in SQLite and serves
// them back for listing, export, and full-text search over answers and
// report text. The pipeline itself never touches the store; the CLI hands
// it finished sessions as structured values.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/deep-research/pkg/types"
)

const defaultPath = "output/deep-research.db"

// Store manages the session archive database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the archive at cfg.Path, creating parent
// directories and the schema as needed.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = defaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			domain TEXT NOT NULL,
			model TEXT,
			state TEXT NOT NULL,
			failure_stage TEXT,
			failure_reason TEXT,
			questions TEXT,
			bundles TEXT,
			answers TEXT,
			report TEXT,
			created_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS passages (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			question_id INTEGER,
			kind TEXT NOT NULL,
			content TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_passages_session ON passages(session_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='passages_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE passages_fts USING fts5(content, content=passages, content_rowid=rowid)`,
			`CREATE TRIGGER passages_ai AFTER INSERT ON passages BEGIN
				INSERT INTO passages_fts(rowid, content) VALUES (new.rowid, new.content);
			END`,
			`CREATE TRIGGER passages_ad AFTER DELETE ON passages BEGIN
				INSERT INTO passages_fts(passages_fts, rowid, content) VALUES('delete', old.rowid, old.content);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// Save upserts a session. Saving again with the same ID replaces the stored
// record and its indexed passages.
func (s *Store) Save(ctx context.Context, session *types.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	questionsJSON, err := json.Marshal(session.Questions)
	if err != nil {
		return fmt.Errorf("marshaling questions: %w", err)
	}
	bundlesJSON, err := json.Marshal(session.Bundles)
	if err != nil {
		return fmt.Errorf("marshaling bundles: %w", err)
	}
	answersJSON, err := json.Marshal(session.Answers)
	if err != nil {
		return fmt.Errorf("marshaling answers: %w", err)
	}
	var reportJSON []byte
	if session.Report != nil {
		if reportJSON, err = json.Marshal(session.Report); err != nil {
			return fmt.Errorf("marshaling report: %w", err)
		}
	}

	finishedAt := ""
	if !session.FinishedAt.IsZero() {
		finishedAt = session.FinishedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, domain, model, state, failure_stage, failure_reason,
			questions, bundles, answers, report, created_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			topic=excluded.topic, domain=excluded.domain, model=excluded.model,
			state=excluded.state, failure_stage=excluded.failure_stage,
			failure_reason=excluded.failure_reason, questions=excluded.questions,
			bundles=excluded.bundles, answers=excluded.answers, report=excluded.report,
			created_at=excluded.created_at, finished_at=excluded.finished_at`,
		session.ID, session.Topic, session.Domain, session.Model, string(session.State),
		session.FailureStage, session.FailureReason,
		string(questionsJSON), string(bundlesJSON), string(answersJSON), string(reportJSON),
		session.CreatedAt.UTC().Format(time.RFC3339Nano), finishedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM passages WHERE session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("clearing old passages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO passages (session_id, question_id, kind, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing passage insert: %w", err)
	}
	defer stmt.Close()

	for _, ans := range session.Answers {
		if _, err := stmt.ExecContext(ctx, session.ID, ans.QuestionID, "answer", ans.Text); err != nil {
			return fmt.Errorf("inserting answer passage: %w", err)
		}
	}
	if r := session.Report; r != nil {
		if _, err := stmt.ExecContext(ctx, session.ID, nil, "report", r.ExecutiveSummary); err != nil {
			return fmt.Errorf("inserting summary passage: %w", err)
		}
		for _, sec := range r.Sections {
			content := sec.Heading + "\n" + sec.Body
			if _, err := stmt.ExecContext(ctx, session.ID, nil, "report", content); err != nil {
				return fmt.Errorf("inserting section passage: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx, session.ID, nil, "report", r.Conclusion); err != nil {
			return fmt.Errorf("inserting conclusion passage: %w", err)
		}
	}

	return tx.Commit()
}

// Summary is one row of the session listing.
type Summary struct {
	ID         string    `json:"id" yaml:"id"`
	Topic      string    `json:"topic" yaml:"topic"`
	Domain     string    `json:"domain" yaml:"domain"`
	Model      string    `json:"model" yaml:"model"`
	State      string    `json:"state" yaml:"state"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// List returns session summaries, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, domain, model, state, created_at, finished_at
		 FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		var model, createdAt, finishedAt sql.NullString
		if err := rows.Scan(&sum.ID, &sum.Topic, &sum.Domain, &model, &sum.State, &createdAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sum.Model = model.String
		sum.CreatedAt = parseTime(createdAt.String)
		sum.FinishedAt = parseTime(finishedAt.String)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Get loads a full session by ID. A unique ID prefix is accepted.
func (s *Store) Get(ctx context.Context, id string) (*types.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, domain, model, state, failure_stage, failure_reason,
			questions, bundles, answers, report, created_at, finished_at
		 FROM sessions WHERE id = ? OR id LIKE ?`, id, id+"%")
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(sessions) {
	case 0:
		return nil, fmt.Errorf("session %s not found", id)
	case 1:
		return sessions[0], nil
	default:
		return nil, fmt.Errorf("session ID %s is ambiguous (%d matches)", id, len(sessions))
	}
}

func scanSession(rows *sql.Rows) (*types.Session, error) {
	var session types.Session
	var model, failStage, failReason sql.NullString
	var questionsJSON, bundlesJSON, answersJSON, reportJSON sql.NullString
	var createdAt, finishedAt sql.NullString

	err := rows.Scan(&session.ID, &session.Topic, &session.Domain, &model, (*string)(&session.State),
		&failStage, &failReason, &questionsJSON, &bundlesJSON, &answersJSON, &reportJSON,
		&createdAt, &finishedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	session.Model = model.String
	session.FailureStage = failStage.String
	session.FailureReason = failReason.String
	session.CreatedAt = parseTime(createdAt.String)
	session.FinishedAt = parseTime(finishedAt.String)

	if questionsJSON.String != "" {
		if err := json.Unmarshal([]byte(questionsJSON.String), &session.Questions); err != nil {
			return nil, fmt.Errorf("parsing stored questions: %w", err)
		}
	}
	if bundlesJSON.String != "" {
		if err := json.Unmarshal([]byte(bundlesJSON.String), &session.Bundles); err != nil {
			return nil, fmt.Errorf("parsing stored bundles: %w", err)
		}
	}
	if answersJSON.String != "" {
		if err := json.Unmarshal([]byte(answersJSON.String), &session.Answers); err != nil {
			return nil, fmt.Errorf("parsing stored answers: %w", err)
		}
	}
	if reportJSON.String != "" {
		var r types.Report
		if err := json.Unmarshal([]byte(reportJSON.String), &r); err != nil {
			return nil, fmt.Errorf("parsing stored report: %w", err)
		}
		session.Report = &r
	}

	return &session, nil
}

// Hit is one full-text search match across archived sessions.
type Hit struct {
	SessionID  string `json:"session_id" yaml:"session_id"`
	Topic      string `json:"topic" yaml:"topic"`
	Domain     string `json:"domain" yaml:"domain"`
	QuestionID int    `json:"question_id,omitempty" yaml:"question_id,omitempty"`
	Kind       string `json:"kind" yaml:"kind"`
	Content    string `json:"content" yaml:"content"`
}

// Search runs an FTS5 query over archived answers and report text, ranked
// by relevance. Zero limit means 20.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.session_id, se.topic, se.domain, p.question_id, p.kind, p.content
		 FROM passages_fts
		 JOIN passages p ON p.rowid = passages_fts.rowid
		 JOIN sessions se ON se.id = p.session_id
		 WHERE passages_fts MATCH ?
		 ORDER BY passages_fts.rank
		 LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching archive: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		var questionID sql.NullInt64
		if err := rows.Scan(&hit.SessionID, &hit.Topic, &hit.Domain, &questionID, &hit.Kind, &hit.Content); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hit.QuestionID = int(questionID.Int64)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// Delete removes a session and its indexed passages.
func (s *Store) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	// Passages go first so the FTS delete trigger sees them; a cascading
	// delete would bypass it.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM passages WHERE session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("deleting session passages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, session.ID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
