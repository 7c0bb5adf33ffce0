// Package store is the SQLite row-store behind the pipeline: respondents,
// questions, per-stage artifacts, status labels and the operational logs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested respondent does not exist.
var ErrNotFound = errors.New("not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS respondents (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	answers       TEXT NOT NULL,
	rationales    TEXT,
	status        TEXT NOT NULL DEFAULT '',
	row_index     INTEGER NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	number        INTEGER PRIMARY KEY,
	text          TEXT NOT NULL,
	primary_label TEXT NOT NULL,
	sub_label     TEXT NOT NULL,
	process_label TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stage_artifacts (
	respondent_id TEXT NOT NULL,
	stage         TEXT NOT NULL,
	payload       TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (respondent_id, stage),
	FOREIGN KEY (respondent_id) REFERENCES respondents(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS error_log (
	id            TEXT PRIMARY KEY,
	respondent_id TEXT NOT NULL,
	stage         TEXT,
	question      INTEGER NOT NULL DEFAULT 0,
	category      TEXT NOT NULL,
	message       TEXT NOT NULL,
	attempt       INTEGER NOT NULL,
	details       TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attempt_log (
	id            TEXT PRIMARY KEY,
	respondent_id TEXT NOT NULL,
	stage         TEXT NOT NULL,
	question      INTEGER NOT NULL DEFAULT 0,
	attempt       INTEGER NOT NULL,
	accepted      INTEGER NOT NULL,
	failure       TEXT,
	raw_reply     TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS validation_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	respondent_id TEXT NOT NULL,
	row_index     INTEGER NOT NULL,
	reason        TEXT NOT NULL,
	label         TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_log (
	run_id        TEXT PRIMARY KEY,
	processed     INTEGER NOT NULL,
	errors        INTEGER NOT NULL,
	skipped       INTEGER NOT NULL,
	started_at    TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempt_respondent ON attempt_log(respondent_id, stage, question);
`
// #endregion schema

// #region store-struct
// Store is the SQLite implementation of every pipeline collaborator.
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
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region questions

// UpsertQuestions replaces question metadata by number.
func (s *Store) UpsertQuestions(ctx context.Context, qs []diagnosis.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range qs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO questions (number, text, primary_label, sub_label, process_label)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(number) DO UPDATE SET
			   text = excluded.text,
			   primary_label = excluded.primary_label,
			   sub_label = excluded.sub_label,
			   process_label = excluded.process_label`,
			q.Number, q.Text, q.Primary, q.Sub, q.Process,
		)
		if err != nil {
			return fmt.Errorf("upsert question %d: %w", q.Number, err)
		}
	}
	return tx.Commit()
}

// LoadQuestions returns every question ordered by number.
func (s *Store) LoadQuestions(ctx context.Context) ([]diagnosis.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, text, primary_label, sub_label, process_label FROM questions ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []diagnosis.Question
	for rows.Next() {
		var q diagnosis.Question
		if err := rows.Scan(&q.Number, &q.Text, &q.Primary, &q.Sub, &q.Process); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// #endregion questions

// #region respondents

// UpsertRespondents inserts or refreshes respondents. An empty incoming
// status keeps the stored one so a re-import does not reset progress.
func (s *Store) UpsertRespondents(ctx context.Context, rs []diagnosis.Respondent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range rs {
		answers, err := json.Marshal(nonNil(r.Answers))
		if err != nil {
			return fmt.Errorf("marshal answers: %w", err)
		}
		var rationales interface{}
		if len(r.Rationales) > 0 {
			b, err := json.Marshal(r.Rationales)
			if err != nil {
				return fmt.Errorf("marshal rationales: %w", err)
			}
			rationales = string(b)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO respondents (id, name, answers, rationales, status, row_index, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   name = excluded.name,
			   answers = excluded.answers,
			   rationales = excluded.rationales,
			   status = CASE WHEN excluded.status = '' THEN respondents.status ELSE excluded.status END,
			   row_index = excluded.row_index,
			   updated_at = excluded.updated_at`,
			r.ID, r.Name, string(answers), rationales, r.Status, r.RowIndex, now,
		)
		if err != nil {
			return fmt.Errorf("upsert respondent %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

const respondentColumns = `id, name, answers, rationales, status, row_index`

// LoadRespondents returns every respondent in sheet order.
func (s *Store) LoadRespondents(ctx context.Context) ([]diagnosis.Respondent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+respondentColumns+` FROM respondents ORDER BY row_index, id`)
	if err != nil {
		return nil, fmt.Errorf("load respondents: %w", err)
	}
	defer rows.Close()

	var out []diagnosis.Respondent
	for rows.Next() {
		r, err := scanRespondent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadRespondent returns one respondent or ErrNotFound.
func (s *Store) LoadRespondent(ctx context.Context, id string) (diagnosis.Respondent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+respondentColumns+` FROM respondents WHERE id = ?`, id)
	r, err := scanRespondent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return diagnosis.Respondent{}, fmt.Errorf("respondent %s: %w", id, ErrNotFound)
	}
	return r, err
}

// UpdateStatus stores a status label verbatim.
func (s *Store) UpdateStatus(ctx context.Context, respondentID, label string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE respondents SET status = ?, updated_at = ? WHERE id = ?`,
		label, time.Now().UTC().Format(time.RFC3339Nano), respondentID,
	)
	if err != nil {
		return fmt.Errorf("update status %s: %w", respondentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update status %s: %w", respondentID, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRespondent(sc scanner) (diagnosis.Respondent, error) {
	var r diagnosis.Respondent
	var answers string
	var rationales sql.NullString
	if err := sc.Scan(&r.ID, &r.Name, &answers, &rationales, &r.Status, &r.RowIndex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan respondent: %w", err)
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return r, fmt.Errorf("unmarshal answers of %s: %w", r.ID, err)
	}
	if rationales.Valid {
		if err := json.Unmarshal([]byte(rationales.String), &r.Rationales); err != nil {
			return r, fmt.Errorf("unmarshal rationales of %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// #endregion respondents
