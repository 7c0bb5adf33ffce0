package logging

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1) // each :memory: connection is its own database
	_, err = db.Exec(`
	CREATE TABLE error_log (
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
	CREATE TABLE attempt_log (
		id            TEXT PRIMARY KEY,
		respondent_id TEXT NOT NULL,
		stage         TEXT NOT NULL,
		question      INTEGER NOT NULL,
		attempt       INTEGER NOT NULL,
		accepted      INTEGER NOT NULL,
		failure       TEXT,
		raw_reply     TEXT,
		created_at    TEXT NOT NULL
	);
	CREATE TABLE validation_log (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		respondent_id TEXT NOT NULL,
		row_index     INTEGER NOT NULL,
		reason        TEXT NOT NULL,
		label         TEXT,
		created_at    TEXT NOT NULL
	);`)
	if err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-failure-tests
func TestLogFailure_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := FailureEntry{
		RespondentID: "R001",
		Stage:        "pass_a",
		Question:     3,
		Category:     "VALIDATION_FAILED",
		Message:      "pass_a Q3 failed after 3 attempts",
		Attempt:      3,
		Details:      `{"field":"primary_score"}`,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogFailure(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var id, category string
	var attempt, question int
	err := db.QueryRow("SELECT id, category, attempt, question FROM error_log").Scan(&id, &category, &attempt, &question)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if id == "" {
		t.Error("expected generated id")
	}
	if category != "VALIDATION_FAILED" {
		t.Errorf("expected category VALIDATION_FAILED, got %q", category)
	}
	if attempt != 3 || question != 3 {
		t.Errorf("expected attempt 3 question 3, got %d %d", attempt, question)
	}
}

func TestLogFailure_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	err := LogFailure(db, FailureEntry{RespondentID: "R002", Category: "TRANSPORT_ERROR", Message: "timeout", Attempt: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM error_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogFailure_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	err := LogFailure(db, FailureEntry{RespondentID: "R003", Category: "PROCESSING_ERROR", Message: "x", Attempt: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stage, details sql.NullString
	db.QueryRow("SELECT stage, details FROM error_log").Scan(&stage, &details)
	if stage.Valid {
		t.Error("expected NULL stage for empty string")
	}
	if details.Valid {
		t.Error("expected NULL details for empty string")
	}
}

func TestLogFailure_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	if err := LogFailure(db, FailureEntry{RespondentID: "R004"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-failure-tests

// #region attempt-tests
func TestRecordAttempt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entries := []AttemptEntry{
		{RespondentID: "R001", Stage: "pass_a", Question: 1, Attempt: 1, Failure: "MALFORMED_OUTPUT", RawReply: "nope"},
		{RespondentID: "R001", Stage: "pass_a", Question: 1, Attempt: 2, Accepted: true, RawReply: `{"primary_score":3}`},
	}
	for _, e := range entries {
		if err := RecordAttempt(db, e); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	var accepted int
	db.QueryRow("SELECT COUNT(*) FROM attempt_log WHERE accepted = 1").Scan(&accepted)
	if accepted != 1 {
		t.Errorf("expected 1 accepted attempt, got %d", accepted)
	}

	var failure sql.NullString
	db.QueryRow("SELECT failure FROM attempt_log WHERE attempt = 2").Scan(&failure)
	if failure.Valid {
		t.Error("expected NULL failure on accepted attempt")
	}
}

// #endregion attempt-tests

// #region validation-tests
func TestLogValidation(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogValidation(db, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	err := LogValidation(db, []ValidationEntry{
		{RespondentID: "R1", RowIndex: 2, Reason: "Missing fields: name", Label: "入力不足により無効"},
		{RespondentID: "R2", RowIndex: 3, Reason: "Expected 6 non-empty answers, received 5", Label: "回答数不足により無効"},
	})
	if err != nil {
		t.Fatalf("LogValidation: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM validation_log").Scan(&count)
	if count != 2 {
		t.Errorf("expected 2 rows, got %d", count)
	}
}

// #endregion validation-tests

// #region logger-tests
func TestNewLogger(t *testing.T) {
	if _, err := New("debug", true); err != nil {
		t.Fatalf("New debug: %v", err)
	}
	if _, err := New("", false); err != nil {
		t.Fatalf("New default: %v", err)
	}
	if _, err := New("loud", false); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if OrNop(nil) == nil {
		t.Fatal("expected no-op logger")
	}
}

// #endregion logger-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
