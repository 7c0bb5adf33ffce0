package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/logging"
)

// #region log-writers

// LogFailure appends to the error log.
func (s *Store) LogFailure(_ context.Context, entry logging.FailureEntry) error {
	return logging.LogFailure(s.db, entry)
}

// RecordAttempt appends to the attempt log.
func (s *Store) RecordAttempt(_ context.Context, entry logging.AttemptEntry) error {
	return logging.RecordAttempt(s.db, entry)
}

// LogValidation appends structural validation issues.
func (s *Store) LogValidation(_ context.Context, entries []logging.ValidationEntry) error {
	return logging.LogValidation(s.db, entries)
}

// #endregion log-writers

// #region run-log

// WriteRunLog stores the summary of one batch.
func (s *Store) WriteRunLog(ctx context.Context, rl diagnosis.RunLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (run_id, processed, errors, skipped, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   processed = excluded.processed,
		   errors = excluded.errors,
		   skipped = excluded.skipped,
		   duration_ms = excluded.duration_ms`,
		rl.RunID, rl.Processed, rl.Errors, rl.Skipped,
		rl.StartedAt.UTC().Format(time.RFC3339Nano), rl.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("write run log %s: %w", rl.RunID, err)
	}
	return nil
}

// ListRunLogs returns the most recently written runs first.
func (s *Store) ListRunLogs(ctx context.Context, limit int) ([]diagnosis.RunLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, processed, errors, skipped, started_at, duration_ms
		 FROM run_log ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var out []diagnosis.RunLog
	for rows.Next() {
		var rl diagnosis.RunLog
		var started string
		var ms int64
		if err := rows.Scan(&rl.RunID, &rl.Processed, &rl.Errors, &rl.Skipped, &started, &ms); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		rl.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		rl.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, rl)
	}
	return out, rows.Err()
}

// #endregion run-log

// #region list-failures

// ListFailures returns the most recent error-log entries first.
func (s *Store) ListFailures(ctx context.Context, limit int) ([]logging.FailureEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, respondent_id, stage, question, category, message, attempt, details, created_at
		 FROM error_log ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var out []logging.FailureEntry
	for rows.Next() {
		var e logging.FailureEntry
		var stage, details sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.RespondentID, &stage, &e.Question, &e.Category, &e.Message, &e.Attempt, &details, &created); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		e.Stage = stage.String
		e.Details = details.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-failures

// #region list-attempts

// AttemptFilter narrows ListAttempts. Zero values match everything.
type AttemptFilter struct {
	RespondentID string
	AcceptedOnly bool
	Limit        int
}

// ListAttempts returns attempt-log entries in insertion order.
func (s *Store) ListAttempts(ctx context.Context, f AttemptFilter) ([]logging.AttemptEntry, error) {
	query := `SELECT id, respondent_id, stage, question, attempt, accepted, failure, raw_reply, created_at
		FROM attempt_log WHERE 1 = 1`
	var args []any
	if f.RespondentID != "" {
		query += ` AND respondent_id = ?`
		args = append(args, f.RespondentID)
	}
	if f.AcceptedOnly {
		query += ` AND accepted = 1`
	}
	query += ` ORDER BY rowid`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []logging.AttemptEntry
	for rows.Next() {
		var e logging.AttemptEntry
		var accepted int
		var failure, raw sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.RespondentID, &e.Stage, &e.Question, &e.Attempt, &accepted, &failure, &raw, &created); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		e.Accepted = accepted == 1
		e.Failure = failure.String
		e.RawReply = raw.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-attempts

// #region validation-log

// ListValidation returns every structural validation issue in insertion order.
func (s *Store) ListValidation(ctx context.Context) ([]logging.ValidationEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT respondent_id, row_index, reason, label, created_at FROM validation_log ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list validation: %w", err)
	}
	defer rows.Close()

	var out []logging.ValidationEntry
	for rows.Next() {
		var e logging.ValidationEntry
		var label sql.NullString
		var created string
		if err := rows.Scan(&e.RespondentID, &e.RowIndex, &e.Reason, &label, &created); err != nil {
			return nil, fmt.Errorf("scan validation: %w", err)
		}
		e.Label = label.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion validation-log
