package logging

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region log-failure
// LogFailure writes an entry to the error_log table.
func LogFailure(db *sql.DB, entry FailureEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO error_log (id, respondent_id, stage, question, category, message, attempt, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.RespondentID,
		nullIfEmpty(entry.Stage),
		entry.Question,
		entry.Category,
		entry.Message,
		entry.Attempt,
		nullIfEmpty(entry.Details),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log failure: %w", err)
	}
	return nil
}
// #endregion log-failure

// #region record-attempt
// RecordAttempt writes an entry to the attempt_log table.
func RecordAttempt(db *sql.DB, entry AttemptEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	accepted := 0
	if entry.Accepted {
		accepted = 1
	}

	_, err := db.Exec(
		`INSERT INTO attempt_log (id, respondent_id, stage, question, attempt, accepted, failure, raw_reply, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.RespondentID,
		entry.Stage,
		entry.Question,
		entry.Attempt,
		accepted,
		nullIfEmpty(entry.Failure),
		nullIfEmpty(entry.RawReply),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}
// #endregion record-attempt

// #region log-validation
// LogValidation writes structural validation issues in one transaction.
func LogValidation(db *sql.DB, entries []ValidationEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		_, err := tx.Exec(
			`INSERT INTO validation_log (respondent_id, row_index, reason, label, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			e.RespondentID, e.RowIndex, e.Reason, nullIfEmpty(e.Label), e.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("log validation: %w", err)
		}
	}
	return tx.Commit()
}
// #endregion log-validation

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
