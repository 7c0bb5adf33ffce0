package logging

import "time"

// #region failure-entry
// FailureEntry is a single row in the error_log table.
type FailureEntry struct {
	ID           string
	RespondentID string
	Stage        string
	Question     int // 0 for respondent-level calls
	Category     string
	Message      string
	Attempt      int
	Details      string // JSON object, optional
	CreatedAt    time.Time
}
// #endregion failure-entry

// #region attempt-entry
// AttemptEntry records one evaluator attempt, accepted or not.
type AttemptEntry struct {
	ID           string
	RespondentID string
	Stage        string
	Question     int
	Attempt      int
	Accepted     bool
	Failure      string // error-log category when not accepted
	RawReply     string
	CreatedAt    time.Time
}
// #endregion attempt-entry

// #region validation-entry
// ValidationEntry is a single row in the validation_log table.
type ValidationEntry struct {
	RespondentID string
	RowIndex     int
	Reason       string
	Label        string
	CreatedAt    time.Time
}
// #endregion validation-entry
