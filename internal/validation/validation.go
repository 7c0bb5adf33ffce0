// Package validation gates respondents on structural checks before they may
// enter the pipeline.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
)

// Status labels written for rejected respondents.
const (
	LabelMissingFields = "入力不足により無効"
	LabelAnswerCount   = "回答数不足により無効"
	LabelAnswerLength  = "回答文字数超過"
)

// #region issue

// Issue is one rejected respondent. It unwraps to diagnosis.ErrStructuralValidation.
type Issue struct {
	RespondentID string
	RowIndex     int
	Reason       string
	Label        string
}

func (i *Issue) Error() string {
	return fmt.Sprintf("respondent %q (row %d): %s", i.RespondentID, i.RowIndex, i.Reason)
}

func (i *Issue) Unwrap() error { return diagnosis.ErrStructuralValidation }

// #endregion issue

// #region validate

// Result splits the input into respondents that may run and issues.
type Result struct {
	Valid  []diagnosis.Respondent
	Issues []*Issue
}

// Rules are the structural limits.
type Rules struct {
	QuestionCount   int // exact number of non-empty answers
	MaxAnswerLength int // in characters
}

// Validate applies, in order, the required-field, answer-count and
// answer-length checks. The first failing check decides the issue.
func Validate(rs []diagnosis.Respondent, rules Rules) Result {
	var res Result
	for _, r := range rs {
		if issue := check(r, rules); issue != nil {
			res.Issues = append(res.Issues, issue)
			continue
		}
		res.Valid = append(res.Valid, r)
	}
	return res
}

func check(r diagnosis.Respondent, rules Rules) *Issue {
	issue := func(reason, label string) *Issue {
		return &Issue{RespondentID: r.ID, RowIndex: r.RowIndex, Reason: reason, Label: label}
	}

	var missing []string
	if strings.TrimSpace(r.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return issue("Missing fields: "+strings.Join(missing, ", "), LabelMissingFields)
	}

	filled := 0
	for _, a := range r.Answers {
		if strings.TrimSpace(a) != "" {
			filled++
		}
	}
	if filled != rules.QuestionCount {
		return issue(fmt.Sprintf("Expected %d non-empty answers, received %d", rules.QuestionCount, filled), LabelAnswerCount)
	}

	var over []string
	for i, a := range r.Answers {
		if n := utf8.RuneCountInString(a); n > rules.MaxAnswerLength {
			over = append(over, fmt.Sprintf("Q%d (%d)", i+1, n))
		}
	}
	if len(over) > 0 {
		return issue("Answers exceed max length: "+strings.Join(over, ", "), LabelAnswerLength)
	}
	return nil
}

// #endregion validate
