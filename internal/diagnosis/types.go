package diagnosis

import (
	"fmt"
	"strings"
	"time"
)

// #region inputs

// Question is one survey item with its raw category labels as authored in metadata.
type Question struct {
	Number  int    `json:"number"`
	Text    string `json:"text"`
	Primary string `json:"primary_label"`
	Sub     string `json:"sub_label"`
	Process string `json:"process_label"`
}

// ID returns the display identifier (Q1, Q2, ...).
func (q Question) ID() string { return fmt.Sprintf("Q%d", q.Number) }

// Label returns the raw label for a group.
func (q Question) Label(g Group) string {
	switch g {
	case GroupPrimary:
		return q.Primary
	case GroupSub:
		return q.Sub
	case GroupProcess:
		return q.Process
	}
	return ""
}

// Respondent is one survey participant. Answers are indexed by question order.
type Respondent struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Answers    []string `json:"answers"`
	Rationales []string `json:"rationales,omitempty"`
	Status     string   `json:"status"`
	RowIndex   int      `json:"row_index"`
}

// Answer returns the answer at a zero-based position, empty when absent.
func (r Respondent) Answer(i int) string {
	if i < 0 || i >= len(r.Answers) {
		return ""
	}
	return r.Answers[i]
}

// Rationale returns the optional rationale at a zero-based position.
func (r Respondent) Rationale(i int) string {
	if i < 0 || i >= len(r.Rationales) {
		return ""
	}
	return r.Rationales[i]
}

// #endregion inputs

// #region raw-records

// PassARecord is the first independent scoring of one question.
type PassARecord struct {
	QuestionID     int     `json:"question,omitempty"`
	PrimaryScore   float64 `json:"primary_score"`
	SubScore       float64 `json:"sub_score"`
	ProcessScore   float64 `json:"process_score"`
	Clarity        float64 `json:"aes_clarity"`
	Logic          float64 `json:"aes_logic"`
	Relevance      float64 `json:"aes_relevance"`
	Evidence       string  `json:"evidence"`
	JudgmentReason string  `json:"judgment_reason"`
}

// PassBRecord is the second scoring of one question, produced with pass A as reference.
type PassBRecord struct {
	QuestionID     int     `json:"question,omitempty"`
	PrimaryScore   float64 `json:"primary_score"`
	SubScore       float64 `json:"sub_score"`
	ProcessScore   float64 `json:"process_score"`
	DifferenceNote string  `json:"difference_note"`
}

// PassAResult is the stage-1 artifact, ordered by question number.
type PassAResult struct {
	Records []PassARecord `json:"records"`
}

// PassBResult is the stage-2 artifact, ordered by question number.
type PassBResult struct {
	Records []PassBRecord `json:"records"`
}

// ByQuestion indexes the records by question number.
func (r PassAResult) ByQuestion() map[int]PassARecord {
	out := make(map[int]PassARecord, len(r.Records))
	for _, rec := range r.Records {
		out[rec.QuestionID] = rec
	}
	return out
}

// ByQuestion indexes the records by question number.
func (r PassBResult) ByQuestion() map[int]PassBRecord {
	out := make(map[int]PassBRecord, len(r.Records))
	for _, rec := range r.Records {
		out[rec.QuestionID] = rec
	}
	return out
}

// #endregion raw-records

// #region aggregate

// QuestionQuality holds the quality-dimension scores of one question.
type QuestionQuality struct {
	QuestionID int     `json:"question"`
	Clarity    float64 `json:"clarity"`
	Logic      float64 `json:"logic"`
	Relevance  float64 `json:"relevance"`
	Mean       float64 `json:"mean"`
}

// QualityMeans is the supplementary three-component average. It never enters the total.
type QualityMeans struct {
	Clarity   float64 `json:"clarity"`
	Logic     float64 `json:"logic"`
	Relevance float64 `json:"relevance"`
	Overall   float64 `json:"overall"`
}

// AggregatedScoreSet is the per-respondent rollup.
type AggregatedScoreSet struct {
	Primary     PrimaryScores     `json:"scores_primary"`
	Sub         SubScores         `json:"scores_sub"`
	Process     ProcessScores     `json:"process"`
	PrimaryMean float64           `json:"primary_mean"`
	SubMean     float64           `json:"sub_mean"`
	ProcessMean float64           `json:"process_mean"`
	Quality     []QuestionQuality `json:"aes"`
	QualityMean QualityMeans      `json:"aes_mean"`
	Total       float64           `json:"total_score"`
	Skipped     []int             `json:"skipped_questions,omitempty"`
}

// #endregion aggregate

// #region synthesis

// UseLevel classifies how advanced the respondent's evaluator usage is.
type UseLevel string

const (
	UseLevelBasic    UseLevel = "基礎"
	UseLevelStandard UseLevel = "標準"
	UseLevelAdvanced UseLevel = "高度"
)

// SynthesisRecord carries the narrative fields of the stage-3 synthesis call.
type SynthesisRecord struct {
	OverallSummary  string   `json:"overall_summary"`
	AIUseLevel      UseLevel `json:"ai_use_level"`
	TopStrengths    []string `json:"top_strengths"`
	TopWeaknesses   []string `json:"top_weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// FinalDiagnosis is the terminal artifact of stage 3.
type FinalDiagnosis struct {
	Scores    AggregatedScoreSet `json:"scores"`
	Narrative SynthesisRecord    `json:"narrative"`
	CreatedAt time.Time          `json:"created_at"`
}

// #endregion synthesis

// #region consistency

// ConsistencyStatus is the tri-state agreement classification.
type ConsistencyStatus string

const (
	ConsistencyValid      ConsistencyStatus = "valid"
	ConsistencyCaution    ConsistencyStatus = "caution"
	ConsistencyReevaluate ConsistencyStatus = "re-evaluate"
)

var consistencyAliases = map[string]ConsistencyStatus{
	"valid":       ConsistencyValid,
	"妥当":          ConsistencyValid,
	"caution":     ConsistencyCaution,
	"注意":          ConsistencyCaution,
	"re-evaluate": ConsistencyReevaluate,
	"reevaluate":  ConsistencyReevaluate,
	"re_evaluate": ConsistencyReevaluate,
	"再評価":         ConsistencyReevaluate,
}

// ParseConsistencyStatus accepts the English or the Japanese naming and normalizes to English.
func ParseConsistencyStatus(s string) (ConsistencyStatus, bool) {
	st, ok := consistencyAliases[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

// ConsistencyRecord is the validated stage-4 evaluator reply.
type ConsistencyRecord struct {
	ConsistencyScore float64           `json:"consistency_score"`
	Status           ConsistencyStatus `json:"status"`
	Issues           []string          `json:"issues"`
	Summary          string            `json:"summary"`
}

// ConsistencyReport is the terminal artifact of stage 4.
type ConsistencyReport struct {
	Mode      string            `json:"mode"`
	Score     float64           `json:"consistency_score"`
	Status    ConsistencyStatus `json:"status"`
	Issues    []string          `json:"issues"`
	Comment   string            `json:"comment"`
	CreatedAt time.Time         `json:"created_at"`
}

// #endregion consistency

// #region run-log

// RunLog summarizes one batch execution.
type RunLog struct {
	RunID     string        `json:"run_id"`
	Processed int           `json:"processed"`
	Errors    int           `json:"errors"`
	Skipped   int           `json:"skipped"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// NewRunID builds the timestamped run identifier.
func NewRunID(t time.Time) string {
	return "RUN_" + t.Format("20060102_150405")
}

// #endregion run-log
