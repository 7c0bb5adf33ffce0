// Package consistency classifies how well the two independent scorings of a
// respondent agree.
package consistency

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/parser"
	"github.com/AnMoreNight/Simple-AICATS/internal/scoring"
	"go.uber.org/zap"
)

// #region validator

// Validator classifies consistency values against configured cut-points.
type Validator struct {
	cfg Config
	log *zap.Logger
}

// NewValidator validates cfg eagerly.
func NewValidator(cfg Config, log *zap.Logger) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{cfg: cfg, log: log.Named("consistency")}, nil
}

// Mode returns the configured mode.
func (v *Validator) Mode() Mode { return v.cfg.Mode }

// StatusFor thresholds a value against the two cut-points.
func (v *Validator) StatusFor(score float64) diagnosis.ConsistencyStatus {
	switch {
	case score >= v.cfg.ValidCut:
		return diagnosis.ConsistencyValid
	case score >= v.cfg.CautionCut:
		return diagnosis.ConsistencyCaution
	}
	return diagnosis.ConsistencyReevaluate
}

// Classify derives the status of a report from its value. A value below the
// lower cut-point without any non-empty issue is reported as a warning, not
// rejected.
func (v *Validator) Classify(report diagnosis.ConsistencyReport) Result {
	status := v.StatusFor(report.Score)
	issues := nonEmpty(report.Issues)

	res := Result{
		Status: status,
		Issues: issues,
		Checks: []Check{
			{Name: "valid_cut", Value: v.cfg.ValidCut, Pass: report.Score >= v.cfg.ValidCut},
			{Name: "caution_cut", Value: v.cfg.CautionCut, Pass: report.Score >= v.cfg.CautionCut},
			{Name: "issues_present", Value: float64(len(issues)), Pass: status != diagnosis.ConsistencyReevaluate || len(issues) > 0},
		},
	}
	if status == diagnosis.ConsistencyReevaluate && len(issues) == 0 {
		msg := fmt.Sprintf("consistency %.2f is below %.2f but no issue was reported", report.Score, v.cfg.CautionCut)
		res.Warnings = append(res.Warnings, msg)
		v.log.Warn("data quality: re-evaluate without issues", zap.Float64("score", report.Score))
	}
	return res
}

// #endregion validator

// #region build-report

// BuildReport turns the stage-4 evaluator reply into the terminal report.
// In difference mode the value is recomputed from the two passes and the
// evaluator's own value is ignored; its issues and summary are kept.
func (v *Validator) BuildReport(
	respondentID string,
	rec diagnosis.ConsistencyRecord,
	questions []diagnosis.Question,
	passA diagnosis.PassAResult,
	passB diagnosis.PassBResult,
) (diagnosis.ConsistencyReport, Result) {
	report := diagnosis.ConsistencyReport{
		Mode:      string(v.cfg.Mode),
		Score:     rec.ConsistencyScore,
		Issues:    nonEmpty(rec.Issues),
		Comment:   rec.Summary,
		CreatedAt: time.Now().UTC(),
	}
	if v.cfg.Mode == ModeDifference {
		score, issues := CompareTotals(questions, passA, passB)
		report.Score = score
		report.Issues = append(report.Issues, issues...)
	}

	res := v.Classify(report)
	report.Status = res.Status
	report.Issues = res.Issues
	if rec.Status != "" && rec.Status != res.Status {
		v.log.Info("evaluator status differs from threshold status",
			zap.String("respondent", respondentID),
			zap.String("reported", string(rec.Status)),
			zap.String("computed", string(res.Status)),
			zap.Float64("score", report.Score))
	}
	return report, res
}

// #endregion build-report

// #region difference

// CompareTotals scores each question 5 (gap < 0.5) down to 1 (gap >= 2.0),
// where the gap is between the weighted per-question totals of the two
// passes, and returns the mean on the 1-5 scale. A gap of 2.0 or more yields
// an issue naming the question.
func CompareTotals(questions []diagnosis.Question, passA diagnosis.PassAResult, passB diagnosis.PassBResult) (float64, []string) {
	first := passA.ByQuestion()
	second := passB.ByQuestion()

	var issues []string
	var sum float64
	var n int
	for _, q := range questions {
		a, okA := first[q.Number]
		b, okB := second[q.Number]
		if !okA || !okB {
			continue
		}
		ta := weighted(a.PrimaryScore, a.SubScore, a.ProcessScore)
		tb := weighted(b.PrimaryScore, b.SubScore, b.ProcessScore)
		diff := math.Abs(ta - tb)

		var c float64
		switch {
		case diff < 0.5:
			c = 5
		case diff < 1.0:
			c = 4
		case diff < 1.5:
			c = 3
		case diff < 2.0:
			c = 2
		default:
			c = 1
			issues = append(issues, fmt.Sprintf("%s: Large score difference (%.2f)", q.ID(), diff))
		}
		sum += c
		n++
	}
	if n == 0 {
		return 0, []string{"no question scored in both passes"}
	}
	return parser.Round(sum/float64(n), 2), issues
}

func weighted(p, s, proc float64) float64 {
	return scoring.PrimaryWeight*p + scoring.SubWeight*s + scoring.ProcessWeight*proc
}

// #endregion difference

// #region helpers

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// #endregion helpers
