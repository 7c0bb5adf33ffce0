package workbook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/logging"
	"github.com/AnMoreNight/Simple-AICATS/internal/store"
	"github.com/xuri/excelize/v2"
)

// Source is the read side of the store used by Export.
type Source interface {
	LoadRespondents(ctx context.Context) ([]diagnosis.Respondent, error)
	ListStageArtifacts(ctx context.Context, stage diagnosis.Stage) ([]store.Artifact, error)
	ListFailures(ctx context.Context, limit int) ([]logging.FailureEntry, error)
	ListRunLogs(ctx context.Context, limit int) ([]diagnosis.RunLog, error)
	ListValidation(ctx context.Context) ([]logging.ValidationEntry, error)
}

const logLimit = 10000

// #region export

// Export writes every result sheet to path.
func Export(ctx context.Context, src Source, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	respondents, err := src.LoadRespondents(ctx)
	if err != nil {
		return err
	}
	names := make(map[string]string, len(respondents))
	for _, r := range respondents {
		names[r.ID] = r.Name
	}

	e := &exporter{f: f, style: headerStyle}
	steps := []func() error{
		func() error { return e.passA(ctx, src) },
		func() error { return e.passB(ctx, src) },
		func() error { return e.final(ctx, src, names) },
		func() error { return e.consistency(ctx, src) },
		func() error { return e.errorLog(ctx, src) },
		func() error { return e.runLog(ctx, src) },
		func() error { return e.validation(ctx, src) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(SheetFinal); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

// #endregion export

// #region sheet-writer

type exporter struct {
	f     *excelize.File
	style int
}

type sheet struct {
	f    *excelize.File
	name string
	row  int
}

func (e *exporter) sheet(name string, headers ...string) (*sheet, error) {
	if _, err := e.f.NewSheet(name); err != nil {
		return nil, fmt.Errorf("create sheet %s: %w", name, err)
	}
	for i, h := range headers {
		c, _ := excelize.CoordinatesToCellName(i+1, 1)
		e.f.SetCellValue(name, c, h)
		e.f.SetCellStyle(name, c, c, e.style)
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	e.f.SetColWidth(name, "A", last, 15)
	return &sheet{f: e.f, name: name, row: 2}, nil
}

func (s *sheet) append(values ...any) error {
	c, _ := excelize.CoordinatesToCellName(1, s.row)
	if err := s.f.SetSheetRow(s.name, c, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", s.name, s.row, err)
	}
	s.row++
	return nil
}

// #endregion sheet-writer

// #region sheets

func (e *exporter) passA(ctx context.Context, src Source) error {
	sh, err := e.sheet(SheetPassA, "ID", "Question", "Primary", "Sub", "Process", "Clarity", "Logic", "Relevance", "Evidence", "Judgment Reason")
	if err != nil {
		return err
	}
	return eachArtifact(ctx, src, diagnosis.StagePassA, func(id string, res diagnosis.PassAResult) error {
		for _, r := range res.Records {
			if err := sh.append(id, fmt.Sprintf("Q%d", r.QuestionID), r.PrimaryScore, r.SubScore, r.ProcessScore,
				r.Clarity, r.Logic, r.Relevance, r.Evidence, r.JudgmentReason); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *exporter) passB(ctx context.Context, src Source) error {
	sh, err := e.sheet(SheetPassB, "ID", "Question", "Primary", "Sub", "Process", "Difference Note")
	if err != nil {
		return err
	}
	return eachArtifact(ctx, src, diagnosis.StagePassB, func(id string, res diagnosis.PassBResult) error {
		for _, r := range res.Records {
			if err := sh.append(id, fmt.Sprintf("Q%d", r.QuestionID), r.PrimaryScore, r.SubScore, r.ProcessScore, r.DifferenceNote); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *exporter) final(ctx context.Context, src Source, names map[string]string) error {
	headers := []string{"ID", "Name", "Total", "Primary Mean", "Sub Mean", "Process Mean"}
	headers = append(headers, diagnosis.PrimaryCategories[:]...)
	headers = append(headers, diagnosis.SubCategories[:]...)
	headers = append(headers, diagnosis.ProcessCategories[:]...)
	headers = append(headers, "Quality Mean", "AI Use Level", "Summary", "Strengths", "Weaknesses", "Recommendations")

	sh, err := e.sheet(SheetFinal, headers...)
	if err != nil {
		return err
	}
	return eachArtifact(ctx, src, diagnosis.StageSynthesis, func(id string, fd diagnosis.FinalDiagnosis) error {
		s := fd.Scores
		row := []any{id, names[id], s.Total, s.PrimaryMean, s.SubMean, s.ProcessMean}
		for _, v := range s.Primary {
			row = append(row, v)
		}
		for _, v := range s.Sub {
			row = append(row, v)
		}
		for _, v := range s.Process {
			row = append(row, v)
		}
		n := fd.Narrative
		row = append(row, s.QualityMean.Overall, string(n.AIUseLevel), n.OverallSummary,
			strings.Join(n.TopStrengths, "\n"), strings.Join(n.TopWeaknesses, "\n"), strings.Join(n.Recommendations, "\n"))
		return sh.append(row...)
	})
}

func (e *exporter) consistency(ctx context.Context, src Source) error {
	sh, err := e.sheet(SheetConsistency, "ID", "Mode", "Score", "Status", "Issues", "Comment")
	if err != nil {
		return err
	}
	return eachArtifact(ctx, src, diagnosis.StageConsistency, func(id string, r diagnosis.ConsistencyReport) error {
		return sh.append(id, r.Mode, r.Score, string(r.Status), strings.Join(r.Issues, "\n"), r.Comment)
	})
}

func (e *exporter) errorLog(ctx context.Context, src Source) error {
	sh, err := e.sheet(SheetErrorLog, "Time", "ID", "Stage", "Question", "Category", "Message", "Attempt")
	if err != nil {
		return err
	}
	entries, err := src.ListFailures(ctx, logLimit)
	if err != nil {
		return err
	}
	for _, x := range entries {
		q := ""
		if x.Question > 0 {
			q = fmt.Sprintf("Q%d", x.Question)
		}
		if err := sh.append(x.CreatedAt.Format(time.RFC3339), x.RespondentID, x.Stage, q, x.Category, x.Message, x.Attempt); err != nil {
			return err
		}
	}
	return nil
}

func (e *exporter) runLog(ctx context.Context, src Source) error {
	sh, err := e.sheet(SheetRunLog, "Run ID", "Started At", "Processed", "Errors", "Skipped", "Duration (s)")
	if err != nil {
		return err
	}
	runs, err := src.ListRunLogs(ctx, logLimit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		if err := sh.append(r.RunID, r.StartedAt.Format(time.RFC3339), r.Processed, r.Errors, r.Skipped, r.Duration.Seconds()); err != nil {
			return err
		}
	}
	return nil
}

func (e *exporter) validation(ctx context.Context, src Source) error {
	sh, err := e.sheet(SheetValidation, "Time", "Row", "ID", "Reason", "Label")
	if err != nil {
		return err
	}
	entries, err := src.ListValidation(ctx)
	if err != nil {
		return err
	}
	for _, x := range entries {
		if err := sh.append(x.CreatedAt.Format(time.RFC3339), x.RowIndex, x.RespondentID, x.Reason, x.Label); err != nil {
			return err
		}
	}
	return nil
}

// eachArtifact decodes every stored artifact of a stage as T.
func eachArtifact[T any](ctx context.Context, src Source, stage diagnosis.Stage, fn func(id string, v T) error) error {
	arts, err := src.ListStageArtifacts(ctx, stage)
	if err != nil {
		return err
	}
	for _, a := range arts {
		var v T
		if err := json.Unmarshal(a.Payload, &v); err != nil {
			return fmt.Errorf("decode %s artifact of %s: %w", stage, a.RespondentID, err)
		}
		if err := fn(a.RespondentID, v); err != nil {
			return err
		}
	}
	return nil
}

// #endregion sheets
