// Package workbook moves survey data in and diagnosis results out of Excel files.
package workbook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/xuri/excelize/v2"
)

// Sheet names.
const (
	SheetRespondents = "Respondents"
	SheetQuestions   = "Questions"
	SheetPassA       = "PassA"
	SheetPassB       = "PassB"
	SheetFinal       = "Final"
	SheetConsistency = "Consistency"
	SheetErrorLog    = "ErrorLog"
	SheetRunLog      = "RunLog"
	SheetValidation  = "ValidationLog"
)

// Book is the imported survey.
type Book struct {
	Questions   []diagnosis.Question
	Respondents []diagnosis.Respondent
}

// #region import

// Import reads the Questions and Respondents sheets of an .xlsx file.
func Import(path string) (Book, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Book{}, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read extracts a Book from an open workbook. Columns are located by header,
// so their order in the sheet does not matter.
func Read(f *excelize.File) (Book, error) {
	qs, err := readQuestions(f)
	if err != nil {
		return Book{}, err
	}
	rs, err := readRespondents(f, len(qs))
	if err != nil {
		return Book{}, err
	}
	return Book{Questions: qs, Respondents: rs}, nil
}

func readQuestions(f *excelize.File) ([]diagnosis.Question, error) {
	rows, err := f.GetRows(SheetQuestions)
	if err != nil {
		return nil, fmt.Errorf("read %s sheet: %w", SheetQuestions, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s sheet is empty", SheetQuestions)
	}
	h := headerIndex(rows[0])
	for _, col := range []string{"no", "question", "primary", "sub", "process"} {
		if _, ok := h[col]; !ok {
			return nil, fmt.Errorf("%s sheet: missing column %q", SheetQuestions, col)
		}
	}

	var out []diagnosis.Question
	for i, row := range rows[1:] {
		raw := cell(row, h["no"])
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(raw), "Q"))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad question number %q", SheetQuestions, i+2, raw)
		}
		out = append(out, diagnosis.Question{
			Number:  n,
			Text:    cell(row, h["question"]),
			Primary: cell(row, h["primary"]),
			Sub:     cell(row, h["sub"]),
			Process: cell(row, h["process"]),
		})
	}
	return out, nil
}

func readRespondents(f *excelize.File, questionCount int) ([]diagnosis.Respondent, error) {
	rows, err := f.GetRows(SheetRespondents)
	if err != nil {
		return nil, fmt.Errorf("read %s sheet: %w", SheetRespondents, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	h := headerIndex(rows[0])
	if _, ok := h["id"]; !ok {
		return nil, fmt.Errorf("%s sheet: missing column %q", SheetRespondents, "id")
	}

	var out []diagnosis.Respondent
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		r := diagnosis.Respondent{
			ID:       cell(row, h["id"]),
			Name:     cellOpt(row, h, "name"),
			Status:   cellOpt(row, h, "status"),
			RowIndex: i + 2,
		}
		var rationales []string
		for q := 1; q <= questionCount; q++ {
			r.Answers = append(r.Answers, cellOpt(row, h, fmt.Sprintf("q%d", q)))
			rationales = append(rationales, cellOpt(row, h, fmt.Sprintf("r%d", q)))
		}
		if !blank(rationales) {
			r.Rationales = rationales
		}
		out = append(out, r)
	}
	return out, nil
}

func headerIndex(header []string) map[string]int {
	h := make(map[string]int, len(header))
	for i, name := range header {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return h
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func cellOpt(row []string, h map[string]int, col string) string {
	i, ok := h[col]
	if !ok {
		return ""
	}
	return cell(row, i)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// #endregion import
