// Package parser turns raw evaluator text into validated records.
//
// Parsing is deterministic and idempotent: re-serializing a successful
// Record with encoding/json and parsing it again yields the same Record.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
)

var (
	errNotObject    = errors.New("reply is not a JSON object")
	errTrailingData = errors.New("unexpected data after JSON object")
)

// #region record

// Record is a tagged variant: exactly the field matching Kind is set.
type Record struct {
	Kind        Kind
	PassA       *diagnosis.PassARecord
	PassB       *diagnosis.PassBRecord
	Synthesis   *diagnosis.SynthesisRecord
	Consistency *diagnosis.ConsistencyRecord
}

// Value returns the populated variant.
func (r Record) Value() any {
	switch r.Kind {
	case KindPassA:
		return r.PassA
	case KindPassB:
		return r.PassB
	case KindSynthesis:
		return r.Synthesis
	case KindConsistency:
		return r.Consistency
	}
	return nil
}

// MarshalJSON serializes the populated variant using the evaluator field names.
func (r Record) MarshalJSON() ([]byte, error) {
	v := r.Value()
	if v == nil {
		return nil, fmt.Errorf("marshal record: unknown kind %d", int(r.Kind))
	}
	return json.Marshal(v)
}

// #endregion record

// #region parse

// Parse decodes, repairs when needed and validates raw evaluator text.
// Failures are *diagnosis.MalformedOutputError or *diagnosis.FieldValidationError.
func Parse(raw string, kind Kind) (Record, error) {
	if !kind.valid() {
		return Record{}, fmt.Errorf("parse: unknown kind %d", int(kind))
	}

	text := StripFence(raw)
	if text == "" {
		return Record{}, &diagnosis.MalformedOutputError{Reason: "empty reply"}
	}
	obj, err := decodeObject(text)
	if err != nil {
		return Record{}, &diagnosis.MalformedOutputError{Reason: err.Error()}
	}

	spec := specs[kind]
	nums := make(map[string]float64, len(spec.numeric))
	for _, f := range spec.numeric {
		v, err := number(obj, f, spec.precision)
		if err != nil {
			return Record{}, err
		}
		nums[f.name] = v
	}
	for _, name := range spec.text {
		if strings.TrimSpace(str(obj, name)) == "" {
			return Record{}, &diagnosis.FieldValidationError{Field: name, Reason: "missing or empty"}
		}
	}

	switch kind {
	case KindPassA:
		return Record{Kind: kind, PassA: &diagnosis.PassARecord{
			PrimaryScore:   nums["primary_score"],
			SubScore:       nums["sub_score"],
			ProcessScore:   nums["process_score"],
			Clarity:        nums["aes_clarity"],
			Logic:          nums["aes_logic"],
			Relevance:      nums["aes_relevance"],
			Evidence:       strings.TrimSpace(str(obj, "evidence")),
			JudgmentReason: strings.TrimSpace(str(obj, "judgment_reason")),
		}}, nil

	case KindPassB:
		return Record{Kind: kind, PassB: &diagnosis.PassBRecord{
			PrimaryScore:   nums["primary_score"],
			SubScore:       nums["sub_score"],
			ProcessScore:   nums["process_score"],
			DifferenceNote: strings.TrimSpace(str(obj, "difference_note")),
		}}, nil

	case KindSynthesis:
		level := diagnosis.UseLevel(strings.TrimSpace(str(obj, "ai_use_level")))
		switch level {
		case diagnosis.UseLevelBasic, diagnosis.UseLevelStandard, diagnosis.UseLevelAdvanced:
		default:
			level = diagnosis.UseLevelStandard
		}
		return Record{Kind: kind, Synthesis: &diagnosis.SynthesisRecord{
			OverallSummary:  strings.TrimSpace(str(obj, "overall_summary")),
			AIUseLevel:      level,
			TopStrengths:    list(obj, "top_strengths"),
			TopWeaknesses:   list(obj, "top_weaknesses"),
			Recommendations: list(obj, "recommendations"),
		}}, nil

	case KindConsistency:
		status, ok := diagnosis.ParseConsistencyStatus(str(obj, "status"))
		if !ok {
			return Record{}, &diagnosis.FieldValidationError{
				Field:  "status",
				Reason: fmt.Sprintf("%q is not one of valid, caution, re-evaluate", str(obj, "status")),
			}
		}
		summary := strings.TrimSpace(str(obj, "summary"))
		if summary == "" {
			summary = strings.TrimSpace(str(obj, "comment"))
		}
		return Record{Kind: kind, Consistency: &diagnosis.ConsistencyRecord{
			ConsistencyScore: nums["consistency_score"],
			Status:           status,
			Issues:           list(obj, "issues"),
			Summary:          summary,
		}}, nil
	}
	return Record{}, fmt.Errorf("parse: unknown kind %d", int(kind))
}

// #endregion parse

// #region field-helpers

// number reads a required numeric field, rejecting out-of-range values and
// rounding accepted ones to the kind's precision.
func number(obj map[string]any, f numericField, precision int) (float64, error) {
	raw, ok := obj[f.name]
	if !ok || raw == nil {
		return 0, &diagnosis.FieldValidationError{Field: f.name, Reason: "missing"}
	}

	var v float64
	var err error
	switch x := raw.(type) {
	case json.Number:
		v, err = x.Float64()
	case string:
		v, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		err = fmt.Errorf("unsupported type %T", raw)
	}
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &diagnosis.FieldValidationError{Field: f.name, Reason: fmt.Sprintf("not a number: %v", raw)}
	}
	if v < f.min || v > f.max {
		return 0, &diagnosis.FieldValidationError{
			Field:  f.name,
			Reason: fmt.Sprintf("%v outside [%g, %g]", v, f.min, f.max),
		}
	}
	return Round(v, precision), nil
}

func str(obj map[string]any, key string) string {
	switch x := obj[key].(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	}
	return ""
}

// list reads an optional list of strings. Non-list values yield an empty list;
// non-string items are kept in their compact JSON form.
func list(obj map[string]any, key string) []string {
	items, ok := obj[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch x := it.(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				out = append(out, s)
			}
		case nil:
		default:
			b, err := json.Marshal(x)
			if err == nil {
				out = append(out, string(b))
			}
		}
	}
	return out
}

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// #endregion field-helpers
