package parser

import "fmt"

// #region kind

// Kind is the closed set of evaluation kinds the parser understands.
type Kind int

const (
	KindPassA Kind = iota + 1
	KindPassB
	KindSynthesis
	KindConsistency
)

func (k Kind) String() string {
	if k.valid() {
		return specs[k].name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) valid() bool {
	return k >= KindPassA && k <= KindConsistency
}

// Precision returns the number of decimal places numeric fields are rounded to.
func (k Kind) Precision() int {
	if !k.valid() {
		return 0
	}
	return specs[k].precision
}

// #endregion kind

// #region field-tables

type numericField struct {
	name     string
	min, max float64
}

type kindSpec struct {
	name      string
	precision int
	numeric   []numericField
	text      []string // required, non-empty
}

func scoreField(name string) numericField {
	return numericField{name: name, min: 1.0, max: 5.0}
}

var specs = [...]kindSpec{
	KindPassA: {
		name:      "pass_a",
		precision: 1,
		numeric: []numericField{
			scoreField("primary_score"),
			scoreField("sub_score"),
			scoreField("process_score"),
			scoreField("aes_clarity"),
			scoreField("aes_logic"),
			scoreField("aes_relevance"),
		},
		text: []string{"evidence", "judgment_reason"},
	},
	KindPassB: {
		name:      "pass_b",
		precision: 1,
		numeric: []numericField{
			scoreField("primary_score"),
			scoreField("sub_score"),
			scoreField("process_score"),
		},
	},
	KindSynthesis: {
		name: "synthesis",
		text: []string{"overall_summary"},
	},
	KindConsistency: {
		name:      "consistency",
		precision: 2,
		numeric: []numericField{
			{name: "consistency_score", min: 0.0, max: 1.0},
		},
	},
}

// #endregion field-tables
