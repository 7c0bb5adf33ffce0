package diagnosis

import (
	"fmt"
	"strings"
)

// #region stage

// Stage is one of the four ordered pipeline steps.
type Stage int

const (
	StagePassA Stage = iota + 1
	StagePassB
	StageSynthesis
	StageConsistency
)

// Stages lists every stage in execution order.
var Stages = []Stage{StagePassA, StagePassB, StageSynthesis, StageConsistency}

var stageNames = map[Stage]string{
	StagePassA:       "pass_a",
	StagePassB:       "pass_b",
	StageSynthesis:   "synthesis",
	StageConsistency: "consistency",
}

// String returns the artifact name used for persistence.
func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ParseStage resolves a persisted artifact name.
func ParseStage(name string) (Stage, error) {
	for st, n := range stageNames {
		if n == strings.TrimSpace(name) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Done is the status persisted after the stage succeeds.
func (s Stage) Done() Status {
	switch s {
	case StagePassA:
		return StatusStage1Done
	case StagePassB:
		return StatusStage2Done
	case StageSynthesis:
		return StatusStage3Done
	case StageConsistency:
		return StatusStage4Done
	}
	return StatusNone
}

// #endregion stage

// #region status

// Status is the persisted resumption marker of a respondent.
type Status string

const (
	StatusNone       Status = ""
	StatusStage1Done Status = "STAGE1_DONE"
	StatusStage2Done Status = "STAGE2_DONE"
	StatusStage3Done Status = "STAGE3_DONE"
	StatusStage4Done Status = "STAGE4_DONE"
)

// statusVocabulary holds every accepted spelling, keyed by its folded form.
// The Japanese labels are the ones written by earlier sheet-based runs.
var statusVocabulary = map[string]Status{
	"stage1_done":   StatusStage1Done,
	"pm1raw完了":     StatusStage1Done,
	"pm1raw完成":     StatusStage1Done,
	"stage2_done":   StatusStage2Done,
	"pm5raw完了":     StatusStage2Done,
	"pm5raw完成":     StatusStage2Done,
	"stage3_done":   StatusStage3Done,
	"pm1final完了":   StatusStage3Done,
	"pm1final完成":   StatusStage3Done,
	"stage4_done":   StatusStage4Done,
	"complete":      StatusStage4Done,
	"completed":     StatusStage4Done,
	"pm5final完了":   StatusStage4Done,
	"pm5final完成":   StatusStage4Done,
	"診断完了":          StatusStage4Done,
	"診断完成":          StatusStage4Done,
}

// ParseStatus matches a persisted label case- and whitespace-insensitively.
// Unrecognized or empty labels resolve to StatusNone.
func ParseStatus(label string) Status {
	key := strings.ToLower(strings.Join(strings.Fields(label), ""))
	if st, ok := statusVocabulary[key]; ok {
		return st
	}
	return StatusNone
}

// Terminal reports whether no further processing is needed.
func (s Status) Terminal() bool {
	return s == StatusStage4Done
}

// Completed returns how many stages the status accounts for.
func (s Status) Completed() int {
	switch s {
	case StatusStage1Done:
		return 1
	case StatusStage2Done:
		return 2
	case StatusStage3Done:
		return 3
	case StatusStage4Done:
		return 4
	}
	return 0
}

// NextStage returns the stage to execute next, or false for a terminal status.
func (s Status) NextStage() (Stage, bool) {
	n := s.Completed()
	if n >= len(Stages) {
		return 0, false
	}
	return Stages[n], true
}

// String returns a readable form; StatusNone prints as NONE.
func (s Status) String() string {
	if s == StatusNone {
		return "NONE"
	}
	return string(s)
}

// #endregion status
