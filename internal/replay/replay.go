// Package replay re-runs recorded respondents against a fixture evaluator in
// a scratch store and compares the outcome with what was recorded. A scoring
// change that moves any total or consistency status shows up as a divergence.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/AnMoreNight/Simple-AICATS/internal/consistency"
	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/evaluator"
	"github.com/AnMoreNight/Simple-AICATS/internal/pipeline"
	"github.com/AnMoreNight/Simple-AICATS/internal/runner"
	"github.com/AnMoreNight/Simple-AICATS/internal/store"
)

// #region types

// Source is the recorded run.
type Source interface {
	LoadQuestions(ctx context.Context) ([]diagnosis.Question, error)
	LoadRespondents(ctx context.Context) ([]diagnosis.Respondent, error)
	ListStageArtifacts(ctx context.Context, stage diagnosis.Stage) ([]store.Artifact, error)
}

// Config bundles what the pipeline needs besides the evaluator.
type Config struct {
	Templates   runner.Templates
	Consistency consistency.Config
	MaxAttempts int
}

// Result compares one respondent.
type Result struct {
	RespondentID   string                      `json:"respondent_id"`
	RecordedTotal  float64                     `json:"recorded_total"`
	ReplayedTotal  float64                     `json:"replayed_total"`
	RecordedStatus diagnosis.ConsistencyStatus `json:"recorded_status,omitempty"`
	ReplayedStatus diagnosis.ConsistencyStatus `json:"replayed_status,omitempty"`
	Error          string                      `json:"error,omitempty"`
	Match          bool                        `json:"match"`
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Total    int `json:"total"`
	Matches  int `json:"matches"`
	Diverged int `json:"diverged"`
}

type recorded struct {
	total  float64
	status diagnosis.ConsistencyStatus
}

// #endregion types

// #region replay

// Replay copies every respondent with a recorded diagnosis into scratch with
// its status cleared, runs the full pipeline against f, and compares totals
// and consistency statuses. A respondent recorded without a consistency
// report is compared on its total alone. scratch must be empty.
func Replay(ctx context.Context, src Source, scratch *store.Store, f *evaluator.Fixture, cfg Config) ([]Result, Summary, error) {
	want, err := loadRecorded(ctx, src)
	if err != nil {
		return nil, Summary{}, err
	}
	if len(want) == 0 {
		return nil, Summary{}, fmt.Errorf("no recorded diagnoses to replay")
	}

	questions, err := src.LoadQuestions(ctx)
	if err != nil {
		return nil, Summary{}, err
	}
	all, err := src.LoadRespondents(ctx)
	if err != nil {
		return nil, Summary{}, err
	}
	var respondents []diagnosis.Respondent
	for _, r := range all {
		if _, ok := want[r.ID]; ok {
			r.Status = ""
			respondents = append(respondents, r)
		}
	}

	if err := scratch.UpsertQuestions(ctx, questions); err != nil {
		return nil, Summary{}, err
	}
	if err := scratch.UpsertRespondents(ctx, respondents); err != nil {
		return nil, Summary{}, err
	}

	prompts, err := runner.NewPromptBuilder(cfg.Templates)
	if err != nil {
		return nil, Summary{}, err
	}
	validator, err := consistency.NewValidator(cfg.Consistency, nil)
	if err != nil {
		return nil, Summary{}, err
	}
	orch, err := pipeline.New(pipeline.Deps{
		Store:     scratch,
		Runner:    runner.New(evaluator.NewReplayer(f), scratch, cfg.MaxAttempts),
		Prompts:   prompts,
		Validator: validator,
		Questions: questions,
	})
	if err != nil {
		return nil, Summary{}, err
	}
	batch, err := orch.RunBatch(ctx, respondents)
	if err != nil {
		return nil, Summary{}, err
	}

	got, err := loadRecorded(ctx, scratch)
	if err != nil {
		return nil, Summary{}, err
	}

	results := make([]Result, 0, len(batch.Outcomes))
	var sum Summary
	for _, out := range batch.Outcomes {
		w := want[out.RespondentID]
		res := Result{
			RespondentID:   out.RespondentID,
			RecordedTotal:  w.total,
			RecordedStatus: w.status,
		}
		if out.Err != nil {
			res.Error = out.Err.Error()
		}
		if g, ok := got[out.RespondentID]; ok {
			res.ReplayedTotal = g.total
			res.ReplayedStatus = g.status
			res.Match = out.Success && sameTotal(w.total, g.total) && (w.status == "" || w.status == g.status)
		}
		sum.Total++
		if res.Match {
			sum.Matches++
		} else {
			sum.Diverged++
		}
		results = append(results, res)
	}
	return results, sum, nil
}

// loadRecorded reads final totals and consistency statuses keyed by respondent.
func loadRecorded(ctx context.Context, src Source) (map[string]recorded, error) {
	finals, err := src.ListStageArtifacts(ctx, diagnosis.StageSynthesis)
	if err != nil {
		return nil, err
	}
	out := make(map[string]recorded, len(finals))
	for _, a := range finals {
		var fd diagnosis.FinalDiagnosis
		if err := json.Unmarshal(a.Payload, &fd); err != nil {
			return nil, fmt.Errorf("decode diagnosis of %s: %w", a.RespondentID, err)
		}
		out[a.RespondentID] = recorded{total: fd.Scores.Total}
	}

	reports, err := src.ListStageArtifacts(ctx, diagnosis.StageConsistency)
	if err != nil {
		return nil, err
	}
	for _, a := range reports {
		rec, ok := out[a.RespondentID]
		if !ok {
			continue
		}
		var rep diagnosis.ConsistencyReport
		if err := json.Unmarshal(a.Payload, &rep); err != nil {
			return nil, fmt.Errorf("decode consistency of %s: %w", a.RespondentID, err)
		}
		rec.status = rep.Status
		out[a.RespondentID] = rec
	}
	return out, nil
}

// sameTotal compares two-decimal totals.
func sameTotal(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}

// #endregion replay
