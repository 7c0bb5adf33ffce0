// Package pipeline drives respondents through the four diagnosis stages,
// persisting each stage's artifact and status so an interrupted run resumes
// at the first unfinished stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/consistency"
	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/logging"
	"github.com/AnMoreNight/Simple-AICATS/internal/runner"
	"github.com/AnMoreNight/Simple-AICATS/internal/scoring"
	"go.uber.org/zap"
)

// #region orchestrator-struct

// Deps are the collaborators every orchestrator needs.
type Deps struct {
	Store      Store
	Runner     *runner.Runner
	Prompts    *runner.PromptBuilder
	Aggregator *scoring.Aggregator
	Validator  *consistency.Validator
	Questions  []diagnosis.Question
}

// Orchestrator runs the stage state machine.
type Orchestrator struct {
	store     Store
	runner    *runner.Runner
	prompts   *runner.PromptBuilder
	agg       *scoring.Aggregator
	validator *consistency.Validator
	questions []diagnosis.Question
	workers   int
	log       *zap.Logger

	mu       sync.Mutex
	observer Observer
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers processes up to n respondents concurrently. n <= 1 is sequential.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithObserver receives progress events.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = l.Named("pipeline") }
}

// #endregion orchestrator-struct

// #region constructor

// New checks the static configuration before any respondent is touched.
// Missing collaborators or an empty question set are configuration errors.
func New(d Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case d.Store == nil:
		return nil, &diagnosis.ConfigurationError{Key: "database.path", Reason: "no store"}
	case d.Runner == nil:
		return nil, &diagnosis.ConfigurationError{Key: "evaluator.provider", Reason: "no evaluation runner"}
	case d.Prompts == nil:
		return nil, &diagnosis.ConfigurationError{Key: "prompts", Reason: "no prompt builder"}
	case d.Validator == nil:
		return nil, &diagnosis.ConfigurationError{Key: "consistency.mode", Reason: "no consistency validator"}
	case len(d.Questions) == 0:
		return nil, &diagnosis.ConfigurationError{Key: "questions", Reason: "question set is empty"}
	}

	qs := make([]diagnosis.Question, len(d.Questions))
	copy(qs, d.Questions)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Number < qs[j].Number })

	o := &Orchestrator{
		store:     d.Store,
		runner:    d.Runner,
		prompts:   d.Prompts,
		agg:       d.Aggregator,
		validator: d.Validator,
		questions: qs,
		workers:   1,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.agg == nil {
		o.agg = scoring.NewAggregator(o.log)
	}
	return o, nil
}

// Questions returns the ordered question set.
func (o *Orchestrator) Questions() []diagnosis.Question { return o.questions }

// #endregion constructor

// #region run-respondent

// artifacts carries the outputs available to later stages.
type artifacts struct {
	passA diagnosis.PassAResult
	passB diagnosis.PassBResult
	final diagnosis.FinalDiagnosis
}

// RunForRespondent resumes r at the stage after its persisted status and runs
// to completion or to the first failing stage. A failed stage writes nothing
// and leaves the status where it was.
func (o *Orchestrator) RunForRespondent(ctx context.Context, r diagnosis.Respondent) Outcome {
	status := diagnosis.ParseStatus(r.Status)
	out := Outcome{RespondentID: r.ID, StageReached: status}

	next, ok := status.NextStage()
	if !ok {
		out.Success = true
		out.Skipped = true
		return out
	}

	log := o.log.With(zap.String("respondent", r.ID))
	log.Info("resume", zap.Stringer("status", status), zap.Stringer("stage", next))
	o.emit(Event{Kind: EventRespondentStarted, RespondentID: r.ID, Stage: next.String(), Status: status})

	var art artifacts
	if err := o.loadInputs(ctx, r.ID, next, &art); err != nil {
		return o.fail(ctx, out, next, err)
	}

	for stage := next; stage <= diagnosis.StageConsistency; stage++ {
		if err := ctx.Err(); err != nil {
			out.Err = err
			return out
		}

		var artifact any
		var err error
		switch stage {
		case diagnosis.StagePassA:
			art.passA, err = o.runPassA(ctx, r)
			artifact = art.passA
		case diagnosis.StagePassB:
			art.passB, err = o.runPassB(ctx, r, art.passA)
			artifact = art.passB
		case diagnosis.StageSynthesis:
			art.final, err = o.runSynthesis(ctx, r, art.passA, art.passB)
			artifact = art.final
		case diagnosis.StageConsistency:
			artifact, err = o.runConsistency(ctx, r, art)
		}
		if err != nil {
			return o.fail(ctx, out, stage, err)
		}

		if err := o.store.WriteStageArtifact(ctx, r.ID, stage, artifact); err != nil {
			return o.fail(ctx, out, stage, err)
		}
		if err := o.store.UpdateStatus(ctx, r.ID, string(stage.Done())); err != nil {
			return o.fail(ctx, out, stage, err)
		}
		out.StageReached = stage.Done()
		log.Debug("stage done", zap.Stringer("stage", stage))
		o.emit(Event{Kind: EventStageDone, RespondentID: r.ID, Stage: stage.String(), Status: out.StageReached})
	}

	out.Success = true
	return out
}

// loadInputs reads the persisted artifacts a resumed run needs.
func (o *Orchestrator) loadInputs(ctx context.Context, id string, next diagnosis.Stage, art *artifacts) error {
	type input struct {
		stage diagnosis.Stage
		dst   any
	}
	var need []input
	if next > diagnosis.StagePassA {
		need = append(need, input{diagnosis.StagePassA, &art.passA})
	}
	if next > diagnosis.StagePassB {
		need = append(need, input{diagnosis.StagePassB, &art.passB})
	}
	if next > diagnosis.StageSynthesis {
		need = append(need, input{diagnosis.StageSynthesis, &art.final})
	}
	for _, in := range need {
		ok, err := o.store.ReadStageArtifact(ctx, id, in.stage, in.dst)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("resume %s at %s: no persisted %s artifact", id, next, in.stage)
		}
	}
	return nil
}

// #endregion run-respondent

// #region stages

func (o *Orchestrator) runPassA(ctx context.Context, r diagnosis.Respondent) (diagnosis.PassAResult, error) {
	res := diagnosis.PassAResult{Records: make([]diagnosis.PassARecord, 0, len(o.questions))}
	for i, q := range o.questions {
		rec, err := o.runner.PassA(ctx, o.prompts.PassA(r, q, i))
		if err != nil {
			return diagnosis.PassAResult{}, err
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func (o *Orchestrator) runPassB(ctx context.Context, r diagnosis.Respondent, passA diagnosis.PassAResult) (diagnosis.PassBResult, error) {
	refs := passA.ByQuestion()
	res := diagnosis.PassBResult{Records: make([]diagnosis.PassBRecord, 0, len(o.questions))}
	for i, q := range o.questions {
		ref, ok := refs[q.Number]
		if !ok {
			return diagnosis.PassBResult{}, fmt.Errorf("pass_b %s: no pass_a record for %s", r.ID, q.ID())
		}
		rec, err := o.runner.PassB(ctx, o.prompts.PassB(r, q, i, ref))
		if err != nil {
			return diagnosis.PassBResult{}, err
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func (o *Orchestrator) runSynthesis(ctx context.Context, r diagnosis.Respondent, passA diagnosis.PassAResult, passB diagnosis.PassBResult) (diagnosis.FinalDiagnosis, error) {
	agg, err := o.agg.Aggregate(r.ID, o.questions, scoring.Combine(passA, passB))
	if err != nil {
		return diagnosis.FinalDiagnosis{}, err
	}
	narrative, err := o.runner.Synthesis(ctx, o.prompts.Synthesis(r, agg))
	if err != nil {
		return diagnosis.FinalDiagnosis{}, err
	}
	return diagnosis.FinalDiagnosis{
		Scores:    agg,
		Narrative: narrative,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (o *Orchestrator) runConsistency(ctx context.Context, r diagnosis.Respondent, art artifacts) (diagnosis.ConsistencyReport, error) {
	rec, err := o.runner.Consistency(ctx, o.prompts.Consistency(r, art.final, art.passA, art.passB))
	if err != nil {
		return diagnosis.ConsistencyReport{}, err
	}
	report, res := o.validator.BuildReport(r.ID, rec, o.questions, art.passA, art.passB)
	for _, w := range res.Warnings {
		o.emit(Event{Kind: EventWarning, RespondentID: r.ID, Stage: diagnosis.StageConsistency.String(), Message: w})
	}
	return report, nil
}

// #endregion stages

// #region failure

// fail logs a stage abort. Exhausted evaluator calls are already in the
// error log, so only other failures are written here.
func (o *Orchestrator) fail(ctx context.Context, out Outcome, stage diagnosis.Stage, err error) Outcome {
	out.Err = err
	o.log.Warn("stage aborted",
		zap.String("respondent", out.RespondentID),
		zap.Stringer("stage", stage),
		zap.String("category", diagnosis.Category(err)),
		zap.Error(err))

	var exhausted *runner.ExhaustedError
	if !errors.As(err, &exhausted) && !errors.Is(err, diagnosis.ErrConfiguration) && ctx.Err() == nil {
		entry := logging.FailureEntry{
			RespondentID: out.RespondentID,
			Stage:        stage.String(),
			Category:     diagnosis.Category(err),
			Message:      err.Error(),
			Attempt:      1,
		}
		if lerr := o.store.LogFailure(ctx, entry); lerr != nil {
			o.log.Error("log failure", zap.String("respondent", out.RespondentID), zap.Error(lerr))
		}
	}
	o.emit(Event{Kind: EventRespondentFailed, RespondentID: out.RespondentID, Stage: stage.String(), Status: out.StageReached, Message: err.Error()})
	return out
}

// #endregion failure

// #region emit

func (o *Orchestrator) emit(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.observer != nil {
		o.observer(e)
	}
}

// #endregion emit
