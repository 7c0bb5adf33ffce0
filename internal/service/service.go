// Package service is the batch entry point: it loads the survey from the
// store, gates it through structural validation, drives the pipeline and
// records a run log.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/consistency"
	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/logging"
	"github.com/AnMoreNight/Simple-AICATS/internal/pipeline"
	"github.com/AnMoreNight/Simple-AICATS/internal/runner"
	"github.com/AnMoreNight/Simple-AICATS/internal/validation"
	"go.uber.org/zap"
)

// ErrBusy is returned by Run while another run is in progress.
var ErrBusy = errors.New("a diagnosis run is already in progress")

// #region store

// Store is everything the service reads and writes.
type Store interface {
	pipeline.Store
	LoadQuestions(ctx context.Context) ([]diagnosis.Question, error)
	LoadRespondents(ctx context.Context) ([]diagnosis.Respondent, error)
	LogValidation(ctx context.Context, entries []logging.ValidationEntry) error
	WriteRunLog(ctx context.Context, rl diagnosis.RunLog) error
}

// #endregion store

// #region service-struct

// Service runs batches. It is safe for concurrent use; only one batch runs at a time.
type Service struct {
	store     Store
	runner    *runner.Runner
	prompts   *runner.PromptBuilder
	validator *consistency.Validator
	rules     validation.Rules
	workers   int
	log       *zap.Logger
	now       func() time.Time

	running atomic.Bool
}

// Option customizes a Service.
type Option func(*Service)

// WithRules sets the structural validation rules.
func WithRules(r validation.Rules) Option {
	return func(s *Service) { s.rules = r }
}

// WithWorkers sets the pipeline worker count.
func WithWorkers(n int) Option {
	return func(s *Service) { s.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides time.Now for run ids and durations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(st Store, r *runner.Runner, p *runner.PromptBuilder, v *consistency.Validator, opts ...Option) *Service {
	s := &Service{
		store:     st,
		runner:    r,
		prompts:   p,
		validator: v,
		rules:     validation.Rules{QuestionCount: 6, MaxAnswerLength: 400},
		workers:   1,
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// #endregion service-struct

// #region run

// Summary is the outcome of one Run.
type Summary struct {
	RunID   string
	Invalid int
	Batch   pipeline.BatchResult
	RunLog  diagnosis.RunLog
}

// Run diagnoses every pending respondent. Respondents that fail structural
// validation are logged, labelled and left out of the batch. A run log row
// is written whenever the batch itself started, even when it was cut short.
func (s *Service) Run(ctx context.Context, obs pipeline.Observer) (Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Summary{}, ErrBusy
	}
	defer s.running.Store(false)

	started := s.now()
	sum := Summary{RunID: diagnosis.NewRunID(started)}
	log := s.log.With(zap.String("run", sum.RunID))
	emit := func(e pipeline.Event) {
		if obs != nil {
			obs(e)
		}
	}

	questions, err := s.store.LoadQuestions(ctx)
	if err != nil {
		return sum, fmt.Errorf("load questions: %w", err)
	}
	all, err := s.store.LoadRespondents(ctx)
	if err != nil {
		return sum, fmt.Errorf("load respondents: %w", err)
	}

	var pending []diagnosis.Respondent
	for _, r := range all {
		if !diagnosis.ParseStatus(r.Status).Terminal() {
			pending = append(pending, r)
		}
	}
	skipped := len(all) - len(pending)
	log.Info("respondents loaded", zap.Int("total", len(all)), zap.Int("pending", len(pending)))

	vr := validation.Validate(pending, s.rules)
	sum.Invalid = len(vr.Issues)
	if err := s.recordIssues(ctx, vr.Issues, emit); err != nil {
		return sum, err
	}
	if len(vr.Valid) == 0 {
		log.Info("no valid respondents to process")
		return sum, nil
	}

	orch, err := pipeline.New(pipeline.Deps{
		Store:     s.store,
		Runner:    s.runner,
		Prompts:   s.prompts,
		Validator: s.validator,
		Questions: questions,
	},
		pipeline.WithWorkers(s.workers),
		pipeline.WithObserver(obs),
		pipeline.WithLogger(s.log),
	)
	if err != nil {
		return sum, err
	}

	res, runErr := orch.RunBatch(ctx, vr.Valid)
	sum.Batch = res
	sum.RunLog = diagnosis.RunLog{
		RunID:     sum.RunID,
		Processed: res.Processed,
		Errors:    res.Errors,
		Skipped:   skipped + res.Skipped,
		StartedAt: started,
		Duration:  s.now().Sub(started),
	}
	// The run log outlives a cancelled batch context.
	if err := s.store.WriteRunLog(context.WithoutCancel(ctx), sum.RunLog); err != nil {
		log.Error("write run log", zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("write run log: %w", err)
		}
	}
	log.Info("run finished",
		zap.Int("processed", res.Processed),
		zap.Int("errors", res.Errors),
		zap.Int("invalid", sum.Invalid),
		zap.Duration("duration", sum.RunLog.Duration))
	return sum, runErr
}

func (s *Service) recordIssues(ctx context.Context, issues []*validation.Issue, emit pipeline.Observer) error {
	if len(issues) == 0 {
		return nil
	}
	entries := make([]logging.ValidationEntry, 0, len(issues))
	for _, is := range issues {
		entries = append(entries, logging.ValidationEntry{
			RespondentID: is.RespondentID,
			RowIndex:     is.RowIndex,
			Reason:       is.Reason,
			Label:        is.Label,
		})
		s.log.Warn("respondent failed validation",
			zap.String("respondent", is.RespondentID),
			zap.Int("row", is.RowIndex),
			zap.String("reason", is.Reason))
		emit(pipeline.Event{Kind: pipeline.EventWarning, RespondentID: is.RespondentID, Message: is.Reason})

		if is.RespondentID == "" {
			continue
		}
		if err := s.store.UpdateStatus(ctx, is.RespondentID, is.Label); err != nil {
			return fmt.Errorf("label invalid respondent %s: %w", is.RespondentID, err)
		}
	}
	if err := s.store.LogValidation(ctx, entries); err != nil {
		return fmt.Errorf("log validation issues: %w", err)
	}
	return nil
}

// #endregion run

// #region status

// Status is a snapshot of the respondent table.
type Status struct {
	Total     int  `json:"total"`
	Pending   int  `json:"pending"`
	Completed int  `json:"completed"`
	Running   bool `json:"running"`
}

// Status counts respondents by whether they reached a terminal stage.
func (s *Service) Status(ctx context.Context) (Status, error) {
	rs, err := s.store.LoadRespondents(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("load respondents: %w", err)
	}
	st := Status{Total: len(rs), Running: s.running.Load()}
	for _, r := range rs {
		if diagnosis.ParseStatus(r.Status).Terminal() {
			st.Completed++
		}
	}
	st.Pending = st.Total - st.Completed
	return st, nil
}

// Running reports whether a batch is in progress.
func (s *Service) Running() bool { return s.running.Load() }

// #endregion status
