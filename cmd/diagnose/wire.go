package main

import (
	"context"
	"fmt"

	"github.com/AnMoreNight/Simple-AICATS/internal/config"
	"github.com/AnMoreNight/Simple-AICATS/internal/consistency"
	"github.com/AnMoreNight/Simple-AICATS/internal/evaluator"
	"github.com/AnMoreNight/Simple-AICATS/internal/runner"
	"github.com/AnMoreNight/Simple-AICATS/internal/service"
	"github.com/AnMoreNight/Simple-AICATS/internal/store"
	"github.com/AnMoreNight/Simple-AICATS/internal/validation"
	"go.uber.org/zap"
)

// #region wiring

func openStore(c config.Config) (*store.Store, error) {
	st, err := store.NewStore(c.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", c.Database.Path, err)
	}
	return st, nil
}

// buildService composes evaluator, runner, prompts and validator. The
// returned close function releases the evaluator transport.
func buildService(ctx context.Context, c config.Config, st *store.Store, log *zap.Logger) (*service.Service, func() error, error) {
	templates, err := c.TemplateFiles().Load()
	if err != nil {
		return nil, nil, err
	}
	prompts, err := runner.NewPromptBuilder(templates)
	if err != nil {
		return nil, nil, err
	}
	validator, err := consistency.NewValidator(c.ConsistencySettings(), log)
	if err != nil {
		return nil, nil, err
	}

	ev, closeEval, err := evaluator.New(ctx, c.EvaluatorSettings(), log)
	if err != nil {
		return nil, nil, err
	}
	r := runner.New(ev, st, c.Pipeline.MaxAttempts,
		runner.WithAttemptRecorder(st),
		runner.WithLogger(log))

	svc := service.New(st, r, prompts, validator,
		service.WithRules(validation.Rules{
			QuestionCount:   c.Pipeline.QuestionCount,
			MaxAnswerLength: c.Pipeline.MaxAnswerLength,
		}),
		service.WithWorkers(c.Pipeline.Workers),
		service.WithLogger(log))
	return svc, closeEval, nil
}

// #endregion wiring
