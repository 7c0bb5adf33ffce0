// Package runner invokes the evaluator for one call site and retries until
// the reply parses into a validated record or the attempt bound is reached.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/evaluator"
	"github.com/AnMoreNight/Simple-AICATS/internal/logging"
	"github.com/AnMoreNight/Simple-AICATS/internal/parser"
	"go.uber.org/zap"
)

// #region collaborators

// FailureLogger receives one entry per exhausted call site.
type FailureLogger interface {
	LogFailure(ctx context.Context, entry logging.FailureEntry) error
}

// AttemptRecorder receives every attempt. Optional.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, entry logging.AttemptEntry) error
}

// #endregion collaborators

// #region runner-struct

// Runner is the bounded evaluation loop shared by every stage.
type Runner struct {
	eval        evaluator.Evaluator
	failures    FailureLogger
	attempts    AttemptRecorder
	maxAttempts int
	log         *zap.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithAttemptRecorder records every attempt, accepted or not.
func WithAttemptRecorder(rec AttemptRecorder) Option {
	return func(r *Runner) { r.attempts = rec }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = l.Named("runner") }
}

// New creates a runner. maxAttempts below 1 is treated as 1.
func New(eval evaluator.Evaluator, failures FailureLogger, maxAttempts int, opts ...Option) *Runner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	r := &Runner{
		eval:        eval,
		failures:    failures,
		maxAttempts: maxAttempts,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxAttempts returns the configured bound.
func (r *Runner) MaxAttempts() int { return r.maxAttempts }

// #endregion runner-struct

// #region exhausted

// ExhaustedError is returned once every attempt failed. It unwraps to the last failure.
type ExhaustedError struct {
	Key      string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Key, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// #endregion exhausted

// #region run

// Run sends p and parses the reply as kind. The request is identical on every
// attempt. A failure entry is logged only when all attempts fail.
func (r *Runner) Run(ctx context.Context, kind parser.Kind, p evaluator.Prompt) (parser.Record, error) {
	res := WithRetry(ctx, r.maxAttempts, func(ctx context.Context, attempt int) (parser.Record, error) {
		raw, err := r.eval.Invoke(ctx, p)
		if err != nil {
			if !errors.Is(err, diagnosis.ErrConfiguration) {
				err = &diagnosis.TransportError{Err: err}
			}
			r.recordAttempt(ctx, p, attempt, "", err)
			r.log.Debug("attempt failed",
				zap.String("call", p.Key()), zap.Int("attempt", attempt), zap.Error(err))
			return parser.Record{}, err
		}

		rec, err := parser.Parse(raw, kind)
		r.recordAttempt(ctx, p, attempt, raw, err)
		if err != nil {
			r.log.Debug("attempt rejected",
				zap.String("call", p.Key()), zap.Int("attempt", attempt), zap.Error(err))
			return parser.Record{}, err
		}
		return rec, nil
	})

	if res.OK() {
		if res.Attempts > 1 {
			r.log.Info("accepted after retry", zap.String("call", p.Key()), zap.Int("attempts", res.Attempts))
		}
		return res.Value, nil
	}
	if errors.Is(res.Err, diagnosis.ErrConfiguration) || ctx.Err() != nil {
		return parser.Record{}, res.Err
	}

	exhausted := &ExhaustedError{Key: p.Key(), Attempts: res.Attempts, Last: res.Err}
	r.log.Warn("evaluation exhausted",
		zap.String("call", p.Key()),
		zap.Int("attempts", res.Attempts),
		zap.String("category", diagnosis.Category(res.Err)),
		zap.Error(res.Err))
	r.logFailure(ctx, p, exhausted)
	return parser.Record{}, exhausted
}

// #endregion run

// #region typed-helpers

// PassA runs a pass-A call and stamps the question number.
func (r *Runner) PassA(ctx context.Context, p evaluator.Prompt) (diagnosis.PassARecord, error) {
	rec, err := r.Run(ctx, parser.KindPassA, p)
	if err != nil {
		return diagnosis.PassARecord{}, err
	}
	out := *rec.PassA
	out.QuestionID = p.Question
	return out, nil
}

// PassB runs a pass-B call and stamps the question number.
func (r *Runner) PassB(ctx context.Context, p evaluator.Prompt) (diagnosis.PassBRecord, error) {
	rec, err := r.Run(ctx, parser.KindPassB, p)
	if err != nil {
		return diagnosis.PassBRecord{}, err
	}
	out := *rec.PassB
	out.QuestionID = p.Question
	return out, nil
}

// Synthesis runs the stage-3 narrative call.
func (r *Runner) Synthesis(ctx context.Context, p evaluator.Prompt) (diagnosis.SynthesisRecord, error) {
	rec, err := r.Run(ctx, parser.KindSynthesis, p)
	if err != nil {
		return diagnosis.SynthesisRecord{}, err
	}
	return *rec.Synthesis, nil
}

// Consistency runs the stage-4 call.
func (r *Runner) Consistency(ctx context.Context, p evaluator.Prompt) (diagnosis.ConsistencyRecord, error) {
	rec, err := r.Run(ctx, parser.KindConsistency, p)
	if err != nil {
		return diagnosis.ConsistencyRecord{}, err
	}
	return *rec.Consistency, nil
}

// #endregion typed-helpers

// #region logging-helpers

func (r *Runner) recordAttempt(ctx context.Context, p evaluator.Prompt, attempt int, raw string, err error) {
	if r.attempts == nil {
		return
	}
	entry := logging.AttemptEntry{
		RespondentID: p.RespondentID,
		Stage:        p.Stage,
		Question:     p.Question,
		Attempt:      attempt,
		Accepted:     err == nil,
		Failure:      diagnosis.Category(err),
		RawReply:     raw,
	}
	if rerr := r.attempts.RecordAttempt(ctx, entry); rerr != nil {
		r.log.Warn("record attempt", zap.String("call", p.Key()), zap.Error(rerr))
	}
}

func (r *Runner) logFailure(ctx context.Context, p evaluator.Prompt, err *ExhaustedError) {
	if r.failures == nil {
		return
	}
	details, _ := json.Marshal(map[string]any{
		"call":  p.Key(),
		"error": err.Last.Error(),
	})
	entry := logging.FailureEntry{
		RespondentID: p.RespondentID,
		Stage:        p.Stage,
		Question:     p.Question,
		Category:     diagnosis.Category(err.Last),
		Message:      err.Error(),
		Attempt:      err.Attempts,
		Details:      string(details),
	}
	if lerr := r.failures.LogFailure(ctx, entry); lerr != nil {
		r.log.Error("log failure", zap.String("call", p.Key()), zap.Error(lerr))
	}
}

// #endregion logging-helpers
