package pipeline

import (
	"context"
	"errors"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// #region run-batch

// RunBatch drives every respondent in list order. A failed respondent is
// counted and the batch moves on; a configuration error or a cancelled
// context stops the batch and is returned with the partial result.
func (o *Orchestrator) RunBatch(ctx context.Context, respondents []diagnosis.Respondent) (BatchResult, error) {
	if o.workers > 1 {
		return o.runConcurrent(ctx, respondents)
	}

	var res BatchResult
	for i, r := range respondents {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out := o.RunForRespondent(ctx, r)
		res.add(out)
		o.progress(i, len(respondents), out)
		if errors.Is(out.Err, diagnosis.ErrConfiguration) {
			return res, out.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	o.log.Info("batch done",
		zap.Int("processed", res.Processed),
		zap.Int("errors", res.Errors),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// runConcurrent shares respondents across a bounded worker pool. Each
// respondent is owned by exactly one worker, so its status updates never race.
func (o *Orchestrator) runConcurrent(ctx context.Context, respondents []diagnosis.Respondent) (BatchResult, error) {
	outcomes := make([]Outcome, len(respondents))
	ran := make([]bool, len(respondents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, r := range respondents {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}
			out := o.RunForRespondent(gctx, r)
			outcomes[i] = out
			ran[i] = true
			o.progress(i, len(respondents), out)
			if errors.Is(out.Err, diagnosis.ErrConfiguration) {
				return out.Err
			}
			return nil
		})
	}
	err := g.Wait()

	var res BatchResult
	for i, out := range outcomes {
		if ran[i] {
			res.add(out)
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		o.log.Info("batch done",
			zap.Int("workers", o.workers),
			zap.Int("processed", res.Processed),
			zap.Int("errors", res.Errors),
			zap.Int("skipped", res.Skipped))
	}
	return res, err
}

func (o *Orchestrator) progress(i, total int, out Outcome) {
	if !out.Success {
		return
	}
	o.emit(Event{
		Kind:         EventRespondentDone,
		RespondentID: out.RespondentID,
		Status:       out.StageReached,
		Index:        i + 1,
		Total:        total,
	})
}

// #endregion run-batch
