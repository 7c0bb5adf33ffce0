// Package evaluator holds the transports used to reach the external
// text-evaluating service. Every transport returns the raw reply text; no
// transport interprets it.
package evaluator

import (
	"context"
	"fmt"
)

// #region prompt

// Prompt is one request to the evaluator. The identifying fields are carried
// for logging, fixture lookup and the gRPC metadata; they are not sent as text.
type Prompt struct {
	System       string
	User         string
	RespondentID string
	Stage        string
	Question     int
}

// Key identifies the call site, e.g. "R001/pass_a/Q3" or "R001/synthesis".
func (p Prompt) Key() string {
	if p.Question > 0 {
		return fmt.Sprintf("%s/%s/Q%d", p.RespondentID, p.Stage, p.Question)
	}
	return fmt.Sprintf("%s/%s", p.RespondentID, p.Stage)
}

// #endregion prompt

// #region interface

// Evaluator is a single blocking request/response call. Timeouts are the
// transport's concern and surface as ordinary errors.
type Evaluator interface {
	Invoke(ctx context.Context, p Prompt) (string, error)
}

// Func adapts a function to the Evaluator interface.
type Func func(ctx context.Context, p Prompt) (string, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// #endregion interface
