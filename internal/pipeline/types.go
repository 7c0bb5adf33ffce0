package pipeline

import (
	"context"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/logging"
)

// #region store

// Store is the external row-store as seen by the orchestrator.
type Store interface {
	ReadStageArtifact(ctx context.Context, respondentID string, stage diagnosis.Stage, out any) (bool, error)
	WriteStageArtifact(ctx context.Context, respondentID string, stage diagnosis.Stage, artifact any) error
	UpdateStatus(ctx context.Context, respondentID, label string) error
	LogFailure(ctx context.Context, entry logging.FailureEntry) error
}

// #endregion store

// #region outcome

// Outcome is the result of driving one respondent.
type Outcome struct {
	RespondentID string
	Success      bool
	Skipped      bool             // already terminal, nothing was run
	StageReached diagnosis.Status // persisted status after the run
	Err          error
}

// BatchResult sums the outcomes of a batch in input order.
type BatchResult struct {
	Processed int
	Errors    int
	Skipped   int
	Outcomes  []Outcome
}

func (b *BatchResult) add(o Outcome) {
	b.Outcomes = append(b.Outcomes, o)
	switch {
	case o.Skipped:
		b.Skipped++
	case o.Success:
		b.Processed++
	default:
		b.Errors++
	}
}

// #endregion outcome

// #region events

// EventKind names a progress event.
type EventKind string

const (
	EventRespondentStarted EventKind = "respondent_started"
	EventStageDone         EventKind = "stage_done"
	EventRespondentDone    EventKind = "respondent_done"
	EventRespondentFailed  EventKind = "respondent_failed"
	EventWarning           EventKind = "warning"
)

// Event reports progress to an Observer.
type Event struct {
	Kind         EventKind        `json:"kind"`
	RespondentID string           `json:"respondent_id"`
	Stage        string           `json:"stage,omitempty"`
	Status       diagnosis.Status `json:"status,omitempty"`
	Message      string           `json:"message,omitempty"`
	Index        int              `json:"index,omitempty"`
	Total        int              `json:"total,omitempty"`
}

// Observer receives progress events. Calls are serialized.
type Observer func(Event)

// #endregion events
