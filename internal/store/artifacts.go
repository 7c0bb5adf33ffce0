package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
)

// #region artifact-struct
// Artifact is one persisted stage output in raw form.
type Artifact struct {
	RespondentID string
	Stage        diagnosis.Stage
	Payload      json.RawMessage
	CreatedAt    time.Time
}
// #endregion artifact-struct

// #region write-artifact
// WriteStageArtifact stores a stage output, replacing any earlier one for
// the same respondent and stage.
func (s *Store) WriteStageArtifact(ctx context.Context, respondentID string, stage diagnosis.Stage, artifact any) error {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("marshal %s artifact: %w", stage, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stage_artifacts (respondent_id, stage, payload, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(respondent_id, stage) DO UPDATE SET
		   payload = excluded.payload,
		   created_at = excluded.created_at`,
		respondentID, stage.String(), string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write %s artifact for %s: %w", stage, respondentID, err)
	}
	return nil
}
// #endregion write-artifact

// #region read-artifact
// ReadStageArtifact decodes a stored stage output into out. It reports
// false with a nil error when nothing was stored.
func (s *Store) ReadStageArtifact(ctx context.Context, respondentID string, stage diagnosis.Stage, out any) (bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM stage_artifacts WHERE respondent_id = ? AND stage = ?`,
		respondentID, stage.String(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s artifact for %s: %w", stage, respondentID, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, fmt.Errorf("unmarshal %s artifact for %s: %w", stage, respondentID, err)
	}
	return true, nil
}
// #endregion read-artifact

// #region list-artifacts
// ListStageArtifacts returns every stored output of one stage, in respondent sheet order.
func (s *Store) ListStageArtifacts(ctx context.Context, stage diagnosis.Stage) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.respondent_id, a.payload, a.created_at
		 FROM stage_artifacts a JOIN respondents r ON r.id = a.respondent_id
		 WHERE a.stage = ? ORDER BY r.row_index, r.id`, stage.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s artifacts: %w", stage, err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		var payload, created string
		if err := rows.Scan(&a.RespondentID, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.Stage = stage
		a.Payload = json.RawMessage(payload)
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, a)
	}
	return out, rows.Err()
}
// #endregion list-artifacts
