package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/logging"
	"github.com/brianvoe/gofakeit/v6"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fakeRespondents(n int) []diagnosis.Respondent {
	f := gofakeit.New(42)
	out := make([]diagnosis.Respondent, n)
	for i := range out {
		answers := make([]string, 6)
		for j := range answers {
			answers[j] = f.Sentence(8)
		}
		out[i] = diagnosis.Respondent{
			ID:       fmt.Sprintf("R%03d", i+1),
			Name:     f.Name(),
			Answers:  answers,
			RowIndex: i + 2,
		}
	}
	return out
}

func TestRespondentRoundTrip(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	in := fakeRespondents(3)
	in[1].Rationales = []string{"because", "", "see above"}

	if err := s.UpsertRespondents(ctx, in); err != nil {
		t.Fatalf("UpsertRespondents: %v", err)
	}
	got, err := s.LoadRespondents(ctx)
	if err != nil {
		t.Fatalf("LoadRespondents: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 respondents, got %d", len(got))
	}
	for i := range in {
		if got[i].ID != in[i].ID || got[i].Name != in[i].Name {
			t.Fatalf("row %d: got %s/%s, want %s/%s", i, got[i].ID, got[i].Name, in[i].ID, in[i].Name)
		}
		if len(got[i].Answers) != 6 || got[i].Answers[5] != in[i].Answers[5] {
			t.Fatalf("row %d: answers not preserved", i)
		}
	}
	if len(got[1].Rationales) != 3 || got[1].Rationales[2] != "see above" {
		t.Fatalf("rationales not preserved: %v", got[1].Rationales)
	}
	if got[0].Rationales != nil {
		t.Fatalf("expected nil rationales, got %v", got[0].Rationales)
	}
}

func TestReimportKeepsStatus(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	rs := fakeRespondents(1)

	if err := s.UpsertRespondents(ctx, rs); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStatus(ctx, rs[0].ID, string(diagnosis.StatusStage2Done)); err != nil {
		t.Fatal(err)
	}

	rs[0].Name = "Renamed"
	if err := s.UpsertRespondents(ctx, rs); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadRespondent(ctx, rs[0].ID)
	if err != nil {
		t.Fatalf("LoadRespondent: %v", err)
	}
	if got.Name != "Renamed" {
		t.Fatalf("expected name refreshed, got %s", got.Name)
	}
	if got.Status != string(diagnosis.StatusStage2Done) {
		t.Fatalf("expected status kept, got %q", got.Status)
	}
}

func TestUnknownRespondent(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	if _, err := s.LoadRespondent(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateStatus(ctx, "nope", "STAGE1_DONE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQuestionsOrdered(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	qs := []diagnosis.Question{
		{Number: 3, Text: "c", Primary: "問題理解", Sub: "情報整理", Process: "Problem Understanding"},
		{Number: 1, Text: "a", Primary: "論理思考", Sub: "情報整理", Process: "Hypothesis Building"},
		{Number: 2, Text: "b", Primary: "仮説構築", Sub: "仮説検証", Process: "Solution Design"},
	}
	if err := s.UpsertQuestions(ctx, qs); err != nil {
		t.Fatalf("UpsertQuestions: %v", err)
	}
	qs[0].Text = "c2"
	if err := s.UpsertQuestions(ctx, qs[:1]); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadQuestions(ctx)
	if err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(got))
	}
	for i, q := range got {
		if q.Number != i+1 {
			t.Fatalf("expected ascending order, got %d at %d", q.Number, i)
		}
	}
	if got[2].Text != "c2" {
		t.Fatalf("expected updated text, got %s", got[2].Text)
	}
}

func TestStageArtifacts(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	rs := fakeRespondents(2)
	if err := s.UpsertRespondents(ctx, rs); err != nil {
		t.Fatal(err)
	}

	var missing diagnosis.PassAResult
	ok, err := s.ReadStageArtifact(ctx, rs[0].ID, diagnosis.StagePassA, &missing)
	if err != nil || ok {
		t.Fatalf("expected no artifact, got ok=%v err=%v", ok, err)
	}

	first := diagnosis.PassAResult{Records: []diagnosis.PassARecord{{QuestionID: 1, PrimaryScore: 4.5, Evidence: "x"}}}
	if err := s.WriteStageArtifact(ctx, rs[0].ID, diagnosis.StagePassA, first); err != nil {
		t.Fatalf("WriteStageArtifact: %v", err)
	}
	second := diagnosis.PassAResult{Records: []diagnosis.PassARecord{{QuestionID: 1, PrimaryScore: 2.0}}}
	if err := s.WriteStageArtifact(ctx, rs[0].ID, diagnosis.StagePassA, second); err != nil {
		t.Fatalf("WriteStageArtifact overwrite: %v", err)
	}

	var got diagnosis.PassAResult
	ok, err = s.ReadStageArtifact(ctx, rs[0].ID, diagnosis.StagePassA, &got)
	if err != nil || !ok {
		t.Fatalf("ReadStageArtifact: ok=%v err=%v", ok, err)
	}
	if len(got.Records) != 1 || got.Records[0].PrimaryScore != 2.0 {
		t.Fatalf("expected overwritten artifact, got %+v", got)
	}

	if err := s.WriteStageArtifact(ctx, rs[1].ID, diagnosis.StagePassA, first); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListStageArtifacts(ctx, diagnosis.StagePassA)
	if err != nil {
		t.Fatalf("ListStageArtifacts: %v", err)
	}
	if len(list) != 2 || list[0].RespondentID != rs[0].ID {
		t.Fatalf("unexpected listing: %+v", list)
	}
	other, err := s.ListStageArtifacts(ctx, diagnosis.StagePassB)
	if err != nil || len(other) != 0 {
		t.Fatalf("expected no pass_b artifacts, got %d err=%v", len(other), err)
	}
}

func TestLogsAndRunLog(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		err := s.RecordAttempt(ctx, logging.AttemptEntry{
			RespondentID: "R001", Stage: "pass_a", Question: 1, Attempt: i,
			Accepted: i == 3, RawReply: fmt.Sprintf("reply-%d", i),
		})
		if err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}
	all, err := s.ListAttempts(ctx, AttemptFilter{})
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(all) != 3 || all[0].Attempt != 1 {
		t.Fatalf("unexpected attempts: %+v", all)
	}
	accepted, err := s.ListAttempts(ctx, AttemptFilter{RespondentID: "R001", AcceptedOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(accepted) != 1 || accepted[0].RawReply != "reply-3" {
		t.Fatalf("unexpected accepted attempts: %+v", accepted)
	}

	if err := s.LogFailure(ctx, logging.FailureEntry{
		RespondentID: "R002", Stage: "synthesis", Category: "MALFORMED_OUTPUT", Message: "bad", Attempt: 3,
	}); err != nil {
		t.Fatalf("LogFailure: %v", err)
	}
	failures, err := s.ListFailures(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 1 || failures[0].Category != "MALFORMED_OUTPUT" || failures[0].Stage != "synthesis" {
		t.Fatalf("unexpected failures: %+v", failures)
	}

	if err := s.LogValidation(ctx, []logging.ValidationEntry{
		{RespondentID: "R003", RowIndex: 4, Reason: "missing name", Label: "入力不足により無効"},
	}); err != nil {
		t.Fatalf("LogValidation: %v", err)
	}
	issues, err := s.ListValidation(ctx)
	if err != nil || len(issues) != 1 || issues[0].Label != "入力不足により無効" {
		t.Fatalf("unexpected validation log: %+v err=%v", issues, err)
	}

	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	rl := diagnosis.RunLog{RunID: diagnosis.NewRunID(started), Processed: 5, Errors: 1, Skipped: 2, StartedAt: started, Duration: 1500 * time.Millisecond}
	if err := s.WriteRunLog(ctx, rl); err != nil {
		t.Fatalf("WriteRunLog: %v", err)
	}
	runs, err := s.ListRunLogs(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].RunID != "RUN_20260301_093000" || runs[0].Duration != 1500*time.Millisecond || !runs[0].StartedAt.Equal(started) {
		t.Fatalf("unexpected run log: %+v", runs[0])
	}
}
