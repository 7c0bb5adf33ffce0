package replay

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/AnMoreNight/Simple-AICATS/internal/consistency"
	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/evaluator"
	"github.com/AnMoreNight/Simple-AICATS/internal/pipeline"
	"github.com/AnMoreNight/Simple-AICATS/internal/runner"
	"github.com/AnMoreNight/Simple-AICATS/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var templates = runner.Templates{PassA: "a", PassB: "b", Synthesis: "s", Consistency: "c"}

func openStore(t *testing.T, name string) *store.Store {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// scoreFor gives each respondent a distinct pass-A/B score.
func scoreFor(id string) float64 {
	if id == "R001" {
		return 4
	}
	return 2
}

func liveEvaluator(_ context.Context, p evaluator.Prompt) (string, error) {
	s := scoreFor(p.RespondentID)
	switch p.Stage {
	case "pass_a":
		return fmt.Sprintf(`{"primary_score":%[1]g,"sub_score":%[1]g,"process_score":%[1]g,"aes_clarity":3,"aes_logic":3,"aes_relevance":3,"evidence":"e","judgment_reason":"j"}`, s), nil
	case "pass_b":
		return fmt.Sprintf(`{"primary_score":%[1]g,"sub_score":%[1]g,"process_score":%[1]g}`, s), nil
	case "synthesis":
		return `{"overall_summary":"ok"}`, nil
	default:
		return `{"consistency_score":0.9,"status":"valid","issues":[]}`, nil
	}
}

// recordRun produces a source store with a finished run and its attempt log.
func recordRun(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	src := openStore(t, "src.db")
	qs := []diagnosis.Question{
		{Number: 1, Text: "t1", Primary: "問題理解", Sub: "情報整理", Process: "clarity"},
		{Number: 2, Text: "t2", Primary: "論理思考", Sub: "因果推論", Process: "structure"},
	}
	rs := []diagnosis.Respondent{
		{ID: "R001", Name: "A", Answers: []string{"x", "y"}, RowIndex: 2},
		{ID: "R002", Name: "B", Answers: []string{"x", "y"}, RowIndex: 3},
	}
	require.NoError(t, src.UpsertQuestions(ctx, qs))
	require.NoError(t, src.UpsertRespondents(ctx, rs))

	prompts, err := runner.NewPromptBuilder(templates)
	require.NoError(t, err)
	v, err := consistency.NewValidator(consistency.DefaultConfig(consistency.ModeSelfReported), nil)
	require.NoError(t, err)
	orch, err := pipeline.New(pipeline.Deps{
		Store:     src,
		Runner:    runner.New(evaluator.Func(liveEvaluator), src, 1, runner.WithAttemptRecorder(src)),
		Prompts:   prompts,
		Validator: v,
		Questions: qs,
	})
	require.NoError(t, err)
	res, err := orch.RunBatch(ctx, rs)
	require.NoError(t, err)
	require.Equal(t, 2, res.Processed)
	return src
}

func fixtureFrom(t *testing.T, src *store.Store) *evaluator.Fixture {
	t.Helper()
	attempts, err := src.ListAttempts(context.Background(), store.AttemptFilter{AcceptedOnly: true})
	require.NoError(t, err)
	f := &evaluator.Fixture{Replies: map[string][]string{}}
	for _, a := range attempts {
		key := evaluator.Prompt{RespondentID: a.RespondentID, Stage: a.Stage, Question: a.Question}.Key()
		f.Replies[key] = append(f.Replies[key], a.RawReply)
	}
	return f
}

func config() Config {
	return Config{
		Templates:   templates,
		Consistency: consistency.DefaultConfig(consistency.ModeSelfReported),
		MaxAttempts: 1,
	}
}

func TestReplay_Identical(t *testing.T) {
	src := recordRun(t)
	f := fixtureFrom(t, src)

	results, sum, err := Replay(context.Background(), src, openStore(t, "scratch.db"), f, config())
	require.NoError(t, err)

	assert.Equal(t, Summary{Total: 2, Matches: 2}, sum)
	require.Len(t, results, 2)
	assert.Equal(t, "R001", results[0].RespondentID)
	assert.Equal(t, 4.0, results[0].RecordedTotal)
	assert.Equal(t, 4.0, results[0].ReplayedTotal)
	assert.Equal(t, diagnosis.ConsistencyValid, results[0].ReplayedStatus)
}

func TestReplay_DetectsDivergence(t *testing.T) {
	src := recordRun(t)
	f := fixtureFrom(t, src)
	f.Replies["R002/pass_b/Q1"] = []string{`{"primary_score":5,"sub_score":5,"process_score":5}`}

	results, sum, err := Replay(context.Background(), src, openStore(t, "scratch.db"), f, config())
	require.NoError(t, err)

	assert.Equal(t, Summary{Total: 2, Matches: 1, Diverged: 1}, sum)
	assert.True(t, results[0].Match)
	assert.False(t, results[1].Match)
	assert.NotEqual(t, results[1].RecordedTotal, results[1].ReplayedTotal)
}

func TestReplay_MissingReplyIsDivergence(t *testing.T) {
	src := recordRun(t)
	f := fixtureFrom(t, src)
	delete(f.Replies, "R001/synthesis")

	results, sum, err := Replay(context.Background(), src, openStore(t, "scratch.db"), f, config())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Diverged)
	assert.False(t, results[0].Match)
	assert.NotEmpty(t, results[0].Error)
}

func TestReplay_NothingRecorded(t *testing.T) {
	_, _, err := Replay(context.Background(), openStore(t, "empty.db"), openStore(t, "scratch.db"), &evaluator.Fixture{}, config())
	require.Error(t, err)
}
