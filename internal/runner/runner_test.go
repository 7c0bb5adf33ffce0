package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/evaluator"
	"github.com/AnMoreNight/Simple-AICATS/internal/logging"
	"github.com/AnMoreNight/Simple-AICATS/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region fakes

type scripted struct {
	replies []string
	errs    []error
	calls   int
	prompts []evaluator.Prompt
}

func (s *scripted) Invoke(_ context.Context, p evaluator.Prompt) (string, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, p)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("script exhausted")
}

type memLog struct {
	mu       sync.Mutex
	failures []logging.FailureEntry
	attempts []logging.AttemptEntry
}

func (m *memLog) LogFailure(_ context.Context, e logging.FailureEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, e)
	return nil
}

func (m *memLog) RecordAttempt(_ context.Context, e logging.AttemptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, e)
	return nil
}

const validPassB = `{"primary_score":4,"sub_score":3.5,"process_score":3,"difference_note":"same"}`

var passBPrompt = evaluator.Prompt{User: "score", RespondentID: "R001", Stage: "pass_b", Question: 2}

// #endregion fakes

func TestRun_SucceedsOnThirdAttemptLogsNoFailure(t *testing.T) {
	eval := &scripted{replies: []string{"garbage", `{"primary_score":9,"sub_score":3,"process_score":3}`, validPassB}}
	logs := &memLog{}
	r := New(eval, logs, 3, WithAttemptRecorder(logs))

	rec, err := r.PassB(context.Background(), passBPrompt)
	require.NoError(t, err)
	assert.Equal(t, 4.0, rec.PrimaryScore)
	assert.Equal(t, 2, rec.QuestionID)
	assert.Equal(t, 3, eval.calls)
	assert.Empty(t, logs.failures)

	require.Len(t, logs.attempts, 3)
	assert.Equal(t, diagnosis.CategoryMalformedOutput, logs.attempts[0].Failure)
	assert.Equal(t, diagnosis.CategoryValidation, logs.attempts[1].Failure)
	assert.True(t, logs.attempts[2].Accepted)
}

func TestRun_RequestUnchangedAcrossAttempts(t *testing.T) {
	eval := &scripted{replies: []string{"x", "y", validPassB}}
	r := New(eval, &memLog{}, 3)

	_, err := r.Run(context.Background(), parser.KindPassB, passBPrompt)
	require.NoError(t, err)
	for _, p := range eval.prompts {
		assert.Equal(t, passBPrompt, p)
	}
}

func TestRun_ExhaustedLogsOneFailure(t *testing.T) {
	eval := &scripted{replies: []string{"a", "b", "c"}}
	logs := &memLog{}
	r := New(eval, logs, 3)

	_, err := r.Run(context.Background(), parser.KindPassB, passBPrompt)
	require.Error(t, err)

	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, 3, ex.Attempts)
	assert.True(t, errors.Is(err, diagnosis.ErrMalformedOutput))

	require.Len(t, logs.failures, 1)
	f := logs.failures[0]
	assert.Equal(t, diagnosis.CategoryMalformedOutput, f.Category)
	assert.Equal(t, 3, f.Attempt)
	assert.Equal(t, "R001", f.RespondentID)
	assert.Equal(t, 2, f.Question)
}

func TestRun_TransportErrorsRetried(t *testing.T) {
	eval := &scripted{
		errs:    []error{errors.New("connection reset"), nil},
		replies: []string{"", validPassB},
	}
	r := New(eval, &memLog{}, 2)

	_, err := r.Run(context.Background(), parser.KindPassB, passBPrompt)
	require.NoError(t, err)
	assert.Equal(t, 2, eval.calls)
}

func TestRun_TransportExhaustedCategory(t *testing.T) {
	eval := &scripted{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	logs := &memLog{}
	r := New(eval, logs, 2)

	_, err := r.Run(context.Background(), parser.KindPassB, passBPrompt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, diagnosis.ErrTransport))
	require.Len(t, logs.failures, 1)
	assert.Equal(t, diagnosis.CategoryTransport, logs.failures[0].Category)
}

func TestRun_ConfigurationErrorPropagates(t *testing.T) {
	eval := &scripted{errs: []error{&diagnosis.ConfigurationError{Key: "evaluator.api_key", Reason: "missing"}}}
	logs := &memLog{}
	r := New(eval, logs, 3)

	_, err := r.Run(context.Background(), parser.KindPassB, passBPrompt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, diagnosis.ErrConfiguration))
	assert.Equal(t, 1, eval.calls)
	assert.Empty(t, logs.failures)
}

func TestTypedHelpers(t *testing.T) {
	eval := &scripted{replies: []string{
		`{"overall_summary":"solid","ai_use_level":"高度"}`,
		`{"consistency_score":0.92,"status":"妥当","issues":[]}`,
	}}
	r := New(eval, &memLog{}, 1)

	syn, err := r.Synthesis(context.Background(), evaluator.Prompt{RespondentID: "R1", Stage: "synthesis"})
	require.NoError(t, err)
	assert.Equal(t, diagnosis.UseLevelAdvanced, syn.AIUseLevel)

	con, err := r.Consistency(context.Background(), evaluator.Prompt{RespondentID: "R1", Stage: "consistency"})
	require.NoError(t, err)
	assert.Equal(t, diagnosis.ConsistencyValid, con.Status)
	assert.Equal(t, 0.92, con.ConsistencyScore)
}
