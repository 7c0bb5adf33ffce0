package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/AnMoreNight/Simple-AICATS/internal/evaluator"
	"github.com/AnMoreNight/Simple-AICATS/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFixture(t *testing.T) {
	attempts := []logging.AttemptEntry{
		{RespondentID: "R1", Stage: "pass_a", Question: 1, Attempt: 1, Accepted: true, RawReply: `{"a":1}`},
		{RespondentID: "R1", Stage: "pass_a", Question: 1, Attempt: 1, Accepted: true, RawReply: `{"a":2}`},
		{RespondentID: "R1", Stage: "pass_a", Question: 2, Attempt: 2, Accepted: false, RawReply: `oops`},
		{RespondentID: "R1", Stage: "synthesis", Attempt: 1, Accepted: true, RawReply: `{"s":1}`},
	}

	f := buildFixture(attempts, true)
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`}, f.Replies["R1/pass_a/Q1"])
	assert.Equal(t, []string{`{"s":1}`}, f.Replies["R1/synthesis"])
	assert.NotContains(t, f.Replies, "R1/pass_a/Q2")
	assert.Equal(t, `{"a":2}`, f.Defaults["pass_a"])

	// The exported fixture replays through the fixture transport.
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, f.Save(path))
	loaded, err := evaluator.LoadFixture(path)
	require.NoError(t, err)

	rp := evaluator.NewReplayer(loaded)
	p := evaluator.Prompt{RespondentID: "R1", Stage: "pass_a", Question: 1}
	first, err := rp.Invoke(context.Background(), p)
	require.NoError(t, err)
	second, err := rp.Invoke(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, first)
	assert.Equal(t, `{"a":2}`, second)

	other, err := rp.Invoke(context.Background(), evaluator.Prompt{RespondentID: "R9", Stage: "pass_a", Question: 4})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, other, "unknown call sites fall back to the stage default")
}

func TestBuildFixture_NoDefaults(t *testing.T) {
	f := buildFixture([]logging.AttemptEntry{
		{RespondentID: "R1", Stage: "consistency", Accepted: true, RawReply: `{}`},
	}, false)
	assert.Nil(t, f.Defaults)
	assert.Len(t, f.Replies, 1)
}
