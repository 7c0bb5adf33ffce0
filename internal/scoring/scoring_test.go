package scoring

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// surveyQuestions mirrors the six-question sheet, including alias labels.
func surveyQuestions() []diagnosis.Question {
	return []diagnosis.Question{
		{Number: 1, Primary: "問題理解", Sub: "情報整理", Process: "clarity"},
		{Number: 2, Primary: "論理構成", Sub: "因果推論", Process: "structure"},
		{Number: 3, Primary: "仮説構築", Sub: "前提設定", Process: "hypothesis"},
		{Number: 4, Primary: "AI指示", Sub: "要件定義力", Process: "prompt_clarity"},
		{Number: 5, Primary: "AI成果検証力", Sub: "品質チェック力", Process: "quality_check"},
		{Number: 6, Primary: "優先順位判断", Sub: "意思決定", Process: "consistency"},
	}
}

func uniform(v float64, n int) []QuestionScores {
	out := make([]QuestionScores, n)
	for i := range out {
		out[i] = QuestionScores{QuestionID: i + 1, Primary: v, Sub: v, Process: v, Clarity: v, Logic: v, Relevance: v}
	}
	return out
}

func TestAggregate_UniformScores(t *testing.T) {
	agg, err := NewAggregator(nil).Aggregate("R1", surveyQuestions(), uniform(3.0, 6))
	require.NoError(t, err)

	assert.Equal(t, 3.0, agg.Total)
	assert.Equal(t, diagnosis.PrimaryScores{3, 3, 3, 3, 3}, agg.Primary)
	assert.Equal(t, diagnosis.SubScores{3, 3}, agg.Sub)
	assert.Equal(t, diagnosis.ProcessScores{3, 3, 3, 3, 3}, agg.Process)
	assert.Equal(t, 3.0, agg.QualityMean.Overall)
	assert.Len(t, agg.Quality, 6)
	assert.Empty(t, agg.Skipped)
}

func TestAggregate_EmptyCategoriesZeroFilled(t *testing.T) {
	qs := surveyQuestions()[:1]
	agg, err := NewAggregator(nil).Aggregate("R1", qs, uniform(4.0, 1))
	require.NoError(t, err)

	for _, label := range diagnosis.PrimaryCategories {
		_, ok := agg.Primary.Get(label)
		assert.True(t, ok, label)
	}
	v, _ := agg.Primary.Get("論理思考")
	assert.Equal(t, 0.0, v)
	v, _ = agg.Primary.Get("問題理解")
	assert.Equal(t, 4.0, v)

	// Group means cover only populated categories.
	assert.Equal(t, 4.0, agg.PrimaryMean)
	assert.Equal(t, 4.0, agg.Total)
}

func TestAggregate_MergedCategoryMean(t *testing.T) {
	scores := uniform(3.0, 6)
	scores[4].Primary = 5.0 // AI成果検証力
	scores[5].Primary = 2.0 // 優先順位判断
	agg, err := NewAggregator(nil).Aggregate("R1", surveyQuestions(), scores)
	require.NoError(t, err)

	v, _ := agg.Primary.Get("AI検証/優先順位判断")
	assert.Equal(t, 3.5, v)
}

func TestAggregate_ClampsOutOfRange(t *testing.T) {
	scores := uniform(3.0, 6)
	scores[0].Primary = 9
	scores[1].Primary = -2
	scores[0].Clarity = 0
	agg, err := NewAggregator(nil).Aggregate("R1", surveyQuestions(), scores)
	require.NoError(t, err)

	v, _ := agg.Primary.Get("問題理解")
	assert.Equal(t, 5.0, v)
	v, _ = agg.Primary.Get("論理思考")
	assert.Equal(t, 1.0, v)
	assert.Equal(t, 1.0, agg.Quality[0].Clarity)
}

func TestAggregate_SkipsUnmappedQuestion(t *testing.T) {
	qs := surveyQuestions()
	qs[2].Process = "creativity"
	agg, err := NewAggregator(nil).Aggregate("R1", qs, uniform(3.0, 6))
	require.NoError(t, err)

	assert.Equal(t, []int{3}, agg.Skipped)
	v, _ := agg.Primary.Get("仮説構築")
	assert.Equal(t, 0.0, v, "skipped question contributes to no bucket")
	assert.Len(t, agg.Quality, 5)
}

func TestAggregate_NothingMapped(t *testing.T) {
	qs := []diagnosis.Question{{Number: 1, Primary: "x", Sub: "y", Process: "z"}}
	_, err := NewAggregator(nil).Aggregate("R9", qs, uniform(3, 1))
	require.Error(t, err)
	var ae *diagnosis.AggregationError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "R9", ae.RespondentID)
}

func TestAggregate_MissingScores(t *testing.T) {
	_, err := NewAggregator(nil).Aggregate("R1", surveyQuestions(), uniform(3, 5))
	require.Error(t, err)
	assert.False(t, errors.Is(err, diagnosis.ErrAggregation))
}

func TestAggregate_WeightedTotalInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	agg := NewAggregator(nil)
	for i := 0; i < 200; i++ {
		scores := uniform(0, 6)
		for j := range scores {
			scores[j].Primary = parser.Round(1+4*rng.Float64(), 1)
			scores[j].Sub = parser.Round(1+4*rng.Float64(), 1)
			scores[j].Process = parser.Round(1+4*rng.Float64(), 1)
		}
		out, err := agg.Aggregate("R", surveyQuestions(), scores)
		require.NoError(t, err)
		want := parser.Round(0.60*out.PrimaryMean+0.20*out.SubMean+0.20*out.ProcessMean, 2)
		require.Equal(t, want, out.Total)
		require.GreaterOrEqual(t, out.Total, 1.0)
		require.LessOrEqual(t, out.Total, 5.0)
	}
}

func TestAggregate_QualityExcludedFromTotal(t *testing.T) {
	low := uniform(3.0, 6)
	high := uniform(3.0, 6)
	for i := range high {
		high[i].Clarity, high[i].Logic, high[i].Relevance = 5, 5, 5
	}
	a, err := NewAggregator(nil).Aggregate("R", surveyQuestions(), low)
	require.NoError(t, err)
	b, err := NewAggregator(nil).Aggregate("R", surveyQuestions(), high)
	require.NoError(t, err)
	assert.Equal(t, a.Total, b.Total)
	assert.NotEqual(t, a.QualityMean, b.QualityMean)
}

func TestCombine(t *testing.T) {
	a := diagnosis.PassAResult{Records: []diagnosis.PassARecord{
		{QuestionID: 1, PrimaryScore: 2, SubScore: 2, ProcessScore: 2, Clarity: 4, Logic: 4.5, Relevance: 5},
		{QuestionID: 2, PrimaryScore: 2, SubScore: 2, ProcessScore: 2, Clarity: 1, Logic: 1, Relevance: 1},
	}}
	b := diagnosis.PassBResult{Records: []diagnosis.PassBRecord{
		{QuestionID: 1, PrimaryScore: 4, SubScore: 3, ProcessScore: 5},
	}}

	got := Combine(a, b)
	require.Len(t, got, 1)
	assert.Equal(t, QuestionScores{QuestionID: 1, Primary: 4, Sub: 3, Process: 5, Clarity: 4, Logic: 4.5, Relevance: 5}, got[0])

	first := FromPassA(a)
	require.Len(t, first, 2)
	assert.Equal(t, 2.0, first[0].Primary)
}
