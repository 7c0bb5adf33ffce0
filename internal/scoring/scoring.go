// Package scoring rolls per-question scores up into official-category means
// and the weighted total.
package scoring

import (
	"fmt"

	"github.com/AnMoreNight/Simple-AICATS/internal/category"
	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/parser"
	"go.uber.org/zap"
)

// #region weights

const (
	PrimaryWeight = 0.60
	SubWeight     = 0.20
	ProcessWeight = 0.20

	// TotalPrecision is the number of decimal places of the weighted total.
	TotalPrecision = 2

	minScore = 1.0
	maxScore = 5.0
)

// WeightedTotal combines the three group means.
func WeightedTotal(primary, sub, process float64) float64 {
	return parser.Round(PrimaryWeight*primary+SubWeight*sub+ProcessWeight*process, TotalPrecision)
}

// #endregion weights

// #region inputs

// QuestionScores are the values aggregated for one question.
type QuestionScores struct {
	QuestionID int
	Primary    float64
	Sub        float64
	Process    float64
	Clarity    float64
	Logic      float64
	Relevance  float64
}

// FromPassA uses pass A for every value. This is the exploratory rollup.
func FromPassA(a diagnosis.PassAResult) []QuestionScores {
	out := make([]QuestionScores, 0, len(a.Records))
	for _, r := range a.Records {
		out = append(out, QuestionScores{
			QuestionID: r.QuestionID,
			Primary:    r.PrimaryScore,
			Sub:        r.SubScore,
			Process:    r.ProcessScore,
			Clarity:    r.Clarity,
			Logic:      r.Logic,
			Relevance:  r.Relevance,
		})
	}
	return out
}

// Combine takes primary/sub/process from pass B and the quality dimensions
// from pass A. This is the authoritative rollup. Questions missing from
// either pass are left out.
func Combine(a diagnosis.PassAResult, b diagnosis.PassBResult) []QuestionScores {
	second := b.ByQuestion()
	out := make([]QuestionScores, 0, len(a.Records))
	for _, first := range a.Records {
		rb, ok := second[first.QuestionID]
		if !ok {
			continue
		}
		out = append(out, QuestionScores{
			QuestionID: first.QuestionID,
			Primary:    rb.PrimaryScore,
			Sub:        rb.SubScore,
			Process:    rb.ProcessScore,
			Clarity:    first.Clarity,
			Logic:      first.Logic,
			Relevance:  first.Relevance,
		})
	}
	return out
}

// #endregion inputs

// #region aggregator

// Aggregator computes AggregatedScoreSets.
type Aggregator struct {
	log *zap.Logger
}

// NewAggregator creates an aggregator; a nil logger discards warnings.
func NewAggregator(log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{log: log.Named("scoring")}
}

// Aggregate buckets each question's scores by its mapped official categories.
// Questions with any unmappable label are skipped with a warning. Every
// question must have exactly one score entry. If no question maps, the result
// is an *diagnosis.AggregationError.
func (a *Aggregator) Aggregate(respondentID string, questions []diagnosis.Question, scores []QuestionScores) (diagnosis.AggregatedScoreSet, error) {
	byQ := make(map[int]QuestionScores, len(scores))
	for _, s := range scores {
		if _, dup := byQ[s.QuestionID]; dup {
			return diagnosis.AggregatedScoreSet{}, fmt.Errorf("aggregate %s: duplicate scores for Q%d", respondentID, s.QuestionID)
		}
		byQ[s.QuestionID] = s
	}

	var (
		primary [len(diagnosis.PrimaryCategories)]bucket
		sub     [len(diagnosis.SubCategories)]bucket
		process [len(diagnosis.ProcessCategories)]bucket
		out     diagnosis.AggregatedScoreSet
		mapped  int
		quality qualityAccum
	)

	for _, q := range questions {
		s, ok := byQ[q.Number]
		if !ok {
			return diagnosis.AggregatedScoreSet{}, fmt.Errorf("aggregate %s: no scores for %s", respondentID, q.ID())
		}

		m, failed := category.MapQuestion(q)
		if len(failed) > 0 {
			for _, g := range failed {
				a.log.Warn("unmapped category label, question excluded",
					zap.String("respondent", respondentID),
					zap.String("question", q.ID()),
					zap.Stringer("group", g),
					zap.String("label", q.Label(g)))
			}
			out.Skipped = append(out.Skipped, q.Number)
			continue
		}
		mapped++

		primary[diagnosis.OfficialIndex(diagnosis.GroupPrimary, m.Primary)].add(clamp(s.Primary))
		sub[diagnosis.OfficialIndex(diagnosis.GroupSub, m.Sub)].add(clamp(s.Sub))
		process[diagnosis.OfficialIndex(diagnosis.GroupProcess, m.Process)].add(clamp(s.Process))

		qq := diagnosis.QuestionQuality{
			QuestionID: q.Number,
			Clarity:    clamp(s.Clarity),
			Logic:      clamp(s.Logic),
			Relevance:  clamp(s.Relevance),
		}
		qq.Mean = parser.Round((qq.Clarity+qq.Logic+qq.Relevance)/3, TotalPrecision)
		out.Quality = append(out.Quality, qq)
		quality.add(qq)
	}

	if mapped == 0 {
		return diagnosis.AggregatedScoreSet{}, &diagnosis.AggregationError{RespondentID: respondentID}
	}

	out.PrimaryMean = fill(out.Primary[:], primary[:])
	out.SubMean = fill(out.Sub[:], sub[:])
	out.ProcessMean = fill(out.Process[:], process[:])
	out.Total = WeightedTotal(out.PrimaryMean, out.SubMean, out.ProcessMean)
	out.QualityMean = quality.means()
	return out, nil
}

// #endregion aggregator

// #region helpers

type bucket struct {
	sum float64
	n   int
}

func (b *bucket) add(v float64) {
	b.sum += v
	b.n++
}

func (b bucket) mean() float64 {
	if b.n == 0 {
		return 0
	}
	return b.sum / float64(b.n)
}

// fill writes every category mean (0 for empty buckets) and returns the group
// mean over the non-empty ones.
func fill(dst []float64, buckets []bucket) float64 {
	var sum float64
	var n int
	for i, b := range buckets {
		dst[i] = b.mean()
		if b.n > 0 {
			sum += dst[i]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

type qualityAccum struct {
	clarity, logic, relevance float64
	n                         int
}

func (q *qualityAccum) add(v diagnosis.QuestionQuality) {
	q.clarity += v.Clarity
	q.logic += v.Logic
	q.relevance += v.Relevance
	q.n++
}

func (q qualityAccum) means() diagnosis.QualityMeans {
	if q.n == 0 {
		return diagnosis.QualityMeans{}
	}
	n := float64(q.n)
	m := diagnosis.QualityMeans{
		Clarity:   parser.Round(q.clarity/n, TotalPrecision),
		Logic:     parser.Round(q.logic/n, TotalPrecision),
		Relevance: parser.Round(q.relevance/n, TotalPrecision),
	}
	m.Overall = parser.Round((q.clarity+q.logic+q.relevance)/(3*n), TotalPrecision)
	return m
}

func clamp(v float64) float64 {
	switch {
	case v < minScore:
		return minScore
	case v > maxScore:
		return maxScore
	}
	return v
}

// #endregion helpers
