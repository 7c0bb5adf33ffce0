package runner

import (
	"fmt"
	"strings"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/evaluator"
)

// #region system-messages

const (
	systemScoring     = "You are an expert evaluator of free-text survey answers. Output ONLY valid JSON."
	systemReverse     = "You are a validation evaluator re-scoring answers independently. Output ONLY valid JSON."
	systemSynthesis   = "You are an expert evaluator summarizing a diagnosis. Output ONLY valid JSON."
	systemConsistency = "You are a consistency auditor comparing two scorings. Output ONLY valid JSON."
)

const noAnswer = "(無回答)"

// #endregion system-messages

// #region builder

// PromptBuilder renders evaluator prompts for each stage.
type PromptBuilder struct {
	templates Templates
}

// NewPromptBuilder validates the templates eagerly.
func NewPromptBuilder(t Templates) (*PromptBuilder, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &PromptBuilder{templates: t}, nil
}

// #endregion builder

// #region pass-a

// PassA builds the first independent scoring prompt for one question.
// idx is the zero-based answer position of q.
func (b *PromptBuilder) PassA(r diagnosis.Respondent, q diagnosis.Question, idx int) evaluator.Prompt {
	var sb strings.Builder
	writeRespondent(&sb, r)
	writeQuestion(&sb, r, q, idx, true)

	sb.WriteString("# Required JSON Schema\n")
	sb.WriteString(`{
  "primary_score": <1.0-5.0>,
  "sub_score": <1.0-5.0>,
  "process_score": <1.0-5.0>,
  "aes_clarity": <1.0-5.0>,
  "aes_logic": <1.0-5.0>,
  "aes_relevance": <1.0-5.0>,
  "evidence": "<quote from the answer>",
  "judgment_reason": "<string>"
}`)
	writeInstructions(&sb, b.templates.PassA)

	return evaluator.Prompt{
		System:       systemScoring,
		User:         sb.String(),
		RespondentID: r.ID,
		Stage:        diagnosis.StagePassA.String(),
		Question:     q.Number,
	}
}

// #endregion pass-a

// #region pass-b

// PassB builds the reverse scoring prompt with the pass-A record as reference.
func (b *PromptBuilder) PassB(r diagnosis.Respondent, q diagnosis.Question, idx int, ref diagnosis.PassARecord) evaluator.Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Reverse Scoring Validation\nRespondent ID: %s\n\n", r.ID)
	writeQuestion(&sb, r, q, idx, false)

	sb.WriteString("# First Scoring (for comparison)\n")
	fmt.Fprintf(&sb, "Primary=%.1f, Sub=%.1f, Process=%.1f\n", ref.PrimaryScore, ref.SubScore, ref.ProcessScore)
	fmt.Fprintf(&sb, "Evidence: %s\nReason: %s\n\n", ref.Evidence, ref.JudgmentReason)

	sb.WriteString("Re-evaluate the answer independently using reverse scoring logic. ")
	sb.WriteString("Explain any divergence from the first scoring in difference_note.\n\n")
	sb.WriteString("# Required JSON Schema\n")
	sb.WriteString(`{
  "primary_score": <1.0-5.0>,
  "sub_score": <1.0-5.0>,
  "process_score": <1.0-5.0>,
  "difference_note": "<string>"
}`)
	writeInstructions(&sb, b.templates.PassB)

	return evaluator.Prompt{
		System:       systemReverse,
		User:         sb.String(),
		RespondentID: r.ID,
		Stage:        diagnosis.StagePassB.String(),
		Question:     q.Number,
	}
}

// #endregion pass-b

// #region synthesis

// Synthesis builds the narrative prompt over the aggregated scores.
func (b *PromptBuilder) Synthesis(r diagnosis.Respondent, agg diagnosis.AggregatedScoreSet) evaluator.Prompt {
	var sb strings.Builder
	writeRespondent(&sb, r)
	writeScores(&sb, agg)

	sb.WriteString("# Required JSON Schema\n")
	sb.WriteString(`{
  "overall_summary": "<string>",
  "ai_use_level": "基礎" | "標準" | "高度",
  "top_strengths": ["<string>"],
  "top_weaknesses": ["<string>"],
  "recommendations": ["<string>"]
}`)
	writeInstructions(&sb, b.templates.Synthesis)

	return evaluator.Prompt{
		System:       systemSynthesis,
		User:         sb.String(),
		RespondentID: r.ID,
		Stage:        diagnosis.StageSynthesis.String(),
	}
}

// #endregion synthesis

// #region consistency

// Consistency builds the stage-4 prompt over the final diagnosis and both passes.
func (b *PromptBuilder) Consistency(r diagnosis.Respondent, final diagnosis.FinalDiagnosis, passA diagnosis.PassAResult, passB diagnosis.PassBResult) evaluator.Prompt {
	var sb strings.Builder
	writeRespondent(&sb, r)
	writeScores(&sb, final.Scores)

	fmt.Fprintf(&sb, "# Narrative\nSummary: %s\nAI use level: %s\n\n", final.Narrative.OverallSummary, final.Narrative.AIUseLevel)

	sb.WriteString("# Per-question scores (first / second)\n")
	second := passB.ByQuestion()
	for _, a := range passA.Records {
		bb := second[a.QuestionID]
		fmt.Fprintf(&sb, "Q%d: %.1f/%.1f, %.1f/%.1f, %.1f/%.1f\n", a.QuestionID,
			a.PrimaryScore, bb.PrimaryScore, a.SubScore, bb.SubScore, a.ProcessScore, bb.ProcessScore)
	}
	sb.WriteString("\nconsistency_score is 1 - stdev/2.5 over the paired scores, within [0, 1].\n\n")

	sb.WriteString("# Required JSON Schema\n")
	sb.WriteString(`{
  "consistency_score": <0.00-1.00>,
  "status": "valid" | "caution" | "re-evaluate",
  "issues": ["<string>"],
  "summary": "<string>"
}`)
	writeInstructions(&sb, b.templates.Consistency)

	return evaluator.Prompt{
		System:       systemConsistency,
		User:         sb.String(),
		RespondentID: r.ID,
		Stage:        diagnosis.StageConsistency.String(),
	}
}

// #endregion consistency

// #region writers

func writeRespondent(sb *strings.Builder, r diagnosis.Respondent) {
	fmt.Fprintf(sb, "# Respondent Information\nID: %s\nName: %s\n\n", r.ID, r.Name)
}

func writeQuestion(sb *strings.Builder, r diagnosis.Respondent, q diagnosis.Question, idx int, withLabels bool) {
	answer := strings.TrimSpace(r.Answer(idx))
	if answer == "" {
		answer = noAnswer
	}
	fmt.Fprintf(sb, "## %s\nQuestion: %s\nAnswer: %s\n", q.ID(), q.Text, answer)
	if rationale := strings.TrimSpace(r.Rationale(idx)); rationale != "" {
		fmt.Fprintf(sb, "Rationale: %s\n", rationale)
	}
	if withLabels {
		fmt.Fprintf(sb, "Primary Skill: %s\nSub Skill: %s\nProcess Skill: %s\n", q.Primary, q.Sub, q.Process)
	}
	sb.WriteString("\n")
}

func writeScores(sb *strings.Builder, agg diagnosis.AggregatedScoreSet) {
	sb.WriteString("# Aggregated Scores\n")
	for i, l := range diagnosis.PrimaryCategories {
		fmt.Fprintf(sb, "Primary %s: %.2f\n", l, agg.Primary[i])
	}
	for i, l := range diagnosis.SubCategories {
		fmt.Fprintf(sb, "Sub %s: %.2f\n", l, agg.Sub[i])
	}
	for i, l := range diagnosis.ProcessCategories {
		fmt.Fprintf(sb, "Process %s: %.2f\n", l, agg.Process[i])
	}
	fmt.Fprintf(sb, "AES: %.2f\nTotal: %.2f\n\n", agg.QualityMean.Overall, agg.Total)
}

func writeInstructions(sb *strings.Builder, text string) {
	if text = strings.TrimSpace(text); text != "" {
		sb.WriteString("\n\n# Additional Instructions\n")
		sb.WriteString(text)
	}
}

// #endregion writers
