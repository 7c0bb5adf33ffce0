package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/AnMoreNight/Simple-AICATS/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to diagnosis.db")
	respondent := flag.String("respondent", "", "show single respondent detail")
	failures := flag.Bool("failures", false, "show the error log instead of respondents")
	last := flag.Int("last", 20, "show N most recent error log entries")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/diagnosis.db [--respondent id] [--failures [--last N]] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	switch {
	case *respondent != "":
		err = runDetailMode(ctx, st, *respondent, *jsonOut)
	case *failures:
		err = runFailureMode(ctx, st, *last, *jsonOut)
	default:
		err = runListMode(ctx, st, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	Total       *float64 `json:"total_score,omitempty"`
	Consistency string   `json:"consistency,omitempty"`
}

func runListMode(ctx context.Context, st *store.Store, jsonOut bool) error {
	rs, err := st.LoadRespondents(ctx)
	if err != nil {
		return err
	}
	if len(rs) == 0 {
		fmt.Fprintln(os.Stderr, "no respondents found")
		return nil
	}

	totals, err := finalTotals(ctx, st)
	if err != nil {
		return err
	}
	statuses, err := consistencyStatuses(ctx, st)
	if err != nil {
		return err
	}

	rows := make([]listRow, len(rs))
	for i, r := range rs {
		rows[i] = listRow{ID: r.ID, Name: r.Name, Status: r.Status, Consistency: statuses[r.ID]}
		if t, ok := totals[r.ID]; ok {
			rows[i].Total = &t
		}
	}

	if jsonOut {
		return printJSON(rows)
	}
	fmt.Printf("%-10s  %-16s  %-14s  %6s  %s\n", "ID", "Name", "Status", "Total", "Consistency")
	fmt.Printf("%-10s+-%-16s+-%-14s+-%6s+-%s\n", "----------", "----------------", "--------------", "------", "-----------")
	for _, r := range rows {
		total := "—"
		if r.Total != nil {
			total = fmt.Sprintf("%.2f", *r.Total)
		}
		cons := r.Consistency
		if cons == "" {
			cons = "—"
		}
		fmt.Printf("%-10s  %-16s  %-14s  %6s  %s\n", r.ID, clip(r.Name, 16), clip(r.Status, 14), total, cons)
	}
	return nil
}

func finalTotals(ctx context.Context, st *store.Store) (map[string]float64, error) {
	arts, err := st.ListStageArtifacts(ctx, diagnosis.StageSynthesis)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(arts))
	for _, a := range arts {
		var fd diagnosis.FinalDiagnosis
		if err := json.Unmarshal(a.Payload, &fd); err != nil {
			return nil, fmt.Errorf("decode diagnosis of %s: %w", a.RespondentID, err)
		}
		out[a.RespondentID] = fd.Scores.Total
	}
	return out, nil
}

func consistencyStatuses(ctx context.Context, st *store.Store) (map[string]string, error) {
	arts, err := st.ListStageArtifacts(ctx, diagnosis.StageConsistency)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(arts))
	for _, a := range arts {
		var rep diagnosis.ConsistencyReport
		if err := json.Unmarshal(a.Payload, &rep); err != nil {
			return nil, fmt.Errorf("decode consistency of %s: %w", a.RespondentID, err)
		}
		out[a.RespondentID] = fmt.Sprintf("%s (%.2f)", rep.Status, rep.Score)
	}
	return out, nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	Respondent  diagnosis.Respondent         `json:"respondent"`
	PassA       *diagnosis.PassAResult       `json:"pass_a,omitempty"`
	PassB       *diagnosis.PassBResult       `json:"pass_b,omitempty"`
	Final       *diagnosis.FinalDiagnosis    `json:"final,omitempty"`
	Consistency *diagnosis.ConsistencyReport `json:"consistency,omitempty"`
	Attempts    int                          `json:"attempts"`
	Rejected    int                          `json:"rejected"`
}

func runDetailMode(ctx context.Context, st *store.Store, id string, jsonOut bool) error {
	r, err := st.LoadRespondent(ctx, id)
	if err != nil {
		return err
	}
	out := detailOutput{Respondent: r}

	var (
		passA diagnosis.PassAResult
		passB diagnosis.PassBResult
		final diagnosis.FinalDiagnosis
		rep   diagnosis.ConsistencyReport
	)
	if ok, err := st.ReadStageArtifact(ctx, id, diagnosis.StagePassA, &passA); err != nil {
		return err
	} else if ok {
		out.PassA = &passA
	}
	if ok, err := st.ReadStageArtifact(ctx, id, diagnosis.StagePassB, &passB); err != nil {
		return err
	} else if ok {
		out.PassB = &passB
	}
	if ok, err := st.ReadStageArtifact(ctx, id, diagnosis.StageSynthesis, &final); err != nil {
		return err
	} else if ok {
		out.Final = &final
	}
	if ok, err := st.ReadStageArtifact(ctx, id, diagnosis.StageConsistency, &rep); err != nil {
		return err
	} else if ok {
		out.Consistency = &rep
	}

	attempts, err := st.ListAttempts(ctx, store.AttemptFilter{RespondentID: id})
	if err != nil {
		return err
	}
	out.Attempts = len(attempts)
	for _, a := range attempts {
		if !a.Accepted {
			out.Rejected++
		}
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Respondent: %s\n", r.ID)
	fmt.Printf("Name:       %s\n", r.Name)
	fmt.Printf("Status:     %s\n", diagnosis.ParseStatus(r.Status))
	fmt.Printf("Attempts:   %d (%d rejected)\n", out.Attempts, out.Rejected)

	if out.PassA != nil {
		fmt.Printf("\nQuestion  A(p/s/proc)      B(p/s/proc)\n")
		b := map[int]diagnosis.PassBRecord{}
		if out.PassB != nil {
			b = out.PassB.ByQuestion()
		}
		for _, a := range out.PassA.Records {
			second := "—"
			if rb, ok := b[a.QuestionID]; ok {
				second = fmt.Sprintf("%.1f/%.1f/%.1f", rb.PrimaryScore, rb.SubScore, rb.ProcessScore)
			}
			fmt.Printf("  Q%-6d %.1f/%.1f/%.1f      %s\n", a.QuestionID, a.PrimaryScore, a.SubScore, a.ProcessScore, second)
		}
	}

	if out.Final != nil {
		s := out.Final.Scores
		fmt.Printf("\nTotal:      %.2f\n", s.Total)
		fmt.Printf("Means:      primary %.2f  sub %.2f  process %.2f\n", s.PrimaryMean, s.SubMean, s.ProcessMean)
		fmt.Printf("\nPrimary:\n")
		for i, label := range diagnosis.PrimaryCategories {
			fmt.Printf("  %-22s %.2f\n", label, s.Primary[i])
		}
		fmt.Printf("Sub:\n")
		for i, label := range diagnosis.SubCategories {
			fmt.Printf("  %-22s %.2f\n", label, s.Sub[i])
		}
		fmt.Printf("Process:\n")
		for i, label := range diagnosis.ProcessCategories {
			fmt.Printf("  %-22s %.2f\n", label, s.Process[i])
		}
		fmt.Printf("\nAI use:     %s\n", out.Final.Narrative.AIUseLevel)
		fmt.Printf("Summary:    %s\n", out.Final.Narrative.OverallSummary)
	}

	if out.Consistency != nil {
		c := out.Consistency
		fmt.Printf("\nConsistency: %s %.2f (%s)\n", c.Status, c.Score, c.Mode)
		for _, is := range c.Issues {
			fmt.Printf("  - %s\n", is)
		}
	}
	return nil
}

// #endregion detail-mode

// #region failure-mode

func runFailureMode(ctx context.Context, st *store.Store, last int, jsonOut bool) error {
	entries, err := st.ListFailures(ctx, last)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no failures logged")
		return nil
	}
	fmt.Printf("%-20s  %-10s  %-12s  %-4s  %-20s  %s\n", "Time", "ID", "Stage", "Q", "Category", "Message")
	for _, e := range entries {
		q := "—"
		if e.Question > 0 {
			q = fmt.Sprintf("Q%d", e.Question)
		}
		fmt.Printf("%-20s  %-10s  %-12s  %-4s  %-20s  %s\n",
			e.CreatedAt.Format("2006-01-02T15:04:05Z"), e.RespondentID, e.Stage, q, e.Category, clip(e.Message, 80))
	}
	return nil
}

// #endregion failure-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

// #endregion output
