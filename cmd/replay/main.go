package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AnMoreNight/Simple-AICATS/internal/consistency"
	"github.com/AnMoreNight/Simple-AICATS/internal/evaluator"
	"github.com/AnMoreNight/Simple-AICATS/internal/replay"
	"github.com/AnMoreNight/Simple-AICATS/internal/runner"
	"github.com/AnMoreNight/Simple-AICATS/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the recorded diagnosis.db")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (see fixture-export)")
	promptDir := flag.String("prompts", "prompts", "directory holding the stage templates")
	mode := flag.String("mode", string(consistency.ModeSelfReported), "consistency mode of the recorded run")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" || *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/diagnosis.db --fixture path/to/fixture.json [--prompts dir] [--mode self_reported|difference] [--json]")
		os.Exit(2)
	}
	os.Exit(run(*dbPath, *fixturePath, *promptDir, consistency.Mode(*mode), *jsonOut))
}

// #endregion main

// #region run

func run(dbPath, fixturePath, promptDir string, mode consistency.Mode, jsonOut bool) int {
	ctx := context.Background()

	src, err := store.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer src.Close()

	f, err := evaluator.LoadFixture(fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	templates, err := runner.TemplateFiles{
		PassA:       filepath.Join(promptDir, "pass_a.md"),
		PassB:       filepath.Join(promptDir, "pass_b.md"),
		Synthesis:   filepath.Join(promptDir, "synthesis.md"),
		Consistency: filepath.Join(promptDir, "consistency.md"),
	}.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load templates: %v\n", err)
		return 2
	}

	dir, err := os.MkdirTemp("", "diagnosis-replay-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "scratch dir: %v\n", err)
		return 2
	}
	defer os.RemoveAll(dir)
	scratch, err := store.NewStore(filepath.Join(dir, "replay.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open scratch db: %v\n", err)
		return 2
	}
	defer scratch.Close()

	results, sum, err := replay.Replay(ctx, src, scratch, f, replay.Config{
		Templates:   templates,
		Consistency: consistency.DefaultConfig(mode),
		MaxAttempts: 1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	if jsonOut {
		data, err := json.MarshalIndent(map[string]any{"results": results, "summary": sum}, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal json: %v\n", err)
			return 2
		}
		fmt.Println(string(data))
	} else {
		printComparison(results, sum)
	}
	if sum.Diverged > 0 {
		return 1
	}
	return 0
}

// #endregion run

// #region output

// printComparison outputs a comparison table.
func printComparison(results []replay.Result, sum replay.Summary) {
	fmt.Printf("%-12s| %-8s| %-8s| %-12s| %-12s| %s\n", "Respondent", "Recorded", "Replayed", "Rec Status", "Rep Status", "Match")
	fmt.Printf("%-12s+%-9s+%-9s+%-13s+%-13s+%s\n",
		"------------", "---------", "---------", "-------------", "-------------", "------")

	for _, r := range results {
		match := "DIFF"
		if r.Match {
			match = "OK"
		}
		fmt.Printf("%-12s| %8.2f| %8.2f| %-12s| %-12s| %s\n",
			r.RespondentID, r.RecordedTotal, r.ReplayedTotal, orDash(string(r.RecordedStatus)), orDash(string(r.ReplayedStatus)), match)
		if r.Error != "" {
			fmt.Printf("    %s\n", r.Error)
		}
	}
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n", sum.Total, sum.Matches, sum.Diverged)
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

// #endregion output
