package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/AnMoreNight/Simple-AICATS/internal/evaluator"
	"github.com/AnMoreNight/Simple-AICATS/internal/logging"
	"github.com/AnMoreNight/Simple-AICATS/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to diagnosis.db")
	outPath := flag.String("out", "", "output fixture JSON path")
	respondent := flag.String("respondent", "", "export only this respondent")
	defaults := flag.Bool("defaults", false, "also record the last accepted reply of each stage as its default")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/diagnosis.db --out path/to/fixture.json [--respondent id] [--defaults]")
		os.Exit(2)
	}

	if err := run(*dbPath, *outPath, *respondent, *defaults); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, outPath, respondent string, withDefaults bool) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	attempts, err := st.ListAttempts(context.Background(), store.AttemptFilter{
		RespondentID: respondent,
		AcceptedOnly: true,
	})
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		return fmt.Errorf("no accepted attempts found")
	}
	fmt.Printf("Found %d accepted attempts\n", len(attempts))

	fixture := buildFixture(attempts, withDefaults)
	if err := fixture.Save(outPath); err != nil {
		return err
	}
	fmt.Printf("Wrote fixture to %s (%d call sites)\n", outPath, len(fixture.Replies))
	return nil
}

// #endregion extract

// #region build

// buildFixture keys every accepted reply by its call site. A call site that
// was accepted in several runs replays those replies in order.
func buildFixture(attempts []logging.AttemptEntry, withDefaults bool) *evaluator.Fixture {
	f := &evaluator.Fixture{
		Description: fmt.Sprintf("Exported from attempt log: %d accepted replies", len(attempts)),
		Replies:     map[string][]string{},
	}
	if withDefaults {
		f.Defaults = map[string]string{}
	}
	for _, a := range attempts {
		if !a.Accepted || a.RawReply == "" {
			continue
		}
		key := evaluator.Prompt{RespondentID: a.RespondentID, Stage: a.Stage, Question: a.Question}.Key()
		f.Replies[key] = append(f.Replies[key], a.RawReply)
		if withDefaults {
			f.Defaults[a.Stage] = a.RawReply
		}
	}
	return f
}

// #endregion build
