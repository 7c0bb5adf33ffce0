package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/spf13/cobra"
)

// statusCmd summarizes the store
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show respondent progress and recent runs",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rs, err := st.LoadRespondents(ctx)
	if err != nil {
		return err
	}
	byStatus := map[diagnosis.Status]int{}
	other := 0
	for _, r := range rs {
		s := diagnosis.ParseStatus(r.Status)
		if s == diagnosis.StatusNone && r.Status != "" {
			other++ // validation labels and unknown text
			continue
		}
		byStatus[s]++
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Status\tRespondents\n")
	for _, s := range []diagnosis.Status{
		diagnosis.StatusNone, diagnosis.StatusStage1Done, diagnosis.StatusStage2Done,
		diagnosis.StatusStage3Done, diagnosis.StatusStage4Done,
	} {
		fmt.Fprintf(tw, "%s\t%d\n", s, byStatus[s])
	}
	fmt.Fprintf(tw, "other\t%d\n", other)
	fmt.Fprintf(tw, "total\t%d\n", len(rs))
	if err := tw.Flush(); err != nil {
		return err
	}

	runs, err := st.ListRunLogs(ctx, 5)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}
	fmt.Fprintln(out, "\nRecent runs:")
	for _, r := range runs {
		fmt.Fprintf(out, "  %s  processed=%d errors=%d skipped=%d  %s\n",
			r.RunID, r.Processed, r.Errors, r.Skipped, r.Duration)
	}
	return nil
}
