package main

import (
	"fmt"

	"github.com/AnMoreNight/Simple-AICATS/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runCmd executes one batch
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Diagnose every pending respondent",
	Long: `Validates pending respondents, runs the valid ones through the pipeline
and writes a run log. Respondents stopped by a failure keep their last
completed stage and are resumed by the next run.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, closeEval, err := buildService(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeEval(); err != nil {
			logger.Warn("close evaluator", zap.Error(err))
		}
	}()

	out := cmd.OutOrStdout()
	sum, err := svc.Run(ctx, func(e pipeline.Event) {
		switch e.Kind {
		case pipeline.EventRespondentDone:
			fmt.Fprintf(out, "[%d/%d] %s done\n", e.Index, e.Total, e.RespondentID)
		case pipeline.EventRespondentFailed:
			fmt.Fprintf(out, "%s failed at %s: %s\n", e.RespondentID, e.Stage, e.Message)
		case pipeline.EventWarning:
			fmt.Fprintf(out, "warning %s: %s\n", e.RespondentID, e.Message)
		}
	})

	fmt.Fprintf(out, "\nRun ID:    %s\n", sum.RunID)
	fmt.Fprintf(out, "Processed: %d\n", sum.Batch.Processed)
	fmt.Fprintf(out, "Errors:    %d\n", sum.Batch.Errors)
	fmt.Fprintf(out, "Invalid:   %d\n", sum.Invalid)
	fmt.Fprintf(out, "Duration:  %s\n", sum.RunLog.Duration)
	return err
}
