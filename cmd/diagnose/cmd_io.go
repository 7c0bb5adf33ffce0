package main

import (
	"fmt"

	"github.com/AnMoreNight/Simple-AICATS/internal/workbook"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// importCmd loads a survey workbook into the store
var importCmd = &cobra.Command{
	Use:   "import [survey.xlsx]",
	Short: "Import questions and respondents from an Excel workbook",
	Long: `Reads the Questions and Respondents sheets. Existing respondents are
updated; a blank Status cell keeps the stored pipeline status.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// exportCmd writes the results workbook
var exportCmd = &cobra.Command{
	Use:   "export [results.xlsx]",
	Short: "Export pass scores, diagnoses and logs to an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	book, err := workbook.Import(args[0])
	if err != nil {
		return err
	}
	if len(book.Questions) != cfg.Pipeline.QuestionCount {
		logger.Warn("question count differs from configuration",
			zap.Int("sheet", len(book.Questions)),
			zap.Int("configured", cfg.Pipeline.QuestionCount))
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.UpsertQuestions(ctx, book.Questions); err != nil {
		return err
	}
	if err := st.UpsertRespondents(ctx, book.Respondents); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d questions, %d respondents\n", len(book.Questions), len(book.Respondents))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := workbook.Export(cmd.Context(), st, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
	return nil
}
