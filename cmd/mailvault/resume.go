package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okozlov/mailvault/internal/report"
	"github.com/okozlov/mailvault/internal/workflow"
)

var (
	resumeSession   string
	resumePasswords []string
	resumeXLSX      string
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue an interrupted or failed session",
	Long: `Resume a session from its first unconfirmed item. Items that already
completed are never redone. Extra passwords for documents that could not be
decrypted are supplied as --password <group>=<password> and tried on the
retry pass.`,
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeSession, "session", "", "Session id (defaults to the most recent)")
	resumeCmd.Flags().StringArrayVar(&resumePasswords, "password", nil, "Extra password candidate as <group>=<password>; repeatable")
	resumeCmd.Flags().StringVar(&resumeXLSX, "xlsx", "", "Write the report to this workbook instead of the spreadsheet")
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var reports workflow.ReportService
	if resumeXLSX != "" {
		reports = report.FileWriter{Path: resumeXLSX}
	} else if cfg.SpreadsheetID != "" {
		var err error
		reports, err = buildSheetsReports(ctx)
		if err != nil {
			return err
		}
	} else {
		reports = report.FileWriter{Path: "mailvault-report.xlsx"}
	}

	coord, closeAll, err := buildCoordinator(ctx, reports)
	if err != nil {
		return err
	}
	defer closeAll()

	for _, pair := range resumePasswords {
		group, password, ok := strings.Cut(pair, "=")
		if !ok || group == "" || password == "" {
			return fmt.Errorf("invalid --password %q, want <group>=<password>", pair)
		}
		if err := coord.AddHint(ctx, resumeSession, group, password); err != nil {
			return err
		}
	}

	sum, err := coord.Resume(ctx, resumeSession)
	if err != nil {
		return err
	}
	printSummary(sum)
	return nil
}
