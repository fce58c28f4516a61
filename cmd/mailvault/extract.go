package main

import (
	"github.com/spf13/cobra"

	"github.com/okozlov/mailvault/internal/report"
	"github.com/okozlov/mailvault/internal/workflow"
)

var (
	extractXLSX   string
	extractGroups []string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Parse stored statements and publish the transaction report",
	Long: `Read every stored document, extract its text and parse transactions,
then publish one report sheet per group to the configured spreadsheet.
With --group the run is restricted to the named groups; with --xlsx the
report is written to a local workbook instead.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractXLSX, "xlsx", "", "Write the report to this workbook instead of the spreadsheet")
	extractCmd.Flags().StringArrayVar(&extractGroups, "group", nil, "Extract only this group's documents; repeatable")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var reports workflow.ReportService
	if extractXLSX != "" {
		reports = report.FileWriter{Path: extractXLSX}
	} else {
		var err error
		reports, err = buildSheetsReports(ctx)
		if err != nil {
			return err
		}
	}

	coord, closeAll, err := buildCoordinator(ctx, reports)
	if err != nil {
		return err
	}
	defer closeAll()

	sum, err := coord.Extract(ctx, extractGroups)
	if err != nil {
		return err
	}
	printSummary(sum)
	return nil
}
