// Package sheetsync publishes the compiled transaction report to a Google
// spreadsheet: one tab per group, blocks appended below whatever earlier runs
// wrote, header rows bold on a pale green background.
package sheetsync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/okozlov/mailvault/internal/gapierr"
	"github.com/okozlov/mailvault/internal/report"
)

// runGap is the number of blank rows between the previous content of a tab
// and a newly appended run.
const runGap = 3

// Syncer implements workflow.ReportService against the Sheets API.
type Syncer struct {
	svc           *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

// New wraps an authenticated Sheets service.
func New(svc *sheets.Service, spreadsheetID string, log zerolog.Logger) *Syncer {
	return &Syncer{svc: svc, spreadsheetID: spreadsheetID, log: log}
}

// Publish implements workflow.ReportService.
func (s *Syncer) Publish(ctx context.Context, layout report.Layout) error {
	doc, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return gapierr.Classify("sheetsync.Publish: loading spreadsheet", err)
	}
	tabs := make(map[string]int64, len(doc.Sheets))
	for _, sh := range doc.Sheets {
		tabs[sh.Properties.Title] = sh.Properties.SheetId
	}

	for _, sheet := range layout.Sheets {
		tabID, ok := tabs[sheet.Title]
		if !ok {
			tabID, err = s.addTab(ctx, sheet.Title)
			if err != nil {
				return err
			}
			tabs[sheet.Title] = tabID
		}
		if err := s.appendSheet(ctx, tabID, sheet); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) addTab(ctx context.Context, title string) (int64, error) {
	resp, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, gapierr.Classify("sheetsync.addTab", err)
	}
	s.log.Info().Str("tab", title).Msg("created report tab")
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

// appendSheet writes one compiled sheet below the tab's existing content and
// styles its header rows.
func (s *Syncer) appendSheet(ctx context.Context, tabID int64, sheet report.Sheet) error {
	last, err := s.lastRow(ctx, sheet.Title)
	if err != nil {
		return err
	}
	start := last
	if start > 0 {
		start += runGap
	}

	values, headerOffsets := sheetValues(sheet)
	writeRange := fmt.Sprintf("'%s'!A%d", sheet.Title, start+1)
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, writeRange, &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return gapierr.Classify("sheetsync.appendSheet: writing values", err)
	}

	if err := s.styleHeaders(ctx, tabID, start, headerOffsets); err != nil {
		return err
	}

	s.log.Info().Str("tab", sheet.Title).Int("rows", len(values)).Msg("report rows appended")
	return nil
}

// lastRow returns the number of occupied rows in a tab. A missing tab reads
// as empty so publishing right after tab creation works.
func (s *Syncer) lastRow(ctx context.Context, title string) (int64, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, fmt.Sprintf("'%s'!A:C", title)).
		Context(ctx).Do()
	if err != nil {
		return 0, gapierr.Classify("sheetsync.lastRow", err)
	}
	return int64(len(resp.Values)), nil
}

func (s *Syncer) styleHeaders(ctx context.Context, tabID, start int64, headerOffsets []int64) error {
	if len(headerOffsets) == 0 {
		return nil
	}
	requests := make([]*sheets.Request, 0, len(headerOffsets))
	for _, offset := range headerOffsets {
		row := start + offset
		requests = append(requests, &sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          tabID,
					StartRowIndex:    row,
					EndRowIndex:      row + 1,
					StartColumnIndex: 0,
					EndColumnIndex:   3,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{
							Red:   0.85,
							Green: 0.92,
							Blue:  0.85,
						},
					},
				},
				Fields: "userEnteredFormat(backgroundColor,textFormat.bold)",
			},
		})
	}
	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return gapierr.Classify("sheetsync.styleHeaders", err)
	}
	return nil
}

// sheetValues converts a compiled sheet into Sheets API values plus the
// zero-based offsets of its header rows.
func sheetValues(sheet report.Sheet) ([][]interface{}, []int64) {
	values := make([][]interface{}, len(sheet.Rows))
	var headerOffsets []int64
	for i, row := range sheet.Rows {
		cells := make([]interface{}, len(row.Cells))
		for c, v := range row.Cells {
			cells[c] = v
		}
		values[i] = cells
		if row.Header {
			headerOffsets = append(headerOffsets, int64(i))
		}
	}
	return values, headerOffsets
}
