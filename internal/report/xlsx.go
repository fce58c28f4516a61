package report

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// FileWriter publishes a report as a local workbook instead of an online
// spreadsheet.
type FileWriter struct {
	Path string
}

// Publish implements the workflow report publisher.
func (w FileWriter) Publish(ctx context.Context, layout Layout) error {
	return WriteXLSX(layout, w.Path)
}

// WriteXLSX renders a layout into an .xlsx workbook at path. Header rows are
// bold on a pale green background, matching the online report styling.
func WriteXLSX(layout Layout, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{"D9EBD9"},
		},
	})
	if err != nil {
		return fmt.Errorf("report.WriteXLSX: creating style: %w", err)
	}

	for i, sheet := range layout.Sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Title); err != nil {
				return fmt.Errorf("report.WriteXLSX: renaming sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(sheet.Title); err != nil {
				return fmt.Errorf("report.WriteXLSX: adding sheet %q: %w", sheet.Title, err)
			}
		}

		for r, row := range sheet.Rows {
			if len(row.Cells) == 0 {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return fmt.Errorf("report.WriteXLSX: %w", err)
			}
			cells := make([]interface{}, len(row.Cells))
			for c, v := range row.Cells {
				cells[c] = v
			}
			if err := f.SetSheetRow(sheet.Title, cell, &cells); err != nil {
				return fmt.Errorf("report.WriteXLSX: writing row: %w", err)
			}
			if row.Header {
				end, err := excelize.CoordinatesToCellName(3, r+1)
				if err != nil {
					return fmt.Errorf("report.WriteXLSX: %w", err)
				}
				if err := f.SetCellStyle(sheet.Title, cell, end, headerStyle); err != nil {
					return fmt.Errorf("report.WriteXLSX: styling header: %w", err)
				}
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("report.WriteXLSX: saving %s: %w", path, err)
	}
	return nil
}
