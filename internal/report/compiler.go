// Package report lays out parsed transactions into per-group sheets: one
// header row per source document followed by its transaction rows, with blank
// separator rows between documents.
package report

import (
	"github.com/okozlov/mailvault/internal/domain"
)

// separatorRows is the number of blank rows between consecutive document
// blocks on a sheet.
const separatorRows = 3

// Row is one rendered spreadsheet row. Header rows carry the source document
// name and get emphasized formatting on output.
type Row struct {
	Cells  []string
	Header bool
}

// Sheet is one tab of the report, holding every block for a single group.
type Sheet struct {
	Title string
	Rows  []Row
}

// Layout is the full report, one sheet per group in first-seen order.
type Layout struct {
	Sheets []Sheet
}

// Compile renders blocks into a layout. Blocks for the same group land on the
// same sheet in input order; each block after the first on a sheet is preceded
// by exactly three blank rows.
func Compile(blocks []domain.SheetBlock) Layout {
	var layout Layout
	index := make(map[string]int)

	for _, block := range blocks {
		i, ok := index[block.GroupKey]
		if !ok {
			i = len(layout.Sheets)
			index[block.GroupKey] = i
			layout.Sheets = append(layout.Sheets, Sheet{Title: block.GroupKey})
		}

		sheet := &layout.Sheets[i]
		if len(sheet.Rows) > 0 {
			for n := 0; n < separatorRows; n++ {
				sheet.Rows = append(sheet.Rows, Row{})
			}
		}
		sheet.Rows = append(sheet.Rows, Row{Cells: []string{block.HeaderLabel}, Header: true})
		for _, tx := range block.Transactions {
			sheet.Rows = append(sheet.Rows, Row{Cells: renderTransaction(tx)})
		}
	}
	return layout
}

// renderTransaction formats one transaction as [date, description, amount].
// Amounts always carry two decimal places.
func renderTransaction(tx domain.TransactionRecord) []string {
	return []string{
		tx.Date.String(),
		tx.Description,
		tx.Amount.StringFixed(2),
	}
}
