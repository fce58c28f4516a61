package report

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/okozlov/mailvault/internal/domain"
)

func TestWriteXLSX_RoundTrip(t *testing.T) {
	layout := Compile([]domain.SheetBlock{
		block("HDFC", "a.pdf", tx("2024-04-01", "COFFEE SHOP", "-4.50")),
		block("ICICI", "b.pdf", tx("2024-04-02", "SALARY", "2500.00")),
	})
	path := filepath.Join(t.TempDir(), "report.xlsx")

	require.NoError(t, WriteXLSX(layout, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"HDFC", "ICICI"}, f.GetSheetList())

	header, err := f.GetCellValue("HDFC", "A1")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", header)

	amount, err := f.GetCellValue("HDFC", "C2")
	require.NoError(t, err)
	assert.Equal(t, "-4.50", amount)
}
