package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionRecord is one normalized transaction extracted from a statement.
// Amount is signed (money in positive, money out negative) and kept exact;
// Date is a calendar date with no time component.
type TransactionRecord struct {
	Date        civil.Date      `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category,omitempty"`
}

// SheetBlock holds the rows contributed by one source document to its group's
// report sheet. Blocks within a sheet appear in processing order.
type SheetBlock struct {
	GroupKey       string
	SourceFilename string
	HeaderLabel    string
	Transactions   []TransactionRecord
}
