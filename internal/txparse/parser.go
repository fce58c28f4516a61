// Package txparse converts raw statement text into structured transaction
// records using an ordered set of layout heuristics. New statement formats
// are supported by adding a rule, not by touching existing ones.
package txparse

import (
	"strings"

	"github.com/okozlov/mailvault/internal/domain"
)

// Parser applies its rules to each line in priority order. Lines matching no
// rule are noise (headers, footers, running balances) and are skipped.
type Parser struct {
	rules []Rule
}

// NewParser builds a parser; with no rules given, DefaultRules apply.
func NewParser(rules ...Rule) *Parser {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Parser{rules: rules}
}

// Parse extracts transaction records from ordered text lines. It never fails:
// a document with no recognizable transaction lines yields zero records, which
// the caller surfaces as a count for manual review.
func (p *Parser) Parse(lines []string) []domain.TransactionRecord {
	var records []domain.TransactionRecord
	for i := 0; i < len(lines); i++ {
		next := ""
		if i+1 < len(lines) {
			next = lines[i+1]
		}
		for _, rule := range p.rules {
			rec, consumed, ok := rule.Match(lines[i], next)
			if !ok {
				continue
			}
			records = append(records, rec)
			if consumed > 1 {
				i += consumed - 1
			}
			break
		}
	}
	return records
}

// categoryHints maps description substrings to coarse spending categories.
// Purely best-effort; unmatched descriptions keep an empty category.
var categoryHints = []struct {
	needle   string
	category string
}{
	{"SALARY", "Income"},
	{"PAYROLL", "Income"},
	{"GROCER", "Groceries"},
	{"SUPERMARKET", "Groceries"},
	{"COFFEE", "Cafes"},
	{"CAFE", "Cafes"},
	{"RESTAURANT", "Restaurants"},
	{"UBER", "Transport"},
	{"TAXI", "Transport"},
	{"FUEL", "Transport"},
	{"RENT", "Housing"},
	{"ELECTRICITY", "Utilities"},
	{"WATER BILL", "Utilities"},
	{"PHARMACY", "Health"},
	{"ATM", "Cash"},
	{"TRANSFER", "Transfers"},
	{"INTEREST", "Fees"},
	{"FEE", "Fees"},
	{"CHARGE", "Fees"},
}

func categorize(description string) string {
	upper := strings.ToUpper(description)
	for _, h := range categoryHints {
		if strings.Contains(upper, h.needle) {
			return h.category
		}
	}
	return ""
}
