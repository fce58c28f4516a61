package txparse

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/okozlov/mailvault/internal/domain"
)

// MatchFunc is a pure line recognizer. It inspects a line and its successor
// and, on a match, returns the transaction and how many lines it consumed
// (1 or 2). Rules are evaluated in priority order; the first match wins.
type MatchFunc func(line, next string) (domain.TransactionRecord, int, bool)

// Rule is one named statement-format recognizer.
type Rule struct {
	Name  string
	Match MatchFunc
}

// AmountPick chooses among multiple amount-like tokens found on a line.
// Statements right-align amounts, so the default picks the rightmost, but
// formats that put a balance column after the amount can override it.
type AmountPick func(amounts []decimal.Decimal) int

// PickRightmost is the default tie-break: the rightmost amount wins.
func PickRightmost(amounts []decimal.Decimal) int { return len(amounts) - 1 }

// PickLeftmost takes the first amount token, for formats whose trailing
// column is a running balance.
func PickLeftmost(amounts []decimal.Decimal) int { return 0 }

// DefaultRules returns the standard recognizer set in priority order.
func DefaultRules() []Rule {
	return []Rule{
		SameLineRule(PickRightmost),
		AdjacentLineRule(PickRightmost),
	}
}

// SameLineRule recognizes `<date> <description> <amount>` on a single line,
// with the date leading and amount-like tokens anywhere after the
// description.
func SameLineRule(pick AmountPick) Rule {
	if pick == nil {
		pick = PickRightmost
	}
	return Rule{
		Name: "date-desc-amount",
		Match: func(line, _ string) (domain.TransactionRecord, int, bool) {
			fields := strings.Fields(line)
			date, used, ok := leadingDate(fields)
			if !ok {
				return domain.TransactionRecord{}, 0, false
			}
			rest := fields[used:]
			amounts, indices := amountTokens(rest)
			if len(amounts) == 0 {
				return domain.TransactionRecord{}, 0, false
			}
			chosen := pick(amounts)
			desc := strings.Join(rest[:indices[chosen]], " ")
			if strings.TrimSpace(desc) == "" {
				return domain.TransactionRecord{}, 0, false
			}
			return domain.TransactionRecord{
				Date:        date,
				Description: desc,
				Amount:      amounts[chosen],
				Category:    categorize(desc),
			}, 1, true
		},
	}
}

// AdjacentLineRule recognizes `<date> <description>` with the amount alone on
// the following line, a layout some statements use for long descriptions.
func AdjacentLineRule(pick AmountPick) Rule {
	if pick == nil {
		pick = PickRightmost
	}
	return Rule{
		Name: "amount-next-line",
		Match: func(line, next string) (domain.TransactionRecord, int, bool) {
			fields := strings.Fields(line)
			date, used, ok := leadingDate(fields)
			if !ok || len(fields) == used {
				return domain.TransactionRecord{}, 0, false
			}
			if amounts, _ := amountTokens(fields[used:]); len(amounts) > 0 {
				// Same-line amounts belong to SameLineRule.
				return domain.TransactionRecord{}, 0, false
			}

			nextFields := strings.Fields(next)
			if len(nextFields) == 0 {
				return domain.TransactionRecord{}, 0, false
			}
			if _, _, hasDate := leadingDate(nextFields); hasDate {
				return domain.TransactionRecord{}, 0, false
			}
			amounts, _ := amountTokens(nextFields)
			if len(amounts) == 0 {
				return domain.TransactionRecord{}, 0, false
			}
			desc := strings.Join(fields[used:], " ")
			chosen := pick(amounts)
			return domain.TransactionRecord{
				Date:        date,
				Description: desc,
				Amount:      amounts[chosen],
				Category:    categorize(desc),
			}, 2, true
		},
	}
}

// amountTokens scans fields for amount-like tokens in order, pairing a token
// with a trailing CR/DR marker field when present. It returns the parsed
// amounts and the field index of each.
func amountTokens(fields []string) ([]decimal.Decimal, []int) {
	var amounts []decimal.Decimal
	var indices []int
	for i := 0; i < len(fields); i++ {
		token := fields[i]
		if i+1 < len(fields) {
			switch strings.ToUpper(fields[i+1]) {
			case "CR", "DR":
				token = token + " " + fields[i+1]
			}
		}
		if !isAmountToken(strings.Fields(token)[0]) {
			continue
		}
		if d, ok := NormalizeAmount(token); ok {
			amounts = append(amounts, d)
			indices = append(indices, i)
			if token != fields[i] {
				i++
			}
		}
	}
	return amounts, indices
}
