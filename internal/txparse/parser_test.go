package txparse

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_BasicStatementLine(t *testing.T) {
	p := NewParser()

	recs := p.Parse([]string{"04/01/2024  COFFEE SHOP  -4.50"})

	require.Len(t, recs, 1)
	assert.Equal(t, civil.Date{Year: 2024, Month: 4, Day: 1}, recs[0].Date)
	assert.Equal(t, "COFFEE SHOP", recs[0].Description)
	assert.True(t, recs[0].Amount.Equal(decimal.RequireFromString("-4.50")))
	assert.Equal(t, "Cafes", recs[0].Category)
}

func TestParse_RightmostAmountWins(t *testing.T) {
	p := NewParser()

	// 1,200.00 is the running balance column; -55.25 precedes it.
	recs := p.Parse([]string{"2024-03-15  CARD PAYMENT 55.25  1,200.00"})

	require.Len(t, recs, 1)
	assert.True(t, recs[0].Amount.Equal(decimal.RequireFromString("1200.00")),
		"default tie-break takes the rightmost amount-like token")
}

func TestParse_LeftmostOverride(t *testing.T) {
	p := NewParser(SameLineRule(PickLeftmost))

	recs := p.Parse([]string{"2024-03-15  CARD PAYMENT  -55.25  1,200.00"})

	require.Len(t, recs, 1)
	assert.True(t, recs[0].Amount.Equal(decimal.RequireFromString("-55.25")))
}

func TestParse_NoiseLinesSkipped(t *testing.T) {
	p := NewParser()

	recs := p.Parse([]string{
		"ACME BANK PLC",
		"Statement of Account",
		"Date        Description        Amount",
		"04/01/2024  COFFEE SHOP  -4.50",
		"Page 1 of 3",
		"CLOSING BALANCE",
	})

	require.Len(t, recs, 1)
	assert.Equal(t, "COFFEE SHOP", recs[0].Description)
}

func TestParse_AdjacentLineAmount(t *testing.T) {
	p := NewParser()

	recs := p.Parse([]string{
		"12 Mar 2024  INTERNATIONAL WIRE REF 99801",
		"-1,250.00",
		"13 Mar 2024  GROCERY MART  -20.10",
	})

	require.Len(t, recs, 2)
	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 12}, recs[0].Date)
	assert.True(t, recs[0].Amount.Equal(decimal.RequireFromString("-1250.00")))
	assert.Equal(t, "GROCERY MART", recs[1].Description)
}

func TestParse_EmptyResultIsNotAnError(t *testing.T) {
	p := NewParser()

	recs := p.Parse([]string{"nothing here", "really nothing"})
	assert.Empty(t, recs)

	recs = p.Parse(nil)
	assert.Empty(t, recs)
}

func TestParse_DateFormats(t *testing.T) {
	p := NewParser()
	tests := []struct {
		line string
		want civil.Date
	}{
		{"2024-04-01 SHOP -1.00", civil.Date{Year: 2024, Month: 4, Day: 1}},
		{"04/01/2024 SHOP -1.00", civil.Date{Year: 2024, Month: 4, Day: 1}},
		{"1/2/2024 SHOP -1.00", civil.Date{Year: 2024, Month: 1, Day: 2}},
		{"02 Jan 2024 SHOP -1.00", civil.Date{Year: 2024, Month: 1, Day: 2}},
		{"2 January 2024 SHOP -1.00", civil.Date{Year: 2024, Month: 1, Day: 2}},
		{"15.03.2024 SHOP -1.00", civil.Date{Year: 2024, Month: 3, Day: 15}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			recs := p.Parse([]string{tt.line})
			require.Len(t, recs, 1)
			assert.Equal(t, tt.want, recs[0].Date)
		})
	}
}

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1,234.50", "1234.50", true},
		{"1.234,50", "1234.50", true},
		{"-4.50", "-4.50", true},
		{"(4.50)", "-4.50", true},
		{"4.50 DR", "-4.50", true},
		{"4.50 CR", "4.50", true},
		{"£12.00", "12.00", true},
		{"₹1,00,000", "100000", true}, // lakh grouping
		{"4,500", "4500", true},
		{"4.500", "4500", true},
		{"12,34", "12.34", true},
		{"garbage", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, ok := NormalizeAmount(tt.in)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.True(t, d.Equal(decimal.RequireFromString(tt.want)),
					"got %s want %s", d, tt.want)
			}
		})
	}
}

func TestNormalizeAmount_RoundTripsWithoutPrecisionLoss(t *testing.T) {
	d, ok := NormalizeAmount("1,234.50")
	require.True(t, ok)
	assert.Equal(t, "1234.50", d.StringFixed(2))
}

func TestIsAmountToken_RejectsBareIntegers(t *testing.T) {
	assert.False(t, isAmountToken("2024"), "years must not look like amounts")
	assert.False(t, isAmountToken("500"), "bare integers must not look like amounts")
	assert.True(t, isAmountToken("-500"))
	assert.True(t, isAmountToken("500.00"))
	assert.True(t, isAmountToken("1,234.50"))
}
