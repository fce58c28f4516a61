package txparse

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// dateLayouts are tried in order. Slash dates default to month-first, the
// convention of the statement formats seen so far.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02 January 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02.01.2006",
}

// parseDate parses a single candidate date token (or token span).
func parseDate(s string) (civil.Date, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), true
		}
	}
	return civil.Date{}, false
}

// leadingDate tries to read a calendar date from the first one to three
// fields of a line. It returns the date and the number of fields consumed.
func leadingDate(fields []string) (civil.Date, int, bool) {
	max := 3
	if len(fields) < max {
		max = len(fields)
	}
	for n := max; n >= 1; n-- {
		if d, ok := parseDate(strings.Join(fields[:n], " ")); ok {
			return d, n, true
		}
	}
	return civil.Date{}, 0, false
}
