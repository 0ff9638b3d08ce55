package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/insightdelivered/statement-ledger/internal/money"
)

// Date grammars accepted in a statement's date column. Each is anchored:
// the whole cell must be the date, not merely contain one.
var (
	// 22 Apr 2025
	datePatternText = regexp.MustCompile(`(?i)^(\d{1,2}) (Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec) (\d{4})$`)
	// 31-Aug-24
	datePatternDash = regexp.MustCompile(`(?i)^(\d{1,2})-(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)-(\d{2})$`)
	// 15/01/2024
	datePatternSlash = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	// 2024-01-15
	datePatternISO = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	// 15-01-2024
	datePatternNumericDash = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
)

var monthsByAbbrev = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// NormalizeCell collapses whitespace runs (including non-breaking spaces and
// line breaks inside a wrapped cell) to single spaces and trims the ends.
func NormalizeCell(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.Join(strings.FieldsFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || r == ' '
	}), " ")
}

// normalizeRow returns a normalized copy of row.
func normalizeRow(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = NormalizeCell(c)
	}
	return out
}

// ParseDate parses a statement date. It returns false when the text does not
// match one of the accepted grammars exactly or names an impossible day.
func ParseDate(text string) (time.Time, bool) {
	text = NormalizeCell(text)
	if text == "" {
		return time.Time{}, false
	}

	var day, month, year int
	switch {
	case datePatternText.MatchString(text):
		m := datePatternText.FindStringSubmatch(text)
		day, _ = strconv.Atoi(m[1])
		month = int(monthsByAbbrev[strings.ToLower(m[2])])
		year, _ = strconv.Atoi(m[3])
	case datePatternDash.MatchString(text):
		m := datePatternDash.FindStringSubmatch(text)
		day, _ = strconv.Atoi(m[1])
		month = int(monthsByAbbrev[strings.ToLower(m[2])])
		yy, _ := strconv.Atoi(m[3])
		year = 2000 + yy
	case datePatternSlash.MatchString(text):
		m := datePatternSlash.FindStringSubmatch(text)
		day, _ = strconv.Atoi(m[1])
		month, _ = strconv.Atoi(m[2])
		year, _ = strconv.Atoi(m[3])
	case datePatternISO.MatchString(text):
		m := datePatternISO.FindStringSubmatch(text)
		year, _ = strconv.Atoi(m[1])
		month, _ = strconv.Atoi(m[2])
		day, _ = strconv.Atoi(m[3])
	case datePatternNumericDash.MatchString(text):
		m := datePatternNumericDash.FindStringSubmatch(text)
		day, _ = strconv.Atoi(m[1])
		month, _ = strconv.Atoi(m[2])
		year, _ = strconv.Atoi(m[3])
	default:
		return time.Time{}, false
	}

	return validDate(year, month, day)
}

// validDate rejects days that time.Date would silently normalize,
// e.g. 31/02/2024 becoming 2 March.
func validDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// ParseAmount parses a non-negative amount cell. See money.Parse.
func ParseAmount(text string) (money.Amount, bool) {
	return money.Parse(NormalizeCell(text))
}

// parseBalance parses a running-balance cell, which may be overdrawn.
func parseBalance(text string) (money.Amount, bool) {
	return money.ParseSigned(NormalizeCell(text))
}

// isAmount reports whether text reads as a monetary amount. Overdrawn
// markers such as "OD" or a trailing minus only count in the balance slot.
func isAmount(text string, balanceSlot bool) bool {
	if balanceSlot {
		_, ok := parseBalance(text)
		return ok
	}
	_, ok := money.Parse(strings.TrimPrefix(NormalizeCell(text), "-"))
	return ok
}

// FormatDate is the date rendering shared by the writers and the CSV reader.
const FormatDate = "02/01/2006"
