// Package money provides the two-decimal monetary amount used throughout the
// ledger. It wraps shopspring/decimal so that balance arithmetic never goes
// through float64, and renders display strings with go-money.
package money

import (
	"fmt"
	"regexp"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the ISO-4217 code used when displaying amounts.
const DefaultCurrency = gomoney.GBP

// Amount is a monetary value with exactly two fraction digits.
// The zero value is 0.00; absence is modelled with *Amount == nil by callers.
type Amount struct {
	d decimal.Decimal
}

// Tolerance is the rounding tolerance used when comparing replayed balances.
var Tolerance = FromCents(1)

// currency glyphs stripped before parsing
var glyphReplacer = strings.NewReplacer(
	"£", "",
	"$", "",
	"€", "",
	",", "",
	" ", "",
	"\u00a0", "",
)

var plainAmount = regexp.MustCompile(`^\d+(\.\d{0,2})?$`)

// Parse converts text such as "1,234.56" or "£25.99" into an Amount.
// Negative signs, embedded text and multiple decimal points are rejected.
// It fails closed: ok is false and the returned Amount must be ignored.
func Parse(s string) (Amount, bool) {
	s = glyphReplacer.Replace(strings.TrimSpace(s))
	if s == "" || !plainAmount.MatchString(s) {
		return Amount{}, false
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return Amount{}, false
	}
	return Amount{d: d.Round(2)}, true
}

// overdrawn markers printed next to a running balance
var overdrawnSuffixes = []string{"od", "dr", "d", "-"}

// ParseSigned parses a running balance. On top of Parse it accepts a leading
// minus sign or a trailing OD/DR marker, both of which yield a negative amount.
func ParseSigned(s string) (Amount, bool) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSpace(s[1:])
	} else {
		lower := strings.ToLower(s)
		for _, suffix := range overdrawnSuffixes {
			if strings.HasSuffix(lower, suffix) {
				negative = true
				s = strings.TrimSpace(s[:len(s)-len(suffix)])
				break
			}
		}
	}
	a, ok := Parse(s)
	if !ok {
		return Amount{}, false
	}
	if negative {
		a = a.Neg()
	}
	return a, true
}

// MustParse is like ParseSigned but panics on bad input. Intended for tests
// and package-level fixtures.
func MustParse(s string) Amount {
	a, ok := ParseSigned(s)
	if !ok {
		panic(fmt.Sprintf("money: invalid amount %q", s))
	}
	return a
}

// FromCents builds an Amount from integer minor units.
func FromCents(cents int64) Amount {
	return Amount{d: decimal.New(cents, -2)}
}

// Ptr returns a pointer to a copy of a.
func (a Amount) Ptr() *Amount {
	return &a
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) Neg() Amount         { return Amount{d: a.d.Neg()} }
func (a Amount) Abs() Amount         { return Amount{d: a.d.Abs()} }

// Sign returns -1, 0 or 1.
func (a Amount) Sign() int { return a.d.Sign() }

func (a Amount) IsZero() bool { return a.d.IsZero() }

// Cmp compares a and b: -1 if a < b, 0 if equal, 1 if a > b.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// Cents returns the amount in integer minor units.
func (a Amount) Cents() int64 {
	return a.d.Shift(2).Round(0).IntPart()
}

// Float64 is used only for spreadsheet cells; never for arithmetic.
func (a Amount) Float64() float64 {
	f, _ := a.d.Round(2).Float64()
	return f
}

// String renders the amount without currency or grouping, e.g. "1234.50".
func (a Amount) String() string {
	return a.d.StringFixed(2)
}

// Display renders the amount with currency symbol and grouping, e.g. "£1,234.50".
func (a Amount) Display(currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return gomoney.New(a.Cents(), currency).Display()
}

// MarshalJSON renders the amount as a JSON number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, ok := ParseSigned(s)
	if !ok {
		return fmt.Errorf("money: invalid amount %q", s)
	}
	*a = v
	return nil
}
