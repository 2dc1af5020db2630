// Package money centralises decimal arithmetic for monetary fields.
// Amounts travel as strings at the boundary and as decimal.Decimal inside
// the engine; binary floating point is never used for money.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Parse converts a decimal string into an amount. The empty string parses
// as zero, matching the upstream forms that omit untouched sides.
func Parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d, nil
}

// MustParse is for compile-time constants in tests and seeds.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders an amount to two decimal places, rounding half up.
func Format(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// ClampZero floors negative amounts at zero for persisted derived fields.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// LineAmounts is one proposed journal line as submitted by a caller.
type LineAmounts struct {
	Debit  string
	Credit string
}

// BalanceCheck is the result of validating a set of proposed lines.
type BalanceCheck struct {
	Valid       bool
	TotalDebit  string
	TotalCredit string
}

// ValidateBalance sums the debit and credit sides of the proposed lines and
// reports whether they balance at two decimal places. An empty line list is
// balanced with both totals "0.00". The error return is reserved for
// unparsable amounts; a well-formed but unbalanced set is not an error here.
func ValidateBalance(lines []LineAmounts) (BalanceCheck, error) {
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for i, line := range lines {
		debit, err := Parse(line.Debit)
		if err != nil {
			return BalanceCheck{}, fmt.Errorf("money: line %d debit: %w", i, err)
		}
		credit, err := Parse(line.Credit)
		if err != nil {
			return BalanceCheck{}, fmt.Errorf("money: line %d credit: %w", i, err)
		}
		totalDebit = totalDebit.Add(debit)
		totalCredit = totalCredit.Add(credit)
	}
	debitStr := Format(totalDebit)
	creditStr := Format(totalCredit)
	return BalanceCheck{
		Valid:       debitStr == creditStr,
		TotalDebit:  debitStr,
		TotalCredit: creditStr,
	}, nil
}
