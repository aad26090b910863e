package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places every amount is kept at.
const MoneyPlaces = 2

// MaxAmountDigits is the most integer digits an entered amount may have.
const MaxAmountDigits = 15

const maxAmountInput = 40

// RoundMoney rounds an amount half away from zero to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// FormatMoney renders an amount with exactly two decimal places.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}

// ParseAmount parses operator input such as "100", "50.5" or "$1,250.00"
// into a cent-rounded amount. Sign checks are left to the operation.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, &ErrValidation{Field: "amount", Message: "amount is required"}
	}
	if len(s) > maxAmountInput {
		return decimal.Zero, &ErrValidation{Field: "amount", Message: "amount is too long"}
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, &ErrValidation{Field: "amount", Message: "exponent notation is not accepted: " + s}
	}
	whole, _, _ := strings.Cut(strings.TrimLeft(s, "+-"), ".")
	if len(strings.TrimLeft(whole, "0")) > MaxAmountDigits {
		return decimal.Zero, &ErrValidation{
			Field:   "amount",
			Message: fmt.Sprintf("amount must have at most %d digits before the decimal point", MaxAmountDigits),
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ErrValidation{Field: "amount", Message: "not a number: " + s}
	}
	return RoundMoney(d), nil
}
