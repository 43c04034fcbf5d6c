// Package money holds the fixed-point helpers shared by every balance-moving component.
//
// Amounts are shopspring decimals kept at two fractional digits. Rounding is half away
// from zero, which is what decimal.Round does.
package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for monetary amounts.
const Scale = 2

var (
	hundred = decimal.NewFromInt(100)

	ErrInvalidAmount = errors.New("amount must be a non-negative value with at most 2 decimal places")
	ErrMalformed     = errors.New("malformed amount")
)

// Zero is a scale-2 zero.
var Zero = decimal.Zero

// Round rounds d to Scale fractional digits.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Percent returns round(total * rate / 100).
func Percent(total, rate decimal.Decimal) decimal.Decimal {
	return Round(total.Mul(rate).Div(hundred))
}

// Parse parses a decimal string and rejects anything finer than Scale.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrMalformed
	}
	if err := Validate(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// Validate reports whether d is a non-negative amount representable at Scale.
func Validate(d decimal.Decimal) error {
	if d.IsNegative() || !d.Equal(Round(d)) {
		return ErrInvalidAmount
	}
	return nil
}

// ValidatePair validates a coins/bonus pair and requires at least one positive part.
func ValidatePair(coins, bonusCoins decimal.Decimal) error {
	if err := Validate(coins); err != nil {
		return err
	}
	if err := Validate(bonusCoins); err != nil {
		return err
	}
	if !coins.IsPositive() && !bonusCoins.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Split apportions amount between coins and bonus coins in the ratio coinsPart:bonusPart.
//
// The coins share is rounded to Scale and the bonus share takes the remainder, so the two
// parts always add up to amount exactly. For 0 <= amount <= coinsPart+bonusPart both parts
// stay within [0, coinsPart] and [0, bonusPart].
func Split(amount, coinsPart, bonusPart decimal.Decimal) (coins, bonusCoins decimal.Decimal) {
	total := coinsPart.Add(bonusPart)
	if total.IsZero() {
		return decimal.Zero, amount
	}
	coins = Round(amount.Mul(coinsPart).Div(total))
	return coins, amount.Sub(coins)
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
