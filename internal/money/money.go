package money

import (
	"fmt"
	"math"
	"strings"
)

// minorUnitFactor is the number of minor units per major unit. All
// supported settlement currencies use a two-digit exponent.
const minorUnitFactor = 100

// Money is a currency amount expressed in integer minor units (cents).
// Every amount stored or computed inside the service uses this
// representation; only provider adapters convert to and from a
// processor's native unit at the boundary.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: normalizeCurrency(currency)}
}

// FromMajorUnits converts a decimal major-unit amount (e.g. 402.60) into
// minor units. Rounding is half-up at the minor-unit boundary so that
// estimated, authorized and captured amounts never drift apart when the
// same value round-trips through a decimal-unit processor.
func FromMajorUnits(major float64, currency string) Money {
	return Money{
		Amount:   RoundHalfUp(major * minorUnitFactor),
		Currency: normalizeCurrency(currency),
	}
}

// MajorUnits returns the amount as a decimal major-unit value.
func (m Money) MajorUnits() float64 {
	return float64(m.Amount) / minorUnitFactor
}

func (m Money) IsPositive() bool {
	return m.Amount > 0
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

// RoundHalfUp rounds to the nearest integer with ties away from zero.
func RoundHalfUp(v float64) int64 {
	if v < 0 {
		return -int64(math.Floor(-v + 0.5))
	}
	return int64(math.Floor(v + 0.5))
}

// HourlyAmount computes the estimated charge for an hourly job from the
// rate snapshot (minor units per hour) and the estimated duration.
func HourlyAmount(rateMinorUnits int64, hours float64) int64 {
	return RoundHalfUp(float64(rateMinorUnits) * hours)
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
