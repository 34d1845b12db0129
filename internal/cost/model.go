// Package cost computes the price of a billed organ call. All arithmetic is
// exact decimal so repeated billing never accumulates rounding drift.
package cost

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier boundaries and multipliers. Highest matching tier wins; tiers do not
// stack.
var (
	multOne = decimal.NewFromInt(1)

	sizeLargeMult = decimal.RequireFromString("1.5") // > 10 KB
	sizeMedMult   = decimal.RequireFromString("1.2") // > 1 KB

	timeSlowMult = decimal.RequireFromString("1.3") // > 5 s
	timeMedMult  = decimal.RequireFromString("1.1") // > 2 s
)

const (
	sizeLargeBytes = 10000
	sizeMedBytes   = 1000
)

var (
	timeSlowSecs = decimal.NewFromInt(5)
	timeMedSecs  = decimal.NewFromInt(2)
)

// Model prices organ calls from a per-organ base-rate table. Unknown organs
// fall back to DefaultRate. Model is immutable after construction; hot
// reloads build a new Model and swap it at the gateway.
type Model struct {
	rates       map[string]decimal.Decimal
	defaultRate decimal.Decimal
}

// NewModel builds a Model from base rates in major currency units
// (e.g. "gmail" → 0.0005).
func NewModel(rates map[string]decimal.Decimal, defaultRate decimal.Decimal) *Model {
	m := &Model{
		rates:       make(map[string]decimal.Decimal, len(rates)),
		defaultRate: defaultRate,
	}
	for organ, r := range rates {
		m.rates[organ] = r
	}
	return m
}

// BaseRate returns the configured rate for organ, or the default.
func (m *Model) BaseRate(organ string) decimal.Decimal {
	if r, ok := m.rates[organ]; ok {
		return r
	}
	return m.defaultRate
}

// Compute prices a call: base rate × size multiplier × time multiplier.
// responseSize is in bytes, executionTime in seconds. Negative inputs are
// rejected; the result is deterministic and side-effect free.
func (m *Model) Compute(organ string, responseSize int64, executionTime decimal.Decimal) (decimal.Decimal, error) {
	if responseSize < 0 {
		return decimal.Zero, fmt.Errorf("response size %d is negative", responseSize)
	}
	if executionTime.IsNegative() {
		return decimal.Zero, fmt.Errorf("execution time %s is negative", executionTime)
	}
	base := m.BaseRate(organ)
	return base.Mul(sizeMultiplier(responseSize)).Mul(timeMultiplier(executionTime)), nil
}

func sizeMultiplier(size int64) decimal.Decimal {
	switch {
	case size > sizeLargeBytes:
		return sizeLargeMult
	case size > sizeMedBytes:
		return sizeMedMult
	default:
		return multOne
	}
}

func timeMultiplier(secs decimal.Decimal) decimal.Decimal {
	switch {
	case secs.GreaterThan(timeSlowSecs):
		return timeSlowMult
	case secs.GreaterThan(timeMedSecs):
		return timeMedMult
	default:
		return multOne
	}
}

// ToMinorUnits converts a major-unit cost to minor units at the given
// decimal scale, rounding up so a billed call never underpays.
// scale 12 turns 0.0005 WND into 500000000 planck.
func ToMinorUnits(amount decimal.Decimal, scale int32) int64 {
	return amount.Shift(scale).Ceil().IntPart()
}
