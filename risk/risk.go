package risk

import "github.com/shopspring/decimal"

// CalcStake sizes a trade as entryPct of the balance, floored at minStake.
// The fractional stake is truncated to cents. A negative balance yields zero.
func CalcStake(balance decimal.Decimal, entryPct float64, minStake decimal.Decimal) decimal.Decimal {
	if balance.IsNegative() {
		return decimal.Zero
	}
	stake := balance.Mul(decimal.NewFromFloat(entryPct)).Truncate(2)
	return decimal.Max(stake, minStake)
}
