package rates

import (
	"math/big"

	"LiquidLend/internal/ray"
)

// Model is a piecewise-linear interest rate curve similar to AAVE v2.
// Below the optimal utilization the borrow rate climbs along Slope1,
// above it Slope2 takes over and the curve steepens sharply.
// All parameters are annual rates in Ray precision.
type Model struct {
	BaseRate           *big.Int
	OptimalUtilization *big.Int
	Slope1             *big.Int
	Slope2             *big.Int
}

// DefaultModel returns the standard curve: 2% base, 80% kink,
// 20% slope below the kink, +100% above it.
func DefaultModel() *Model {
	return &Model{
		BaseRate:           ray.FromRatio(2, 100),
		OptimalUtilization: ray.FromRatio(80, 100),
		Slope1:             ray.FromRatio(20, 100),
		Slope2:             ray.FromRatio(100, 100),
	}
}

var secondsPerYearRay = new(big.Int).Mul(big.NewInt(ray.SecondsPerYear), ray.Ray)

// PerSecond converts an annual rate (Ray) to a per-second rate (Ray).
func PerSecond(annual *big.Int) *big.Int {
	out, err := ray.Div(annual, secondsPerYearRay)
	if err != nil {
		return new(big.Int)
	}
	return out
}

// Utilization returns borrowed/liquidity as a Ray value, zero when the
// reserve holds no liquidity.
func (m *Model) Utilization(totalLiquidity, totalBorrowed int64) *big.Int {
	if totalLiquidity <= 0 {
		return new(big.Int)
	}

	u := new(big.Int).Mul(big.NewInt(totalBorrowed), ray.Ray)
	return u.Quo(u, big.NewInt(totalLiquidity))
}

// BorrowRateAnnual returns the annual variable borrow rate for a given
// utilization (both Ray).
func (m *Model) BorrowRateAnnual(utilization *big.Int) *big.Int {
	if utilization.Sign() <= 0 {
		return new(big.Int).Set(m.BaseRate)
	}

	if utilization.Cmp(m.OptimalUtilization) <= 0 {
		// base + slope1 * (u / u_opt)
		ratio, err := ray.Div(utilization, m.OptimalUtilization)
		if err != nil {
			return new(big.Int).Set(m.BaseRate)
		}
		out := ray.Mul(m.Slope1, ratio)
		return out.Add(out, m.BaseRate)
	}

	// base + slope1 + slope2 * ((u - u_opt) / (1 - u_opt))
	excess := new(big.Int).Sub(utilization, m.OptimalUtilization)
	denom := new(big.Int).Sub(ray.Ray, m.OptimalUtilization)
	ratio, err := ray.Div(excess, denom)
	if err != nil {
		ratio = new(big.Int)
	}

	out := ray.Mul(m.Slope2, ratio)
	out.Add(out, m.Slope1)
	return out.Add(out, m.BaseRate)
}

// CurrentRates returns the per-second liquidity and borrow rates for the
// reserve's current utilization. Both are zero when the reserve is empty.
//
// The liquidity rate is the borrow rate scaled by utilization, minus the
// protocol's cut: borrow_rate * u * (1 - reserve_factor).
func (m *Model) CurrentRates(totalLiquidity, totalBorrowed int64, reserveFactor *big.Int) (liquidityRate, borrowRate *big.Int) {
	if totalLiquidity <= 0 {
		return new(big.Int), new(big.Int)
	}

	utilization := m.Utilization(totalLiquidity, totalBorrowed)
	borrowRate = PerSecond(m.BorrowRateAnnual(utilization))

	oneMinusRF := new(big.Int).Sub(ray.Ray, reserveFactor)
	liquidityRate = ray.Mul(ray.Mul(borrowRate, utilization), oneMinusRF)

	return liquidityRate, borrowRate
}
