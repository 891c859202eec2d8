package rates_test

import (
	"math/big"
	"testing"

	"LiquidLend/internal/rates"
	"LiquidLend/internal/ray"
)

// ============================================================================
// Test: utilization
// ============================================================================

func TestUtilization_Basic(t *testing.T) {
	m := rates.DefaultModel()

	got := m.Utilization(1000, 250)
	want := ray.FromRatio(25, 100)
	if got.Cmp(want) != 0 {
		t.Errorf("utilization = %s, want %s", got, want)
	}
}

func TestUtilization_EmptyReserve(t *testing.T) {
	m := rates.DefaultModel()
	if got := m.Utilization(0, 100); got.Sign() != 0 {
		t.Errorf("utilization with no liquidity = %s, want 0", got)
	}
}

// ============================================================================
// Test: borrow rate curve
// ============================================================================

func TestBorrowRate_ZeroUtilizationIsBase(t *testing.T) {
	m := rates.DefaultModel()
	got := m.BorrowRateAnnual(new(big.Int))
	want := ray.FromRatio(2, 100)
	if got.Cmp(want) != 0 {
		t.Errorf("rate at 0%% utilization = %s, want %s", got, want)
	}
}

func TestBorrowRate_AtKink(t *testing.T) {
	m := rates.DefaultModel()
	got := m.BorrowRateAnnual(ray.FromRatio(80, 100))
	// base + slope1 = 22%
	want := ray.FromRatio(22, 100)
	if got.Cmp(want) != 0 {
		t.Errorf("rate at kink = %s, want %s", got, want)
	}
}

func TestBorrowRate_AboveKink(t *testing.T) {
	m := rates.DefaultModel()
	// 90% utilization: half of the excess range, so half of slope2 added.
	got := m.BorrowRateAnnual(ray.FromRatio(90, 100))
	want := ray.FromRatio(72, 100)
	if got.Cmp(want) != 0 {
		t.Errorf("rate at 90%% = %s, want %s", got, want)
	}
}

func TestBorrowRate_FullUtilization(t *testing.T) {
	m := rates.DefaultModel()
	got := m.BorrowRateAnnual(new(big.Int).Set(ray.Ray))
	want := ray.FromRatio(122, 100)
	if got.Cmp(want) != 0 {
		t.Errorf("rate at 100%% = %s, want %s", got, want)
	}
}

func TestBorrowRate_MonotonicInUtilization(t *testing.T) {
	m := rates.DefaultModel()
	prev := new(big.Int).Neg(big.NewInt(1))
	for pct := int64(0); pct <= 100; pct += 5 {
		rate := m.BorrowRateAnnual(ray.FromRatio(pct, 100))
		if rate.Cmp(prev) < 0 {
			t.Fatalf("rate decreased at %d%% utilization: %s < %s", pct, rate, prev)
		}
		prev = rate
	}
}

// ============================================================================
// Test: per-second conversion
// ============================================================================

func TestPerSecond_UnitRate(t *testing.T) {
	annual := big.NewInt(ray.SecondsPerYear)
	if got := rates.PerSecond(annual); got.Int64() != 1 {
		t.Errorf("PerSecond(SecondsPerYear units) = %s, want 1", got)
	}
}

func TestPerSecond_ScalesBackWithinRounding(t *testing.T) {
	annual := ray.FromRatio(2, 100)
	perSec := rates.PerSecond(annual)

	back := new(big.Int).Mul(perSec, big.NewInt(ray.SecondsPerYear))
	diff := new(big.Int).Sub(back, annual)
	diff.Abs(diff)
	if diff.Cmp(big.NewInt(ray.SecondsPerYear)) > 0 {
		t.Errorf("per-second rate scaled back drifted by %s", diff)
	}
}

// ============================================================================
// Test: combined rates
// ============================================================================

func TestCurrentRates_EmptyReserve(t *testing.T) {
	m := rates.DefaultModel()
	liq, bor := m.CurrentRates(0, 0, ray.FromRatio(10, 100))
	if liq.Sign() != 0 || bor.Sign() != 0 {
		t.Errorf("rates for empty reserve = (%s, %s), want (0, 0)", liq, bor)
	}
}

func TestCurrentRates_LiquidityRateRelation(t *testing.T) {
	m := rates.DefaultModel()
	reserveFactor := ray.FromRatio(10, 100)

	liq, bor := m.CurrentRates(1_000_000, 500_000, reserveFactor)
	if bor.Sign() <= 0 {
		t.Fatal("borrow rate should be positive at 50% utilization")
	}

	// liquidity = borrow * u * (1 - reserve_factor)
	u := ray.FromRatio(50, 100)
	oneMinusRF := new(big.Int).Sub(ray.Ray, reserveFactor)
	want := ray.Mul(ray.Mul(bor, u), oneMinusRF)
	if liq.Cmp(want) != 0 {
		t.Errorf("liquidity rate = %s, want %s", liq, want)
	}

	// The supplier side always earns less than borrowers pay.
	if liq.Cmp(bor) >= 0 {
		t.Errorf("liquidity rate %s should be below borrow rate %s", liq, bor)
	}
}
