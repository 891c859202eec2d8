package oracle_test

import (
	"math/big"
	"testing"

	"LiquidLend/internal/oracle"
	"LiquidLend/internal/ray"
)

// countingSource wraps a SimulatedSource and counts upstream fetches.
type countingSource struct {
	inner   *oracle.SimulatedSource
	fetches int
}

func (s *countingSource) FetchPrice(assetID string) (*oracle.PriceFeed, error) {
	s.fetches++
	return s.inner.FetchPrice(assetID)
}

func newTestService(t *testing.T, now *int64) (*oracle.Service, *countingSource) {
	t.Helper()

	source := oracle.NewSimulatedSource(oracle.DefaultSimulatedPrices())
	source.SetClock(func() int64 { return *now })

	counting := &countingSource{inner: source}
	svc := oracle.NewService(counting, oracle.DefaultStalenessSeconds, nil)
	svc.SetClock(func() int64 { return *now })
	return svc, counting
}

// ============================================================================
// Test: price lookup and caching
// ============================================================================

func TestPrice_KnownAsset(t *testing.T) {
	now := int64(1_700_000_000)
	svc, _ := newTestService(t, &now)

	feed, ok := svc.Price("btc")
	if !ok {
		t.Fatal("expected a price for btc")
	}
	want := new(big.Int).Mul(big.NewInt(60_000), ray.Ray)
	if feed.Price.Cmp(want) != 0 {
		t.Errorf("btc price = %s, want %s", feed.Price, want)
	}
}

func TestPrice_UnknownAsset(t *testing.T) {
	now := int64(1_700_000_000)
	svc, _ := newTestService(t, &now)

	if _, ok := svc.Price("doge"); ok {
		t.Error("expected no price for unknown asset")
	}
}

func TestPrice_CachedWithinTTL(t *testing.T) {
	now := int64(1_700_000_000)
	svc, counting := newTestService(t, &now)

	svc.Price("btc")
	now += 30
	svc.Price("btc")
	if counting.fetches != 1 {
		t.Errorf("fetches = %d, want 1 (second lookup served from cache)", counting.fetches)
	}

	now += 31
	svc.Price("btc")
	if counting.fetches != 2 {
		t.Errorf("fetches = %d, want 2 after cache expiry", counting.fetches)
	}
}

// ============================================================================
// Test: asset valuation
// ============================================================================

func TestAssetValue_WholeUnit(t *testing.T) {
	now := int64(1_700_000_000)
	svc, _ := newTestService(t, &now)

	// 1 BTC in satoshis at $60,000.
	value, ok := svc.AssetValue("btc", 100_000_000)
	if !ok {
		t.Fatal("expected a valuation")
	}
	want := new(big.Int).Mul(big.NewInt(60_000), ray.Ray)
	if value.Cmp(want) != 0 {
		t.Errorf("value = %s, want %s", value, want)
	}
}

func TestAssetValue_FractionalAmount(t *testing.T) {
	now := int64(1_700_000_000)
	svc, _ := newTestService(t, &now)

	value, ok := svc.AssetValue("btc", 50_000_000)
	if !ok {
		t.Fatal("expected a valuation")
	}
	want := new(big.Int).Mul(big.NewInt(30_000), ray.Ray)
	if value.Cmp(want) != 0 {
		t.Errorf("half a BTC = %s, want %s", value, want)
	}
}

func TestAssetValue_MissingPrice(t *testing.T) {
	now := int64(1_700_000_000)
	svc, _ := newTestService(t, &now)

	if _, ok := svc.AssetValue("doge", 1000); ok {
		t.Error("expected no valuation for unpriced asset")
	}
}

func TestAssetValue_StalePriceRejected(t *testing.T) {
	// A halted feed keeps serving old timestamps.
	frozen := oracle.NewSimulatedSource(oracle.DefaultSimulatedPrices())
	frozen.SetClock(func() int64 { return 1_700_000_000 })

	svc := oracle.NewService(frozen, oracle.DefaultStalenessSeconds, nil)
	svc.SetClock(func() int64 { return 1_700_000_000 + 301 })

	if _, ok := svc.AssetValue("btc", 1000); ok {
		t.Error("stale price should not produce a valuation")
	}
}

// ============================================================================
// Test: PriceFeed staleness
// ============================================================================

func TestPriceFeed_Stale(t *testing.T) {
	feed := &oracle.PriceFeed{AssetID: "btc", Price: ray.Ray, Timestamp: 1000}

	if feed.Stale(1300, 300) {
		t.Error("feed exactly at max age should still be fresh")
	}
	if !feed.Stale(1301, 300) {
		t.Error("feed older than max age should be stale")
	}
}
