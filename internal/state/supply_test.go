package state_test

import (
	"math/big"
	"testing"

	"github.com/google/uuid"

	"LiquidLend/internal/ray"
	"LiquidLend/internal/state"
)

func newSupplyPosition(owner string, shares int64, index *big.Int, createdAt int64) *state.SupplyPosition {
	return &state.SupplyPosition{
		ID:          uuid.New(),
		Owner:       owner,
		AssetID:     "usdt",
		ShareAmount: shares,
		IndexAtOpen: new(big.Int).Set(index),
		CreatedAt:   createdAt,
	}
}

// ============================================================================
// Test: SupplyPosition valuation
// ============================================================================

func TestSupplyPosition_UnderlyingGrowsWithIndex(t *testing.T) {
	pos := newSupplyPosition("alice", 1_000_000, ray.Ray, 1)

	if got := pos.Underlying(ray.Ray); got != 1_000_000 {
		t.Errorf("underlying at open index = %d, want 1000000", got)
	}

	grown := ray.FromRatio(11, 10)
	if got := pos.Underlying(grown); got != 1_100_000 {
		t.Errorf("underlying at 1.1 index = %d, want 1100000", got)
	}
}

// ============================================================================
// Test: SupplyBook burning
// ============================================================================

func TestSupplyBook_BurnOldestFirst(t *testing.T) {
	book := state.NewSupplyBook()
	first := newSupplyPosition("alice", 600, ray.Ray, 1)
	second := newSupplyPosition("alice", 400, ray.Ray, 2)
	book.Add(first)
	book.Add(second)

	touched, removed, leftover := book.Burn("alice", "usdt", 700)
	if leftover != 0 {
		t.Fatalf("leftover = %d, want 0", leftover)
	}
	if len(removed) != 1 || removed[0] != first.ID {
		t.Errorf("removed = %v, want exactly the oldest position", removed)
	}
	if len(touched) != 1 || touched[0].ShareAmount != 300 {
		t.Errorf("second position should hold 300 shares, got %+v", touched)
	}
	if got := book.TotalShares("alice", "usdt"); got != 300 {
		t.Errorf("remaining shares = %d, want 300", got)
	}
}

func TestSupplyBook_BurnAllDropsKey(t *testing.T) {
	book := state.NewSupplyBook()
	book.Add(newSupplyPosition("alice", 1000, ray.Ray, 1))

	_, removed, leftover := book.Burn("alice", "usdt", 1000)
	if leftover != 0 {
		t.Fatalf("leftover = %d, want 0", leftover)
	}
	if len(removed) != 1 {
		t.Fatalf("removed %d positions, want 1", len(removed))
	}
	if got := book.Positions("alice", "usdt"); len(got) != 0 {
		t.Errorf("positions remain after full burn: %v", got)
	}
}

func TestSupplyBook_BurnShortfallReported(t *testing.T) {
	book := state.NewSupplyBook()
	book.Add(newSupplyPosition("alice", 1000, ray.Ray, 1))

	_, _, leftover := book.Burn("alice", "usdt", 2500)
	if leftover != 1500 {
		t.Errorf("leftover = %d, want 1500", leftover)
	}
}

func TestSupplyBook_TotalUnderlying(t *testing.T) {
	book := state.NewSupplyBook()
	book.Add(newSupplyPosition("alice", 1_000_000, ray.Ray, 1))
	book.Add(newSupplyPosition("alice", 500_000, ray.FromRatio(11, 10), 2))

	// First position grew 10%, second opened at the current index.
	current := ray.FromRatio(11, 10)
	if got := book.TotalUnderlying("alice", "usdt", current); got != 1_600_000 {
		t.Errorf("total underlying = %d, want 1600000", got)
	}
}

func TestSupplyBook_IsolatesOwners(t *testing.T) {
	book := state.NewSupplyBook()
	book.Add(newSupplyPosition("alice", 1000, ray.Ray, 1))
	book.Add(newSupplyPosition("bob", 2000, ray.Ray, 1))

	book.Burn("alice", "usdt", 1000)
	if got := book.TotalShares("bob", "usdt"); got != 2000 {
		t.Errorf("bob's shares = %d, want 2000", got)
	}
}
