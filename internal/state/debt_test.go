package state_test

import (
	"math/big"
	"testing"

	"github.com/google/uuid"

	"LiquidLend/internal/ray"
	"LiquidLend/internal/state"
)

func newDebtPosition(borrower string, principal int64, index *big.Int, createdAt int64) *state.DebtPosition {
	return &state.DebtPosition{
		ID:                uuid.New(),
		Borrower:          borrower,
		BorrowedAssetID:   "usdt",
		CollateralAssetID: "btc",
		Principal:         principal,
		BorrowIndexAtOpen: new(big.Int).Set(index),
		CollateralAmount:  50_000,
		CreatedAt:         createdAt,
	}
}

// ============================================================================
// Test: DebtPosition
// ============================================================================

func TestDebtPosition_CurrentDebtGrowsWithIndex(t *testing.T) {
	pos := newDebtPosition("bob", 1_000_000, ray.Ray, 1)

	if got := pos.CurrentDebt(ray.Ray); got != 1_000_000 {
		t.Errorf("debt at open index = %d, want 1000000", got)
	}

	grown := ray.FromRatio(105, 100)
	if got := pos.CurrentDebt(grown); got != 1_050_000 {
		t.Errorf("debt at 1.05 index = %d, want 1050000", got)
	}
}

func TestDebtPosition_AccruedInterest(t *testing.T) {
	pos := newDebtPosition("bob", 1_000_000, ray.Ray, 1)

	grown := ray.FromRatio(105, 100)
	if got := pos.AccruedInterest(grown); got != 50_000 {
		t.Errorf("accrued interest = %d, want 50000", got)
	}
	if got := pos.AccruedInterest(ray.Ray); got != 0 {
		t.Errorf("interest at flat index = %d, want 0", got)
	}
}

// ============================================================================
// Test: DebtBook
// ============================================================================

func TestDebtBook_AddGetDelete(t *testing.T) {
	book := state.NewDebtBook()
	pos := newDebtPosition("bob", 1000, ray.Ray, 1)
	book.Add(pos)

	if got := book.Get(pos.ID); got != pos {
		t.Error("Get did not return the stored position")
	}
	book.Delete(pos.ID)
	if book.Get(pos.ID) != nil {
		t.Error("position survived Delete")
	}
	if book.Get(uuid.New()) != nil {
		t.Error("unknown id should return nil")
	}
}

func TestDebtBook_ByBorrowerOrderedByCreation(t *testing.T) {
	book := state.NewDebtBook()
	late := newDebtPosition("bob", 1000, ray.Ray, 300)
	early := newDebtPosition("bob", 2000, ray.Ray, 100)
	other := newDebtPosition("carol", 3000, ray.Ray, 200)
	book.Add(late)
	book.Add(early)
	book.Add(other)

	got := book.ByBorrower("bob")
	if len(got) != 2 {
		t.Fatalf("ByBorrower returned %d positions, want 2", len(got))
	}
	if got[0] != early || got[1] != late {
		t.Error("positions not in creation order")
	}
}

func TestDebtBook_AllDeterministic(t *testing.T) {
	book := state.NewDebtBook()
	for i := int64(0); i < 5; i++ {
		book.Add(newDebtPosition("bob", 1000, ray.Ray, 10-i))
	}

	first := book.All()
	second := book.All()
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatal("All returned different orders across calls")
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i].CreatedAt < first[i-1].CreatedAt {
			t.Fatal("All not sorted by creation time")
		}
	}
}
