package persistence_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"LiquidLend/internal/persistence"
	"LiquidLend/internal/ray"
	"LiquidLend/internal/state"
	"LiquidLend/internal/testutil"
)

// ============================================================================
// Test: Store round trips (integration)
// ============================================================================

func TestStore_RoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := persistence.NewStore(db)

	reserve := state.NewReserve("usdt", "utxo_abc_0", ray.FromRatio(10, 100), 1_700_000_000)
	reserve.TotalLiquidity = 1_000_000
	reserve.TotalBorrowed = 250_000
	if err := store.SaveReserve(ctx, reserve); err != nil {
		t.Fatalf("save reserve: %v", err)
	}

	supply := &state.SupplyPosition{
		ID:          uuid.New(),
		Owner:       "alice",
		AssetID:     "usdt",
		ShareAmount: 1_000_000,
		IndexAtOpen: ray.FromRatio(11, 10),
		CreatedAt:   1_700_000_001,
	}
	if err := store.SaveSupplyPosition(ctx, supply); err != nil {
		t.Fatalf("save supply position: %v", err)
	}

	debt := &state.DebtPosition{
		ID:                uuid.New(),
		Borrower:          "bob",
		BorrowedAssetID:   "usdt",
		CollateralAssetID: "btc",
		Principal:         250_000,
		BorrowIndexAtOpen: ray.FromRatio(105, 100),
		CollateralAmount:  2_000,
		CreatedAt:         1_700_000_002,
	}
	if err := store.SaveDebtPosition(ctx, debt); err != nil {
		t.Fatalf("save debt position: %v", err)
	}

	userWithHF := &state.User{Address: "bob", HealthFactor: ray.FromRatio(12, 10), CreatedAt: 1_700_000_000}
	userNoHF := &state.User{Address: "alice", CreatedAt: 1_700_000_000}
	for _, u := range []*state.User{userWithHF, userNoHF} {
		if err := store.SaveUser(ctx, u); err != nil {
			t.Fatalf("save user %s: %v", u.Address, err)
		}
	}

	loaded, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}

	if len(loaded.Reserves) != 1 {
		t.Fatalf("loaded %d reserves, want 1", len(loaded.Reserves))
	}
	r := loaded.Reserves[0]
	if r.AssetID != "usdt" || r.TotalLiquidity != 1_000_000 || r.TotalBorrowed != 250_000 {
		t.Errorf("reserve mismatch: %+v", r)
	}
	if r.LiquidityIndex.Cmp(reserve.LiquidityIndex) != 0 {
		t.Errorf("liquidity index = %s, want %s", r.LiquidityIndex, reserve.LiquidityIndex)
	}

	if len(loaded.SupplyPositions) != 1 || loaded.SupplyPositions[0].ID != supply.ID {
		t.Fatalf("supply positions mismatch: %+v", loaded.SupplyPositions)
	}
	if loaded.SupplyPositions[0].IndexAtOpen.Cmp(supply.IndexAtOpen) != 0 {
		t.Error("supply index at open did not round trip")
	}

	if len(loaded.DebtPositions) != 1 || loaded.DebtPositions[0].ID != debt.ID {
		t.Fatalf("debt positions mismatch: %+v", loaded.DebtPositions)
	}
	if loaded.DebtPositions[0].BorrowIndexAtOpen.Cmp(debt.BorrowIndexAtOpen) != 0 {
		t.Error("borrow index at open did not round trip")
	}

	if len(loaded.Users) != 2 {
		t.Fatalf("loaded %d users, want 2", len(loaded.Users))
	}
	for _, u := range loaded.Users {
		switch u.Address {
		case "bob":
			if u.HealthFactor == nil || u.HealthFactor.Cmp(userWithHF.HealthFactor) != 0 {
				t.Errorf("bob hf = %v, want %s", u.HealthFactor, userWithHF.HealthFactor)
			}
		case "alice":
			if u.HealthFactor != nil {
				t.Errorf("alice hf = %s, want nil", u.HealthFactor)
			}
		}
	}
}

func TestStore_UpsertOverwrites(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := persistence.NewStore(db)
	reserve := state.NewReserve("btc", "utxo_one_0", ray.FromRatio(10, 100), 1_700_000_000)
	if err := store.SaveReserve(ctx, reserve); err != nil {
		t.Fatalf("first save: %v", err)
	}

	reserve.UTXOID = "utxo_two_0"
	reserve.TotalLiquidity = 42
	if err := store.SaveReserve(ctx, reserve); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(loaded.Reserves) != 1 {
		t.Fatalf("upsert created %d rows, want 1", len(loaded.Reserves))
	}
	if loaded.Reserves[0].UTXOID != "utxo_two_0" || loaded.Reserves[0].TotalLiquidity != 42 {
		t.Errorf("upsert did not overwrite: %+v", loaded.Reserves[0])
	}
}
