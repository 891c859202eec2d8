package utxo_test

import (
	"context"
	"testing"
	"time"

	"LiquidLend/internal/utxo"
)

func sampleOp() utxo.OpContext {
	return utxo.OpContext{
		Operation:   "supply",
		UserAddress: "bc1qalice",
		AssetID:     "usdt",
		Amount:      1_000_000,
		Timestamp:   time.Unix(1_700_000_000, 0).UTC(),
	}
}

// ============================================================================
// Test: transaction id derivation
// ============================================================================

func TestTransactionID_Deterministic(t *testing.T) {
	a := sampleOp().TransactionID()
	b := sampleOp().TransactionID()
	if a != b {
		t.Errorf("same operation produced different ids: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("id length = %d, want 64 hex chars", len(a))
	}
}

func TestTransactionID_SensitiveToFields(t *testing.T) {
	base := sampleOp()

	changed := base
	changed.Amount = 2_000_000
	if base.TransactionID() == changed.TransactionID() {
		t.Error("amount change should alter the transaction id")
	}

	changed = base
	changed.Operation = "withdraw"
	if base.TransactionID() == changed.TransactionID() {
		t.Error("operation change should alter the transaction id")
	}

	changed = base
	changed.Timestamp = base.Timestamp.Add(time.Second)
	if base.TransactionID() == changed.TransactionID() {
		t.Error("timestamp change should alter the transaction id")
	}
}

// ============================================================================
// Test: simulated broadcaster
// ============================================================================

func TestSimulatedBroadcaster_Submit(t *testing.T) {
	caster := utxo.NewSimulatedBroadcaster()
	op := sampleOp()

	txID, ok := caster.Submit(context.Background(), op)
	if !ok {
		t.Fatal("simulated broadcast should always succeed")
	}
	if txID != op.TransactionID() {
		t.Errorf("tx id = %s, want derived id %s", txID, op.TransactionID())
	}
}
