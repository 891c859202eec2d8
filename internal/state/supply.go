package state

import (
	"math/big"

	"github.com/google/uuid"

	"LiquidLend/internal/ray"
)

// SupplyPosition is a depositor's share claim on one reserve. The share
// amount stays constant; the underlying value grows with the liquidity
// index.
type SupplyPosition struct {
	ID          uuid.UUID
	Owner       string
	AssetID     string
	ShareAmount int64
	IndexAtOpen *big.Int
	CreatedAt   int64
}

// Underlying values the position at the given current liquidity index:
// shares * (current_index / index_at_open).
func (p *SupplyPosition) Underlying(currentIndex *big.Int) int64 {
	ratio, err := ray.Div(currentIndex, p.IndexAtOpen)
	if err != nil {
		return 0
	}
	return ray.AmountForShares(p.ShareAmount, ratio)
}

type supplyKey struct {
	Owner   string
	AssetID string
}

// SupplyBook holds all open supply positions, per owner and asset, in
// creation order. Withdrawals burn shares oldest-first.
type SupplyBook struct {
	positions map[supplyKey][]*SupplyPosition
}

func NewSupplyBook() *SupplyBook {
	return &SupplyBook{
		positions: make(map[supplyKey][]*SupplyPosition),
	}
}

// Add appends a position. Positions are kept in insertion order.
func (b *SupplyBook) Add(pos *SupplyPosition) {
	key := supplyKey{Owner: pos.Owner, AssetID: pos.AssetID}
	b.positions[key] = append(b.positions[key], pos)
}

// Positions returns the open positions for an owner and asset, oldest
// first. The returned slice must not be mutated.
func (b *SupplyBook) Positions(owner, assetID string) []*SupplyPosition {
	return b.positions[supplyKey{Owner: owner, AssetID: assetID}]
}

// TotalShares sums the share amounts for an owner and asset.
func (b *SupplyBook) TotalShares(owner, assetID string) int64 {
	var total int64
	for _, pos := range b.Positions(owner, assetID) {
		total += pos.ShareAmount
	}
	return total
}

// TotalUnderlying values all of an owner's positions at the current index.
func (b *SupplyBook) TotalUnderlying(owner, assetID string, currentIndex *big.Int) int64 {
	var total int64
	for _, pos := range b.Positions(owner, assetID) {
		total += pos.Underlying(currentIndex)
	}
	return total
}

// Burn removes shares oldest-first. Fully burned positions are dropped
// from the book. Returns the touched positions, the IDs of removed
// positions, and any share deficit (non-zero only if the book held fewer
// shares than requested, which callers must treat as a broken invariant).
func (b *SupplyBook) Burn(owner, assetID string, shares int64) (touched []*SupplyPosition, removed []uuid.UUID, leftover int64) {
	key := supplyKey{Owner: owner, AssetID: assetID}
	remaining := shares

	var kept []*SupplyPosition
	for _, pos := range b.positions[key] {
		if remaining <= 0 {
			kept = append(kept, pos)
			continue
		}

		burn := pos.ShareAmount
		if burn > remaining {
			burn = remaining
		}
		pos.ShareAmount -= burn
		remaining -= burn

		if pos.ShareAmount == 0 {
			removed = append(removed, pos.ID)
			continue
		}
		touched = append(touched, pos)
		kept = append(kept, pos)
	}

	if len(kept) == 0 {
		delete(b.positions, key)
	} else {
		b.positions[key] = kept
	}

	return touched, removed, remaining
}

// All returns every open supply position.
func (b *SupplyBook) All() []*SupplyPosition {
	var out []*SupplyPosition
	for _, positions := range b.positions {
		out = append(out, positions...)
	}
	return out
}
