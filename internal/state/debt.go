package state

import (
	"math/big"
	"sort"

	"github.com/google/uuid"

	"LiquidLend/internal/ray"
)

// DebtPosition is one collateralized loan. Principal is recorded at the
// borrow index observed when the position was opened (or last reset by a
// partial liquidation); the live debt is principal scaled by index growth.
type DebtPosition struct {
	ID                uuid.UUID
	Borrower          string
	BorrowedAssetID   string
	CollateralAssetID string
	Principal         int64
	BorrowIndexAtOpen *big.Int
	CollateralAmount  int64
	CreatedAt         int64
}

// CurrentDebt is principal * (current_index / index_at_open).
func (p *DebtPosition) CurrentDebt(currentBorrowIndex *big.Int) int64 {
	ratio, err := ray.Div(currentBorrowIndex, p.BorrowIndexAtOpen)
	if err != nil {
		return 0
	}
	return ray.MulInt(p.Principal, ratio).Int64()
}

// AccruedInterest is the debt growth since the position opened.
func (p *DebtPosition) AccruedInterest(currentBorrowIndex *big.Int) int64 {
	return ray.AccruedInterest(p.Principal, p.BorrowIndexAtOpen, currentBorrowIndex)
}

// DebtBook holds all open debt positions keyed by ID.
type DebtBook struct {
	positions map[uuid.UUID]*DebtPosition
}

func NewDebtBook() *DebtBook {
	return &DebtBook{
		positions: make(map[uuid.UUID]*DebtPosition),
	}
}

func (b *DebtBook) Add(pos *DebtPosition) {
	b.positions[pos.ID] = pos
}

func (b *DebtBook) Get(id uuid.UUID) *DebtPosition {
	return b.positions[id]
}

func (b *DebtBook) Delete(id uuid.UUID) {
	delete(b.positions, id)
}

// ByBorrower returns a borrower's positions ordered by creation time.
func (b *DebtBook) ByBorrower(borrower string) []*DebtPosition {
	var out []*DebtPosition
	for _, pos := range b.positions {
		if pos.Borrower == borrower {
			out = append(out, pos)
		}
	}
	sortPositions(out)
	return out
}

// All returns every open position in a deterministic order.
func (b *DebtBook) All() []*DebtPosition {
	out := make([]*DebtPosition, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, pos)
	}
	sortPositions(out)
	return out
}

func (b *DebtBook) Len() int {
	return len(b.positions)
}

// Map iteration order is random; sort by creation time with the ID as a
// tie-breaker so sweeps and health scans are deterministic.
func sortPositions(positions []*DebtPosition) {
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].CreatedAt != positions[j].CreatedAt {
			return positions[i].CreatedAt < positions[j].CreatedAt
		}
		return positions[i].ID.String() < positions[j].ID.String()
	})
}
