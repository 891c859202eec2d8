package state

import (
	"math/big"

	"LiquidLend/internal/rates"
	"LiquidLend/internal/ray"
)

// Reserve is the accounting state of one lending pool, backed on-chain by
// a single covenant UTXO per asset.
//
// TotalLiquidity and TotalBorrowed are raw satoshi amounts. Indices and
// rates are Ray-scaled; the per-second rates are cached from the last
// utilization change so that accrual never needs the rate model.
type Reserve struct {
	AssetID string
	UTXOID  string

	TotalLiquidity int64
	TotalBorrowed  int64

	LiquidityIndex      *big.Int
	VariableBorrowIndex *big.Int

	CurrentLiquidityRate      *big.Int
	CurrentVariableBorrowRate *big.Int

	LastUpdateTimestamp int64

	ReserveFactor *big.Int
}

// NewReserve creates an empty reserve with both indices at 1.0 Ray.
func NewReserve(assetID, utxoID string, reserveFactor *big.Int, now int64) *Reserve {
	return &Reserve{
		AssetID:                   assetID,
		UTXOID:                    utxoID,
		LiquidityIndex:            new(big.Int).Set(ray.Ray),
		VariableBorrowIndex:       new(big.Int).Set(ray.Ray),
		CurrentLiquidityRate:      new(big.Int),
		CurrentVariableBorrowRate: new(big.Int),
		LastUpdateTimestamp:       now,
		ReserveFactor:             new(big.Int).Set(reserveFactor),
	}
}

// AvailableLiquidity is the amount not currently lent out.
func (r *Reserve) AvailableLiquidity() int64 {
	return r.TotalLiquidity - r.TotalBorrowed
}

// Accrue advances both cumulative indices to now using the cached
// per-second rates. A timestamp at or before the last update is a no-op,
// so accrual is idempotent within a second.
func (r *Reserve) Accrue(now int64) {
	timeDelta := now - r.LastUpdateTimestamp
	if timeDelta <= 0 {
		return
	}

	r.LiquidityIndex = ray.AccrueIndex(r.LiquidityIndex, r.CurrentLiquidityRate, timeDelta)
	r.VariableBorrowIndex = ray.AccrueIndex(r.VariableBorrowIndex, r.CurrentVariableBorrowRate, timeDelta)
	r.LastUpdateTimestamp = now
}

// PreviewIndices returns the indices as they would stand at now, without
// mutating the reserve. Used by read paths and the liquidation sweep.
func (r *Reserve) PreviewIndices(now int64) (liquidityIndex, borrowIndex *big.Int) {
	timeDelta := now - r.LastUpdateTimestamp
	liquidityIndex = ray.AccrueIndex(r.LiquidityIndex, r.CurrentLiquidityRate, timeDelta)
	borrowIndex = ray.AccrueIndex(r.VariableBorrowIndex, r.CurrentVariableBorrowRate, timeDelta)
	return liquidityIndex, borrowIndex
}

// RefreshRates recomputes the cached per-second rates from the reserve's
// current utilization. Must be called after every liquidity or debt change.
func (r *Reserve) RefreshRates(model *rates.Model) {
	liquidityRate, borrowRate := model.CurrentRates(r.TotalLiquidity, r.TotalBorrowed, r.ReserveFactor)
	r.CurrentLiquidityRate = liquidityRate
	r.CurrentVariableBorrowRate = borrowRate
}

// Snapshot is a read-only view of a reserve with interest accrued to a
// given instant.
type Snapshot struct {
	AssetID                   string
	UTXOID                    string
	TotalLiquidity            int64
	TotalBorrowed             int64
	AvailableLiquidity        int64
	LiquidityIndex            *big.Int
	VariableBorrowIndex       *big.Int
	CurrentLiquidityRate      *big.Int
	CurrentVariableBorrowRate *big.Int
	Utilization               *big.Int
	LastUpdateTimestamp       int64
}

// SnapshotAt captures the reserve with indices previewed to now.
func (r *Reserve) SnapshotAt(now int64, model *rates.Model) Snapshot {
	liquidityIndex, borrowIndex := r.PreviewIndices(now)
	return Snapshot{
		AssetID:                   r.AssetID,
		UTXOID:                    r.UTXOID,
		TotalLiquidity:            r.TotalLiquidity,
		TotalBorrowed:             r.TotalBorrowed,
		AvailableLiquidity:        r.AvailableLiquidity(),
		LiquidityIndex:            liquidityIndex,
		VariableBorrowIndex:       borrowIndex,
		CurrentLiquidityRate:      new(big.Int).Set(r.CurrentLiquidityRate),
		CurrentVariableBorrowRate: new(big.Int).Set(r.CurrentVariableBorrowRate),
		Utilization:               model.Utilization(r.TotalLiquidity, r.TotalBorrowed),
		LastUpdateTimestamp:       r.LastUpdateTimestamp,
	}
}
