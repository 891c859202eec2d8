package query

import "github.com/google/uuid"

// ReserveResponse is the persisted view of one asset's reserve.
// Ray-scaled values are returned as decimal strings.
type ReserveResponse struct {
	AssetID                   string `json:"asset_id"`
	UTXOID                    string `json:"utxo_id"`
	TotalLiquidity            int64  `json:"total_liquidity"`
	TotalBorrowed             int64  `json:"total_borrowed"`
	LiquidityIndex            string `json:"liquidity_index"`
	VariableBorrowIndex       string `json:"variable_borrow_index"`
	CurrentLiquidityRate      string `json:"current_liquidity_rate"`
	CurrentVariableBorrowRate string `json:"current_variable_borrow_rate"`
	ReserveFactor             string `json:"reserve_factor"`
	LastUpdateTimestamp       int64  `json:"last_update_timestamp"`
}

// SupplyPositionResponse is one supply position as persisted.
type SupplyPositionResponse struct {
	ID          uuid.UUID `json:"id"`
	Owner       string    `json:"owner"`
	AssetID     string    `json:"asset_id"`
	ShareAmount int64     `json:"share_amount"`
	IndexAtOpen string    `json:"index_at_open"`
	CreatedAt   int64     `json:"created_at"`
}

// DebtPositionResponse is one debt position as persisted.
type DebtPositionResponse struct {
	ID                uuid.UUID `json:"id"`
	Borrower          string    `json:"borrower"`
	BorrowedAssetID   string    `json:"borrowed_asset_id"`
	CollateralAssetID string    `json:"collateral_asset_id"`
	Principal         int64     `json:"principal"`
	BorrowIndexAtOpen string    `json:"borrow_index_at_open"`
	CollateralAmount  int64     `json:"collateral_amount"`
	CreatedAt         int64     `json:"created_at"`
}

// UserResponse is one user's persisted record. HealthFactor is empty
// when undefined (no outstanding debt).
type UserResponse struct {
	Address      string `json:"address"`
	HealthFactor string `json:"health_factor,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}
