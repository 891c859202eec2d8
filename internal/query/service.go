package query

import (
	"context"
	"database/sql"
	"fmt"
)

// QueryService serves read-only lookups from the persisted state mirror.
// Results lag the in-memory pool by at most one write; for interest-
// accrued live values, callers use the pool's snapshot methods instead.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetReserve returns the persisted reserve row for an asset, or nil when
// the asset has no reserve.
func (qs *QueryService) GetReserve(ctx context.Context, assetID string) (*ReserveResponse, error) {
	var r ReserveResponse
	err := qs.db.QueryRowContext(ctx, `
		SELECT asset_id, utxo_id, total_liquidity, total_borrowed,
		       liquidity_index, variable_borrow_index,
		       current_liquidity_rate, current_variable_borrow_rate,
		       reserve_factor, last_update_timestamp
		FROM lending.reserves
		WHERE asset_id = $1
	`, assetID).Scan(
		&r.AssetID, &r.UTXOID, &r.TotalLiquidity, &r.TotalBorrowed,
		&r.LiquidityIndex, &r.VariableBorrowIndex,
		&r.CurrentLiquidityRate, &r.CurrentVariableBorrowRate,
		&r.ReserveFactor, &r.LastUpdateTimestamp,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reserve %s: %w", assetID, err)
	}
	return &r, nil
}

// ListReserves returns every persisted reserve.
func (qs *QueryService) ListReserves(ctx context.Context) ([]ReserveResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, utxo_id, total_liquidity, total_borrowed,
		       liquidity_index, variable_borrow_index,
		       current_liquidity_rate, current_variable_borrow_rate,
		       reserve_factor, last_update_timestamp
		FROM lending.reserves
		ORDER BY asset_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReserveResponse
	for rows.Next() {
		var r ReserveResponse
		if err := rows.Scan(
			&r.AssetID, &r.UTXOID, &r.TotalLiquidity, &r.TotalBorrowed,
			&r.LiquidityIndex, &r.VariableBorrowIndex,
			&r.CurrentLiquidityRate, &r.CurrentVariableBorrowRate,
			&r.ReserveFactor, &r.LastUpdateTimestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSupplyPositions returns a user's supply positions, oldest first,
// optionally filtered by asset.
func (qs *QueryService) GetSupplyPositions(ctx context.Context, ownerAddress string, assetID *string) ([]SupplyPositionResponse, error) {
	query := `
		SELECT id, owner_address, asset_id, share_amount, index_at_open, created_at
		FROM lending.supply_positions
		WHERE owner_address = $1
	`
	args := []interface{}{ownerAddress}
	if assetID != nil {
		query += " AND asset_id = $2"
		args = append(args, *assetID)
	}
	query += " ORDER BY created_at, id"

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SupplyPositionResponse
	for rows.Next() {
		var p SupplyPositionResponse
		if err := rows.Scan(&p.ID, &p.Owner, &p.AssetID, &p.ShareAmount, &p.IndexAtOpen, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetDebtPositions returns a user's open debt positions, oldest first.
func (qs *QueryService) GetDebtPositions(ctx context.Context, borrowerAddress string) ([]DebtPositionResponse, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT id, borrower_address, borrowed_asset_id, collateral_asset_id,
		       principal, borrow_index_at_open, collateral_amount, created_at
		FROM lending.debt_positions
		WHERE borrower_address = $1
		ORDER BY created_at, id
	`, borrowerAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DebtPositionResponse
	for rows.Next() {
		var p DebtPositionResponse
		if err := rows.Scan(
			&p.ID, &p.Borrower, &p.BorrowedAssetID, &p.CollateralAssetID,
			&p.Principal, &p.BorrowIndexAtOpen, &p.CollateralAmount, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetUser returns a user's persisted record, or nil if unknown.
func (qs *QueryService) GetUser(ctx context.Context, address string) (*UserResponse, error) {
	var u UserResponse
	var hf sql.NullString
	err := qs.db.QueryRowContext(ctx, `
		SELECT address, health_factor, created_at
		FROM lending.users
		WHERE address = $1
	`, address).Scan(&u.Address, &hf, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", address, err)
	}
	if hf.Valid {
		u.HealthFactor = hf.String
	}
	return &u, nil
}
