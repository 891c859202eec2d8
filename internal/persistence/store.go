package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"LiquidLend/internal/state"
)

// Store mirrors pool state into Postgres. Each write is an upsert keyed
// on the entity's natural id, so replays after a crash converge on the
// same rows. Ray-scaled values travel as NUMERIC(78,0) text.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) SaveReserve(ctx context.Context, r *state.Reserve) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lending.reserves
			(asset_id, utxo_id, total_liquidity, total_borrowed,
			 liquidity_index, variable_borrow_index,
			 current_liquidity_rate, current_variable_borrow_rate,
			 reserve_factor, last_update_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (asset_id) DO UPDATE SET
			utxo_id                      = EXCLUDED.utxo_id,
			total_liquidity              = EXCLUDED.total_liquidity,
			total_borrowed               = EXCLUDED.total_borrowed,
			liquidity_index              = EXCLUDED.liquidity_index,
			variable_borrow_index        = EXCLUDED.variable_borrow_index,
			current_liquidity_rate       = EXCLUDED.current_liquidity_rate,
			current_variable_borrow_rate = EXCLUDED.current_variable_borrow_rate,
			reserve_factor               = EXCLUDED.reserve_factor,
			last_update_timestamp        = EXCLUDED.last_update_timestamp
	`,
		r.AssetID, r.UTXOID, r.TotalLiquidity, r.TotalBorrowed,
		r.LiquidityIndex.String(), r.VariableBorrowIndex.String(),
		r.CurrentLiquidityRate.String(), r.CurrentVariableBorrowRate.String(),
		r.ReserveFactor.String(), r.LastUpdateTimestamp,
	)
	return err
}

func (s *Store) SaveSupplyPosition(ctx context.Context, pos *state.SupplyPosition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lending.supply_positions
			(id, owner_address, asset_id, share_amount, index_at_open, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			share_amount  = EXCLUDED.share_amount,
			index_at_open = EXCLUDED.index_at_open
	`,
		pos.ID, pos.Owner, pos.AssetID, pos.ShareAmount,
		pos.IndexAtOpen.String(), pos.CreatedAt,
	)
	return err
}

func (s *Store) DeleteSupplyPosition(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM lending.supply_positions WHERE id = $1`, id)
	return err
}

func (s *Store) SaveDebtPosition(ctx context.Context, pos *state.DebtPosition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lending.debt_positions
			(id, borrower_address, borrowed_asset_id, collateral_asset_id,
			 principal, borrow_index_at_open, collateral_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			principal            = EXCLUDED.principal,
			borrow_index_at_open = EXCLUDED.borrow_index_at_open,
			collateral_amount    = EXCLUDED.collateral_amount
	`,
		pos.ID, pos.Borrower, pos.BorrowedAssetID, pos.CollateralAssetID,
		pos.Principal, pos.BorrowIndexAtOpen.String(), pos.CollateralAmount,
		pos.CreatedAt,
	)
	return err
}

func (s *Store) DeleteDebtPosition(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM lending.debt_positions WHERE id = $1`, id)
	return err
}

func (s *Store) SaveUser(ctx context.Context, u *state.User) error {
	var hf sql.NullString
	if u.HealthFactor != nil {
		hf = sql.NullString{String: u.HealthFactor.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lending.users (address, health_factor, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET
			health_factor = EXCLUDED.health_factor
	`, u.Address, hf, u.CreatedAt)
	return err
}

// PoolState is everything LoadAll recovers at startup.
type PoolState struct {
	Reserves        []*state.Reserve
	SupplyPositions []*state.SupplyPosition
	DebtPositions   []*state.DebtPosition
	Users           []*state.User
}

// LoadAll reads the full persisted pool state for startup restore.
func (s *Store) LoadAll(ctx context.Context) (*PoolState, error) {
	ps := &PoolState{}

	var err error
	if ps.Reserves, err = s.loadReserves(ctx); err != nil {
		return nil, fmt.Errorf("load reserves: %w", err)
	}
	if ps.SupplyPositions, err = s.loadSupplyPositions(ctx); err != nil {
		return nil, fmt.Errorf("load supply positions: %w", err)
	}
	if ps.DebtPositions, err = s.loadDebtPositions(ctx); err != nil {
		return nil, fmt.Errorf("load debt positions: %w", err)
	}
	if ps.Users, err = s.loadUsers(ctx); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return ps, nil
}

func (s *Store) loadReserves(ctx context.Context) ([]*state.Reserve, error) {
	rows, err := s.db.QueryContext(ctx, `
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

	var out []*state.Reserve
	for rows.Next() {
		r := &state.Reserve{}
		var liqIdx, borIdx, liqRate, borRate, resFactor string
		if err := rows.Scan(
			&r.AssetID, &r.UTXOID, &r.TotalLiquidity, &r.TotalBorrowed,
			&liqIdx, &borIdx, &liqRate, &borRate, &resFactor,
			&r.LastUpdateTimestamp,
		); err != nil {
			return nil, err
		}
		if r.LiquidityIndex, err = parseRay("liquidity_index", liqIdx); err != nil {
			return nil, err
		}
		if r.VariableBorrowIndex, err = parseRay("variable_borrow_index", borIdx); err != nil {
			return nil, err
		}
		if r.CurrentLiquidityRate, err = parseRay("current_liquidity_rate", liqRate); err != nil {
			return nil, err
		}
		if r.CurrentVariableBorrowRate, err = parseRay("current_variable_borrow_rate", borRate); err != nil {
			return nil, err
		}
		if r.ReserveFactor, err = parseRay("reserve_factor", resFactor); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) loadSupplyPositions(ctx context.Context) ([]*state.SupplyPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_address, asset_id, share_amount, index_at_open, created_at
		FROM lending.supply_positions
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*state.SupplyPosition
	for rows.Next() {
		pos := &state.SupplyPosition{}
		var idx string
		if err := rows.Scan(&pos.ID, &pos.Owner, &pos.AssetID, &pos.ShareAmount, &idx, &pos.CreatedAt); err != nil {
			return nil, err
		}
		if pos.IndexAtOpen, err = parseRay("index_at_open", idx); err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func (s *Store) loadDebtPositions(ctx context.Context) ([]*state.DebtPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, borrower_address, borrowed_asset_id, collateral_asset_id,
		       principal, borrow_index_at_open, collateral_amount, created_at
		FROM lending.debt_positions
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*state.DebtPosition
	for rows.Next() {
		pos := &state.DebtPosition{}
		var idx string
		if err := rows.Scan(
			&pos.ID, &pos.Borrower, &pos.BorrowedAssetID, &pos.CollateralAssetID,
			&pos.Principal, &idx, &pos.CollateralAmount, &pos.CreatedAt,
		); err != nil {
			return nil, err
		}
		if pos.BorrowIndexAtOpen, err = parseRay("borrow_index_at_open", idx); err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func (s *Store) loadUsers(ctx context.Context) ([]*state.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, health_factor, created_at
		FROM lending.users
		ORDER BY address
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*state.User
	for rows.Next() {
		u := &state.User{}
		var hf sql.NullString
		if err := rows.Scan(&u.Address, &hf, &u.CreatedAt); err != nil {
			return nil, err
		}
		if hf.Valid {
			if u.HealthFactor, err = parseRay("health_factor", hf.String); err != nil {
				return nil, err
			}
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func parseRay(column, text string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, fmt.Errorf("column %s holds non-integer value %q", column, text)
	}
	return v, nil
}
