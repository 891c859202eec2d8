package core

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LiquidLend/internal/observability"
	"LiquidLend/internal/oracle"
	"LiquidLend/internal/rates"
	"LiquidLend/internal/ray"
	"LiquidLend/internal/state"
	"LiquidLend/internal/utxo"
)

// Store persists pool state changes. The in-memory books are the source
// of truth; the store is a durable projection, so write errors are
// surfaced through logs and metrics rather than failing the operation.
type Store interface {
	SaveReserve(ctx context.Context, r *state.Reserve) error
	SaveSupplyPosition(ctx context.Context, pos *state.SupplyPosition) error
	DeleteSupplyPosition(ctx context.Context, id uuid.UUID) error
	SaveDebtPosition(ctx context.Context, pos *state.DebtPosition) error
	DeleteDebtPosition(ctx context.Context, id uuid.UUID) error
	SaveUser(ctx context.Context, u *state.User) error
}

// Pool is the lending pool engine. One instance owns all reserves and
// positions; every operation accrues interest first, applies its state
// delta under the reserve's UTXO lock, then hands the settlement
// transaction to the broadcaster.
type Pool struct {
	mu sync.Mutex

	params state.ProtocolParams
	model  *rates.Model

	reserves map[string]*state.Reserve
	supplies *state.SupplyBook
	debts    *state.DebtBook
	users    *state.UserRegistry

	oracle *oracle.Service
	locks  *utxo.LockTable
	caster utxo.Broadcaster
	store  Store

	log     zerolog.Logger
	metrics *observability.Metrics
	now     func() int64
}

func NewPool(
	params state.ProtocolParams,
	model *rates.Model,
	oracleSvc *oracle.Service,
	locks *utxo.LockTable,
	caster utxo.Broadcaster,
	store Store,
	metrics *observability.Metrics,
) *Pool {
	return &Pool{
		params:   params,
		model:    model,
		reserves: make(map[string]*state.Reserve),
		supplies: state.NewSupplyBook(),
		debts:    state.NewDebtBook(),
		users:    state.NewUserRegistry(),
		oracle:   oracleSvc,
		locks:    locks,
		caster:   caster,
		store:    store,
		log:      observability.NewLogger("pool"),
		metrics:  metrics,
		now:      func() int64 { return time.Now().Unix() },
	}
}

// SetClock overrides the time source.
func (p *Pool) SetClock(now func() int64) {
	p.now = now
}

// InitReserve creates the reserve for an asset, or returns the existing
// one. Indices start at 1.0 Ray.
func (p *Pool) InitReserve(ctx context.Context, assetID, utxoID string) *state.Reserve {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r := p.reserves[assetID]; r != nil {
		return r
	}

	r := state.NewReserve(assetID, utxoID, p.params.ReserveFactor, p.now())
	p.reserves[assetID] = r
	p.persistReserve(ctx, r)
	p.log.Info().Str("asset", assetID).Str("utxo_id", utxoID).Msg("reserve initialized")
	return r
}

// Restore loads previously persisted state into the books. Call once at
// startup, before serving operations.
func (p *Pool) Restore(reserves []*state.Reserve, supplies []*state.SupplyPosition, debts []*state.DebtPosition, users []*state.User) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range reserves {
		p.reserves[r.AssetID] = r
	}
	for _, pos := range supplies {
		p.supplies.Add(pos)
	}
	for _, pos := range debts {
		p.debts.Add(pos)
	}
	for _, u := range users {
		p.users.Restore(u)
	}
}

// ============================================================================
// Supply / Withdraw
// ============================================================================

type SupplyResult struct {
	Position       *state.SupplyPosition
	SharesMinted   int64
	LiquidityIndex *big.Int
	TxID           string
}

// Supply deposits amount into the asset's reserve and mints pool shares
// at the current liquidity index.
func (p *Pool) Supply(ctx context.Context, userAddress, assetID string, amount int64) (*SupplyResult, error) {
	const op = "supply"
	start := time.Now()

	if amount <= 0 {
		return nil, p.rejected(op, errf(KindInvalidAmount, op, "supply amount must be positive, got %d", amount))
	}

	lockID, err := p.lockKey(op, assetID)
	if err != nil {
		return nil, p.rejected(op, err)
	}
	if err := p.locks.Acquire(lockID); err != nil {
		return nil, p.rejected(op, wrap(KindUTXORaceCondition, op, err))
	}
	defer p.locks.Release(lockID)

	result, opCtx, err := p.applySupply(ctx, userAddress, assetID, amount)
	if err != nil {
		return nil, p.rejected(op, err)
	}

	if txID, ok := p.submit(ctx, opCtx); ok {
		result.TxID = txID
		// The reserve covenant output moves with every settlement.
		p.rotateReserveUTXO(ctx, assetID, txID)
	}

	p.applied(op, assetID, start)
	return result, nil
}

func (p *Pool) applySupply(ctx context.Context, userAddress, assetID string, amount int64) (*SupplyResult, utxo.OpContext, error) {
	const op = "supply"

	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.reserves[assetID]
	if r == nil {
		return nil, utxo.OpContext{}, errf(KindInternal, op, "reserve not configured for asset %s", assetID)
	}

	now := p.now()
	user := p.users.GetOrCreate(userAddress, now)
	p.accrue(r, now)

	shares, err := ray.SharesForAmount(amount, r.LiquidityIndex)
	if err != nil {
		return nil, utxo.OpContext{}, wrap(KindDivideByZero, op, err)
	}

	pos := &state.SupplyPosition{
		ID:          uuid.New(),
		Owner:       userAddress,
		AssetID:     assetID,
		ShareAmount: shares,
		IndexAtOpen: new(big.Int).Set(r.LiquidityIndex),
		CreatedAt:   now,
	}
	p.supplies.Add(pos)

	r.TotalLiquidity += amount
	r.RefreshRates(p.model)

	p.persistReserve(ctx, r)
	p.persistSupplyPosition(ctx, pos)
	p.persistUser(ctx, user)

	p.log.Info().
		Str("user", userAddress).
		Str("asset", assetID).
		Int64("amount", amount).
		Int64("shares", shares).
		Msg("supply applied")

	result := &SupplyResult{
		Position:       pos,
		SharesMinted:   shares,
		LiquidityIndex: new(big.Int).Set(r.LiquidityIndex),
	}
	opCtx := utxo.OpContext{
		Operation:   op,
		UserAddress: userAddress,
		AssetID:     assetID,
		Amount:      amount,
		PositionID:  pos.ID.String(),
		Timestamp:   time.Unix(now, 0).UTC(),
	}
	return result, opCtx, nil
}

type WithdrawResult struct {
	Amount         int64
	SharesBurned   int64
	LiquidityIndex *big.Int
	TxID           string
}

// Withdraw redeems supplied assets. amount == 0 withdraws the full
// balance. Shares are burned from the oldest positions first.
func (p *Pool) Withdraw(ctx context.Context, userAddress, assetID string, amount int64) (*WithdrawResult, error) {
	const op = "withdraw"
	start := time.Now()

	if amount < 0 {
		return nil, p.rejected(op, errf(KindInvalidAmount, op, "withdraw amount cannot be negative, got %d", amount))
	}

	lockID, err := p.lockKey(op, assetID)
	if err != nil {
		return nil, p.rejected(op, err)
	}
	if err := p.locks.Acquire(lockID); err != nil {
		return nil, p.rejected(op, wrap(KindUTXORaceCondition, op, err))
	}
	defer p.locks.Release(lockID)

	result, opCtx, err := p.applyWithdraw(ctx, userAddress, assetID, amount)
	if err != nil {
		return nil, p.rejected(op, err)
	}

	if txID, ok := p.submit(ctx, opCtx); ok {
		result.TxID = txID
	}

	p.applied(op, assetID, start)
	return result, nil
}

func (p *Pool) applyWithdraw(ctx context.Context, userAddress, assetID string, amount int64) (*WithdrawResult, utxo.OpContext, error) {
	const op = "withdraw"

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.users.Get(userAddress) == nil {
		return nil, utxo.OpContext{}, errf(KindPositionNotFound, op, "unknown user %s", userAddress)
	}

	r := p.reserves[assetID]
	if r == nil {
		return nil, utxo.OpContext{}, errf(KindInternal, op, "reserve not configured for asset %s", assetID)
	}

	now := p.now()
	p.accrue(r, now)

	positions := p.supplies.Positions(userAddress, assetID)
	if len(positions) == 0 {
		return nil, utxo.OpContext{}, errf(KindPositionNotFound, op, "no supply positions for asset %s", assetID)
	}

	totalUnderlying := p.supplies.TotalUnderlying(userAddress, assetID, r.LiquidityIndex)
	totalShares := p.supplies.TotalShares(userAddress, assetID)
	if totalUnderlying <= 0 || totalShares <= 0 {
		return nil, utxo.OpContext{}, errf(KindInsufficientBalance, op, "no balance to withdraw")
	}

	amountToWithdraw := amount
	if amountToWithdraw == 0 {
		amountToWithdraw = totalUnderlying
	}
	if amountToWithdraw > totalUnderlying {
		return nil, utxo.OpContext{}, errf(KindInsufficientBalance, op,
			"balance %d below requested %d", totalUnderlying, amountToWithdraw)
	}

	if r.TotalLiquidity < amountToWithdraw {
		return nil, utxo.OpContext{}, errf(KindInsufficientLiquidity, op,
			"reserve holds %d, requested %d", r.TotalLiquidity, amountToWithdraw)
	}

	sharesToBurn, err := ray.SharesForAmount(amountToWithdraw, r.LiquidityIndex)
	if err != nil {
		return nil, utxo.OpContext{}, wrap(KindDivideByZero, op, err)
	}
	if sharesToBurn <= 0 {
		return nil, utxo.OpContext{}, errf(KindInvalidAmount, op, "calculated share burn is zero")
	}

	touched, removed, leftover := p.supplies.Burn(userAddress, assetID, sharesToBurn)
	if leftover > 0 {
		// The underlying and share totals above guarantee coverage.
		return nil, utxo.OpContext{}, errf(KindInternal, op, "share burn short by %d", leftover)
	}

	r.TotalLiquidity -= amountToWithdraw
	r.RefreshRates(p.model)

	p.persistReserve(ctx, r)
	for _, pos := range touched {
		p.persistSupplyPosition(ctx, pos)
	}
	for _, id := range removed {
		p.deleteSupplyPosition(ctx, id)
	}

	p.log.Info().
		Str("user", userAddress).
		Str("asset", assetID).
		Int64("amount", amountToWithdraw).
		Int64("shares_burned", sharesToBurn).
		Msg("withdraw applied")

	result := &WithdrawResult{
		Amount:         amountToWithdraw,
		SharesBurned:   sharesToBurn,
		LiquidityIndex: new(big.Int).Set(r.LiquidityIndex),
	}
	opCtx := utxo.OpContext{
		Operation:   op,
		UserAddress: userAddress,
		AssetID:     assetID,
		Amount:      amountToWithdraw,
		Timestamp:   time.Unix(now, 0).UTC(),
	}
	return result, opCtx, nil
}

// ============================================================================
// Borrow
// ============================================================================

type BorrowResult struct {
	Position     *state.DebtPosition
	HealthFactor *big.Int
	TxID         string
}

// Borrow opens a collateralized debt position against the borrow asset's
// reserve. The borrow value must stay within the collateral's max LTV.
func (p *Pool) Borrow(ctx context.Context, userAddress, collateralAssetID string, collateralAmount int64, borrowAssetID string, borrowAmount int64) (*BorrowResult, error) {
	const op = "borrow"
	start := time.Now()

	if collateralAmount <= 0 {
		return nil, p.rejected(op, errf(KindInvalidCollateral, op, "collateral amount must be positive, got %d", collateralAmount))
	}
	if borrowAmount <= 0 {
		return nil, p.rejected(op, errf(KindInvalidCollateral, op, "borrow amount must be positive, got %d", borrowAmount))
	}

	lockID, err := p.lockKey(op, borrowAssetID)
	if err != nil {
		return nil, p.rejected(op, err)
	}
	if err := p.locks.Acquire(lockID); err != nil {
		return nil, p.rejected(op, wrap(KindUTXORaceCondition, op, err))
	}
	defer p.locks.Release(lockID)

	result, opCtx, err := p.applyBorrow(ctx, userAddress, collateralAssetID, collateralAmount, borrowAssetID, borrowAmount)
	if err != nil {
		return nil, p.rejected(op, err)
	}

	if txID, ok := p.submit(ctx, opCtx); ok {
		result.TxID = txID
	}

	p.applied(op, borrowAssetID, start)
	return result, nil
}

func (p *Pool) applyBorrow(ctx context.Context, userAddress, collateralAssetID string, collateralAmount int64, borrowAssetID string, borrowAmount int64) (*BorrowResult, utxo.OpContext, error) {
	const op = "borrow"

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	user := p.users.GetOrCreate(userAddress, now)

	collateralValue, ok := p.oracle.AssetValue(collateralAssetID, collateralAmount)
	if !ok {
		return nil, utxo.OpContext{}, errf(KindStaleOraclePrice, op, "no usable price for collateral asset %s", collateralAssetID)
	}
	borrowValue, ok := p.oracle.AssetValue(borrowAssetID, borrowAmount)
	if !ok {
		return nil, utxo.OpContext{}, errf(KindStaleOraclePrice, op, "no usable price for borrow asset %s", borrowAssetID)
	}

	maxBorrowValue := ray.Mul(collateralValue, p.params.MaxLTV)
	if borrowValue.Cmp(maxBorrowValue) > 0 {
		return nil, utxo.OpContext{}, errf(KindInvalidCollateral, op,
			"borrow value %s exceeds max LTV value %s", borrowValue, maxBorrowValue)
	}

	r := p.reserves[borrowAssetID]
	if r == nil {
		return nil, utxo.OpContext{}, errf(KindInternal, op, "reserve not configured for asset %s", borrowAssetID)
	}

	if r.TotalLiquidity < borrowAmount {
		return nil, utxo.OpContext{}, errf(KindInsufficientLiquidity, op,
			"reserve holds %d, requested %d", r.TotalLiquidity, borrowAmount)
	}

	p.accrue(r, now)

	pos := &state.DebtPosition{
		ID:                uuid.New(),
		Borrower:          userAddress,
		BorrowedAssetID:   borrowAssetID,
		CollateralAssetID: collateralAssetID,
		Principal:         borrowAmount,
		BorrowIndexAtOpen: new(big.Int).Set(r.VariableBorrowIndex),
		CollateralAmount:  collateralAmount,
		CreatedAt:         now,
	}
	p.debts.Add(pos)

	r.TotalBorrowed += borrowAmount
	r.TotalLiquidity -= borrowAmount
	r.RefreshRates(p.model)

	user.HealthFactor = p.healthFactorLocked(userAddress)

	p.persistReserve(ctx, r)
	p.persistDebtPosition(ctx, pos)
	p.persistUser(ctx, user)

	p.log.Info().
		Str("user", userAddress).
		Str("collateral_asset", collateralAssetID).
		Int64("collateral_amount", collateralAmount).
		Str("borrow_asset", borrowAssetID).
		Int64("borrow_amount", borrowAmount).
		Msg("borrow applied")

	result := &BorrowResult{
		Position:     pos,
		HealthFactor: cloneBig(user.HealthFactor),
	}
	opCtx := utxo.OpContext{
		Operation:        op,
		UserAddress:      userAddress,
		AssetID:          borrowAssetID,
		Amount:           borrowAmount,
		CollateralAmount: collateralAmount,
		PositionID:       pos.ID.String(),
		Timestamp:        time.Unix(now, 0).UTC(),
	}
	return result, opCtx, nil
}

// ============================================================================
// Health factors
// ============================================================================

// Liquidatable reports whether a health factor is below 1.0 Ray. A nil
// (undefined) health factor is never liquidatable.
func Liquidatable(healthFactor *big.Int) bool {
	return healthFactor != nil && healthFactor.Cmp(ray.Ray) < 0
}

// HealthFactor computes a user's aggregate health factor across all debt
// positions. nil means undefined: the user is unknown, has no debt, or
// no debt position could be valued.
func (p *Pool) HealthFactor(userAddress string) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.users.Get(userAddress) == nil {
		return nil
	}
	return p.healthFactorLocked(userAddress)
}

// healthFactorLocked follows the aggregate formula:
// (total collateral value * liquidation threshold) / total debt value.
// Positions whose prices are unavailable contribute nothing to either
// side, so a user whose entire debt is unpriceable has an undefined
// health factor rather than a misleading one.
func (p *Pool) healthFactorLocked(userAddress string) *big.Int {
	positions := p.debts.ByBorrower(userAddress)
	if len(positions) == 0 {
		return nil
	}

	now := p.now()
	totalCollateralValue := new(big.Int)
	for _, pos := range positions {
		if v, ok := p.oracle.AssetValue(pos.CollateralAssetID, pos.CollateralAmount); ok {
			totalCollateralValue.Add(totalCollateralValue, v)
		}
	}

	totalDebtValue := new(big.Int)
	for _, pos := range positions {
		r := p.reserves[pos.BorrowedAssetID]
		if r == nil {
			continue
		}
		p.accrue(r, now)
		debt := pos.CurrentDebt(r.VariableBorrowIndex)
		if v, ok := p.oracle.AssetValue(pos.BorrowedAssetID, debt); ok {
			totalDebtValue.Add(totalDebtValue, v)
		}
	}

	if totalDebtValue.Sign() == 0 {
		return nil
	}

	weighted := ray.Mul(totalCollateralValue, p.params.LiquidationThreshold)
	hf, err := ray.Div(weighted, totalDebtValue)
	if err != nil {
		return nil
	}
	return hf
}

// PositionHealthFactor computes the health factor of a single position,
// considering only that position's collateral and debt.
func (p *Pool) PositionHealthFactor(positionID uuid.UUID) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.debts.Get(positionID)
	if pos == nil {
		return nil, errf(KindPositionNotFound, "position_health", "debt position %s not found", positionID)
	}

	r := p.reserves[pos.BorrowedAssetID]
	if r == nil {
		return nil, nil
	}
	p.accrue(r, p.now())
	return p.positionHealthFactorLocked(pos, r.VariableBorrowIndex), nil
}

func (p *Pool) positionHealthFactorLocked(pos *state.DebtPosition, borrowIndex *big.Int) *big.Int {
	debt := pos.CurrentDebt(borrowIndex)
	if debt <= 0 {
		return nil
	}

	debtValue, ok := p.oracle.AssetValue(pos.BorrowedAssetID, debt)
	if !ok {
		return nil
	}
	collateralValue, ok := p.oracle.AssetValue(pos.CollateralAssetID, pos.CollateralAmount)
	if !ok {
		return nil
	}

	weighted := ray.Mul(collateralValue, p.params.LiquidationThreshold)
	hf, err := ray.Div(weighted, debtValue)
	if err != nil {
		return nil
	}
	return hf
}

// ============================================================================
// Liquidation
// ============================================================================

type LiquidationResult struct {
	PositionID        uuid.UUID
	Liquidator        string
	RepaidAmount      int64
	CollateralSeized  int64
	Full              bool
	HealthFactorAfter *big.Int
	TxID              string
}

// Liquidate repays part or all of an unhealthy position's debt in
// exchange for a proportional share of its collateral plus the bonus.
// repayAmount <= 0 (or above the outstanding debt) repays in full. A
// full liquidation seizes all remaining collateral and closes the
// position.
func (p *Pool) Liquidate(ctx context.Context, liquidatorAddress string, positionID uuid.UUID, repayAmount int64) (*LiquidationResult, error) {
	const op = "liquidate"
	start := time.Now()

	borrowAssetID, err := p.positionBorrowAsset(op, positionID)
	if err != nil {
		return nil, p.rejected(op, err)
	}

	lockID, err := p.lockKey(op, borrowAssetID)
	if err != nil {
		return nil, p.rejected(op, err)
	}
	if err := p.locks.Acquire(lockID); err != nil {
		return nil, p.rejected(op, wrap(KindUTXORaceCondition, op, err))
	}
	defer p.locks.Release(lockID)

	result, opCtx, err := p.applyLiquidation(ctx, liquidatorAddress, positionID, repayAmount)
	if err != nil {
		return nil, p.rejected(op, err)
	}

	if txID, ok := p.submit(ctx, opCtx); ok {
		result.TxID = txID
	}

	p.applied(op, borrowAssetID, start)
	return result, nil
}

func (p *Pool) applyLiquidation(ctx context.Context, liquidatorAddress string, positionID uuid.UUID, repayAmount int64) (*LiquidationResult, utxo.OpContext, error) {
	const op = "liquidate"

	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.debts.Get(positionID)
	if pos == nil {
		return nil, utxo.OpContext{}, errf(KindPositionNotFound, op, "debt position %s not found", positionID)
	}

	r := p.reserves[pos.BorrowedAssetID]
	if r == nil {
		return nil, utxo.OpContext{}, errf(KindInternal, op, "reserve not configured for asset %s", pos.BorrowedAssetID)
	}

	now := p.now()
	p.accrue(r, now)

	currentDebt := pos.CurrentDebt(r.VariableBorrowIndex)
	if currentDebt <= 0 {
		return nil, utxo.OpContext{}, errf(KindPositionHealthy, op, "position %s has no outstanding debt", positionID)
	}

	healthFactor := p.positionHealthFactorLocked(pos, r.VariableBorrowIndex)
	if healthFactor == nil {
		return nil, utxo.OpContext{}, errf(KindStaleOraclePrice, op, "cannot determine health factor for position %s", positionID)
	}
	if healthFactor.Cmp(ray.Ray) >= 0 {
		return nil, utxo.OpContext{}, errf(KindPositionHealthy, op,
			"position %s is healthy (hf=%s)", positionID, healthFactor)
	}

	if repayAmount <= 0 || repayAmount > currentDebt {
		repayAmount = currentDebt
	}

	// Proportional collateral plus the liquidation bonus, both floored.
	collateralBase := new(big.Int).Mul(big.NewInt(pos.CollateralAmount), big.NewInt(repayAmount))
	collateralBase.Quo(collateralBase, big.NewInt(currentDebt))

	bonus := new(big.Int).Mul(collateralBase, p.params.LiquidationBonus)
	bonus.Quo(bonus, ray.Ray)

	seized := new(big.Int).Add(collateralBase, bonus).Int64()
	if seized > pos.CollateralAmount {
		seized = pos.CollateralAmount
	}

	remainingDebt := currentDebt - repayAmount
	full := remainingDebt <= 0

	r.TotalBorrowed -= repayAmount
	if r.TotalBorrowed < 0 {
		r.TotalBorrowed = 0
	}
	r.TotalLiquidity += repayAmount
	r.RefreshRates(p.model)

	if full {
		seized = pos.CollateralAmount
		p.debts.Delete(pos.ID)
		p.deleteDebtPosition(ctx, pos.ID)
	} else {
		pos.CollateralAmount -= seized
		pos.Principal = remainingDebt
		pos.BorrowIndexAtOpen = new(big.Int).Set(r.VariableBorrowIndex)
		p.persistDebtPosition(ctx, pos)
	}

	var healthAfter *big.Int
	if user := p.users.Get(pos.Borrower); user != nil {
		user.HealthFactor = p.healthFactorLocked(pos.Borrower)
		healthAfter = cloneBig(user.HealthFactor)
		p.persistUser(ctx, user)
	}
	p.persistReserve(ctx, r)

	outcome := "partial"
	if full {
		outcome = "full"
	}
	if p.metrics != nil {
		p.metrics.LiquidationsTotal.WithLabelValues(pos.BorrowedAssetID, outcome).Inc()
		p.metrics.CollateralSeized.WithLabelValues(pos.CollateralAssetID).Add(float64(seized))
	}

	p.log.Info().
		Str("position_id", positionID.String()).
		Str("liquidator", liquidatorAddress).
		Int64("repaid", repayAmount).
		Int64("seized", seized).
		Bool("full", full).
		Msg("liquidation applied")

	result := &LiquidationResult{
		PositionID:        positionID,
		Liquidator:        liquidatorAddress,
		RepaidAmount:      repayAmount,
		CollateralSeized:  seized,
		Full:              full,
		HealthFactorAfter: healthAfter,
	}
	opCtx := utxo.OpContext{
		Operation:        op,
		UserAddress:      liquidatorAddress,
		AssetID:          pos.BorrowedAssetID,
		Amount:           repayAmount,
		CollateralAmount: seized,
		PositionID:       positionID.String(),
		Timestamp:        time.Unix(now, 0).UTC(),
	}
	return result, opCtx, nil
}

// LiquidationCandidate is one position below the health threshold.
type LiquidationCandidate struct {
	PositionID        uuid.UUID
	Borrower          string
	BorrowedAssetID   string
	CollateralAssetID string
	CurrentDebt       int64
	CollateralAmount  int64
	HealthFactor      *big.Int
}

// LiquidatablePositions scans every debt position and returns those
// whose health factor is below 1.0 Ray. The scan previews accrual
// without mutating reserve state; positions that cannot be valued are
// skipped.
func (p *Pool) LiquidatablePositions() []LiquidationCandidate {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	now := p.now()

	var out []LiquidationCandidate
	for _, pos := range p.debts.All() {
		r := p.reserves[pos.BorrowedAssetID]
		if r == nil {
			continue
		}

		_, borrowIndex := r.PreviewIndices(now)
		currentDebt := pos.CurrentDebt(borrowIndex)
		if currentDebt <= 0 {
			continue
		}

		hf := p.positionHealthFactorLocked(pos, borrowIndex)
		if !Liquidatable(hf) {
			continue
		}

		out = append(out, LiquidationCandidate{
			PositionID:        pos.ID,
			Borrower:          pos.Borrower,
			BorrowedAssetID:   pos.BorrowedAssetID,
			CollateralAssetID: pos.CollateralAssetID,
			CurrentDebt:       currentDebt,
			CollateralAmount:  pos.CollateralAmount,
			HealthFactor:      hf,
		})
	}

	if p.metrics != nil {
		p.metrics.SweepDuration.Observe(time.Since(start).Seconds())
		p.metrics.LiquidatablePosCount.Set(float64(len(out)))
	}
	return out
}

// ============================================================================
// Views
// ============================================================================

// ReserveSnapshot returns the reserve with interest previewed to now.
func (p *Pool) ReserveSnapshot(assetID string) (state.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.reserves[assetID]
	if r == nil {
		return state.Snapshot{}, errf(KindInternal, "reserve_snapshot", "reserve not configured for asset %s", assetID)
	}
	return r.SnapshotAt(p.now(), p.model), nil
}

// SupplyBalance values a user's supply positions at the current index.
func (p *Pool) SupplyBalance(userAddress, assetID string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.reserves[assetID]
	if r == nil {
		return 0
	}
	liquidityIndex, _ := r.PreviewIndices(p.now())
	return p.supplies.TotalUnderlying(userAddress, assetID, liquidityIndex)
}

// DebtPosition returns a copy-safe reference to an open position.
func (p *Pool) DebtPosition(positionID uuid.UUID) (*state.DebtPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.debts.Get(positionID)
	if pos == nil {
		return nil, errf(KindPositionNotFound, "debt_position", "debt position %s not found", positionID)
	}
	return pos, nil
}

// ============================================================================
// Internals
// ============================================================================

func (p *Pool) accrue(r *state.Reserve, now int64) {
	start := time.Now()
	r.Accrue(now)
	if p.metrics != nil {
		p.metrics.AccrualDuration.Observe(time.Since(start).Seconds())
	}
}

// lockKey resolves the lock identity for a reserve's covenant UTXO.
func (p *Pool) lockKey(op, assetID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.reserves[assetID]
	if r == nil {
		return "", errf(KindInternal, op, "reserve not configured for asset %s", assetID)
	}
	if r.UTXOID != "" {
		return r.UTXOID, nil
	}
	return "reserve_" + assetID, nil
}

func (p *Pool) positionBorrowAsset(op string, positionID uuid.UUID) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.debts.Get(positionID)
	if pos == nil {
		return "", errf(KindPositionNotFound, op, "debt position %s not found", positionID)
	}
	return pos.BorrowedAssetID, nil
}

func (p *Pool) rotateReserveUTXO(ctx context.Context, assetID, txID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.reserves[assetID]
	if r == nil {
		return
	}
	r.UTXOID = "utxo_" + txID + "_0"
	p.persistReserve(ctx, r)
}

func (p *Pool) submit(ctx context.Context, opCtx utxo.OpContext) (string, bool) {
	txID, ok := p.caster.Submit(ctx, opCtx)
	if p.metrics != nil {
		if ok {
			p.metrics.BroadcastSubmitted.WithLabelValues(opCtx.Operation).Inc()
		} else {
			p.metrics.BroadcastFailures.WithLabelValues(opCtx.Operation).Inc()
		}
	}
	if !ok {
		// State is committed; the settlement retries out of band.
		p.log.Warn().
			Str("operation", opCtx.Operation).
			Str("asset", opCtx.AssetID).
			Msg("settlement broadcast failed after commit")
	}
	return txID, ok
}

func (p *Pool) rejected(op string, err error) error {
	if p.metrics != nil {
		p.metrics.OperationsRejected.WithLabelValues(op, kindOf(err).String()).Inc()
	}
	return err
}

func (p *Pool) applied(op, assetID string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.OperationsApplied.WithLabelValues(op, assetID).Inc()
	p.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	p.mu.Lock()
	if r := p.reserves[assetID]; r != nil {
		p.metrics.SetReserveGauges(assetID, r.TotalLiquidity, r.TotalBorrowed)
	}
	p.mu.Unlock()
}

func (p *Pool) persistReserve(ctx context.Context, r *state.Reserve) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveReserve(ctx, r); err != nil {
		p.storeError("reserve", err)
	}
}

func (p *Pool) persistSupplyPosition(ctx context.Context, pos *state.SupplyPosition) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveSupplyPosition(ctx, pos); err != nil {
		p.storeError("supply_position", err)
	}
}

func (p *Pool) deleteSupplyPosition(ctx context.Context, id uuid.UUID) {
	if p.store == nil {
		return
	}
	if err := p.store.DeleteSupplyPosition(ctx, id); err != nil {
		p.storeError("supply_position", err)
	}
}

func (p *Pool) persistDebtPosition(ctx context.Context, pos *state.DebtPosition) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveDebtPosition(ctx, pos); err != nil {
		p.storeError("debt_position", err)
	}
}

func (p *Pool) deleteDebtPosition(ctx context.Context, id uuid.UUID) {
	if p.store == nil {
		return
	}
	if err := p.store.DeleteDebtPosition(ctx, id); err != nil {
		p.storeError("debt_position", err)
	}
}

func (p *Pool) persistUser(ctx context.Context, u *state.User) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveUser(ctx, u); err != nil {
		p.storeError("user", err)
	}
}

func (p *Pool) storeError(entity string, err error) {
	p.log.Error().Err(err).Str("entity", entity).Msg("persistence write failed")
	if p.metrics != nil {
		p.metrics.StoreErrors.WithLabelValues(entity).Inc()
	}
}

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
