package state

import (
	"fmt"
	"math/big"

	"LiquidLend/internal/ray"
)

// ProtocolParams holds the risk parameters shared by every reserve.
// All values are Ray-scaled fractions.
type ProtocolParams struct {
	MaxLTV               *big.Int // max borrow value / collateral value at open
	LiquidationThreshold *big.Int // weighted collateral factor in the health check
	LiquidationBonus     *big.Int // extra collateral granted to liquidators
	ReserveFactor        *big.Int // protocol cut of borrow interest
}

// DefaultParams returns the standard parameter set: 75% LTV, 80%
// liquidation threshold, 5% bonus, 10% reserve factor.
func DefaultParams() ProtocolParams {
	return ProtocolParams{
		MaxLTV:               ray.FromRatio(75, 100),
		LiquidationThreshold: ray.FromRatio(80, 100),
		LiquidationBonus:     ray.FromRatio(5, 100),
		ReserveFactor:        ray.FromRatio(10, 100),
	}
}

// ValidateParams rejects parameter sets that would break the solvency
// relations the pool depends on.
func ValidateParams(p ProtocolParams) error {
	if p.MaxLTV.Sign() <= 0 || p.MaxLTV.Cmp(ray.Ray) >= 0 {
		return fmt.Errorf("max_ltv must be in (0, 1), got %s", p.MaxLTV)
	}
	if p.LiquidationThreshold.Sign() <= 0 || p.LiquidationThreshold.Cmp(ray.Ray) >= 0 {
		return fmt.Errorf("liquidation_threshold must be in (0, 1), got %s", p.LiquidationThreshold)
	}
	if p.MaxLTV.Cmp(p.LiquidationThreshold) > 0 {
		return fmt.Errorf("max_ltv %s exceeds liquidation_threshold %s", p.MaxLTV, p.LiquidationThreshold)
	}
	if p.LiquidationBonus.Sign() < 0 || p.LiquidationBonus.Cmp(ray.Ray) >= 0 {
		return fmt.Errorf("liquidation_bonus must be in [0, 1), got %s", p.LiquidationBonus)
	}
	if p.ReserveFactor.Sign() < 0 || p.ReserveFactor.Cmp(ray.Ray) >= 0 {
		return fmt.Errorf("reserve_factor must be in [0, 1), got %s", p.ReserveFactor)
	}
	return nil
}
