package engine

import (
	"math/big"

	"StableVault/internal/registry"

	"github.com/google/uuid"
)

// AccountSummary is a point-in-time view of a single position.
type AccountSummary struct {
	User               uuid.UUID
	TotalDebt          *big.Int
	CollateralValueUsd *big.Int
	HealthFactor       *big.Int
}

// HealthFactor reports the user's current health factor.
func (e *Engine) HealthFactor(user uuid.UUID) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinPricesLocked()
	return e.healthFactorLocked(user)
}

// Account reports the user's debt, total collateral value and health factor
// as one consistent snapshot.
func (e *Engine) Account(user uuid.UUID) (AccountSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinPricesLocked()

	collateralUsd, err := e.valuation.TotalCollateralValueUsd(user, e.positions)
	if err != nil {
		return AccountSummary{}, err
	}
	debt := e.positions.DebtOf(user)
	return AccountSummary{
		User:               user,
		TotalDebt:          debt,
		CollateralValueUsd: collateralUsd,
		HealthFactor:       e.solvency.HealthFactor(debt, collateralUsd),
	}, nil
}

// CollateralBalance reports how much of one asset the user has deposited.
func (e *Engine) CollateralBalance(user uuid.UUID, asset string) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.CollateralOf(user, asset)
}

// UsdValue converts a token amount of asset to its USD value at the current
// normalized price.
func (e *Engine) UsdValue(asset string, amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinPricesLocked()
	return e.valuation.UsdValue(asset, amount)
}

// TokenAmountFromUsd converts a USD value to the equivalent token amount of
// asset at the current normalized price.
func (e *Engine) TokenAmountFromUsd(asset string, usd *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinPricesLocked()
	return e.valuation.TokenAmountFromUsd(asset, usd)
}

// CollateralAssets lists the registered collateral symbols in registry order.
func (e *Engine) CollateralAssets() []string {
	return e.registry.Symbols()
}

// CollateralAssetAt returns the i-th registered collateral asset.
func (e *Engine) CollateralAssetAt(i int) (registry.Asset, error) {
	return e.registry.AssetAt(i)
}

// FeedFor resolves the price feed ID bound to a collateral asset.
func (e *Engine) FeedFor(asset string) (string, error) {
	return e.registry.FeedFor(asset)
}

// Params returns a copy of the engine's risk parameters.
func (e *Engine) Params() Params {
	return e.params.clone()
}

// MinHealthFactor returns the floor below which positions are liquidatable.
func (e *Engine) MinHealthFactor() *big.Int {
	return e.solvency.MinHealthFactor()
}

// Users lists every account that has touched the engine, in stable order.
func (e *Engine) Users() []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.Users()
}

// Custody is the engine's own account on the collateral tokens.
func (e *Engine) Custody() uuid.UUID {
	return e.custody
}
