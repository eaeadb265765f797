// Package oracle defines the price feed capability the engine depends on
// and the in-memory implementations that back it. The engine trusts the
// returned price at call time; validation beyond that (staleness, bands)
// is layered on as a decorator, not baked into the core contract.
package oracle

import (
	"errors"
	"math/big"
	"time"
)

// ErrNoPrice is returned when a feed has never published a price.
var ErrNoPrice = errors.New("no price available for feed")

// Quote is one observation from a price feed. Price is a signed fixed-point
// integer with Decimals decimal places (8 for the usual USD feeds).
type Quote struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// PriceSource supplies the latest quote for a feed.
type PriceSource interface {
	LatestPrice(feedID string) (Quote, error)
}
