package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigMismatch is returned when the asset and feed lists passed to
	// the constructor have different lengths.
	ErrConfigMismatch = errors.New("collateral assets and price feeds must have the same length")

	// ErrUnknownAsset is returned for any asset symbol not registered at
	// construction time.
	ErrUnknownAsset = errors.New("asset not registered as collateral")

	// ErrIndexOutOfRange is returned by AssetAt for an index outside
	// [0, Count()).
	ErrIndexOutOfRange = errors.New("collateral asset index out of range")
)

// Asset is one approved collateral asset: its symbol and the price feed
// that values it. Immutable after registry construction.
type Asset struct {
	Symbol string
	FeedID string
}

// Registry is the fixed set of approved collateral assets. It is built
// once, never mutated, and enumerable in insertion order.
type Registry struct {
	assets []Asset
	bySym  map[string]int
}

// New constructs a registry from parallel symbol and feed-ID lists.
// The lists must be the same length; a duplicate symbol is a config error.
func New(symbols, feedIDs []string) (*Registry, error) {
	if len(symbols) != len(feedIDs) {
		return nil, fmt.Errorf("%w: %d assets, %d feeds", ErrConfigMismatch, len(symbols), len(feedIDs))
	}

	r := &Registry{
		assets: make([]Asset, 0, len(symbols)),
		bySym:  make(map[string]int, len(symbols)),
	}

	for i, sym := range symbols {
		if _, dup := r.bySym[sym]; dup {
			return nil, fmt.Errorf("%w: duplicate asset %s", ErrConfigMismatch, sym)
		}
		r.bySym[sym] = len(r.assets)
		r.assets = append(r.assets, Asset{Symbol: sym, FeedID: feedIDs[i]})
	}

	return r, nil
}

// FeedFor returns the price feed ID for a registered asset.
func (r *Registry) FeedFor(symbol string) (string, error) {
	i, ok := r.bySym[symbol]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	return r.assets[i].FeedID, nil
}

// Contains reports whether symbol is a registered collateral asset.
func (r *Registry) Contains(symbol string) bool {
	_, ok := r.bySym[symbol]
	return ok
}

// AssetAt returns the asset at index i in insertion order.
func (r *Registry) AssetAt(i int) (Asset, error) {
	if i < 0 || i >= len(r.assets) {
		return Asset{}, fmt.Errorf("%w: %d (count=%d)", ErrIndexOutOfRange, i, len(r.assets))
	}
	return r.assets[i], nil
}

// Count returns the number of registered collateral assets.
func (r *Registry) Count() int {
	return len(r.assets)
}

// Symbols returns all registered symbols in insertion order.
func (r *Registry) Symbols() []string {
	out := make([]string, len(r.assets))
	for i, a := range r.assets {
		out[i] = a.Symbol
	}
	return out
}
