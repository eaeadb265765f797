package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// PriceUpdate is a validated quote ready to apply to the oracle cache.
type PriceUpdate struct {
	FeedID    string
	Price     *big.Int
	Decimals  uint8
	Timestamp time.Time
}

// priceUpdateJSON is the wire format published by the price relayers.
// Field names use snake_case to match upstream producers. Price is a
// decimal string so feeds are not bound by int64 range.
type priceUpdateJSON struct {
	FeedID      string `json:"feed_id"`
	Asset       string `json:"asset"` // alternative to feed_id
	Price       string `json:"price"`
	Decimals    uint8  `json:"decimals"`
	TimestampUs int64  `json:"timestamp_us"`
}

// FeedResolver maps a collateral asset symbol to its feed ID. Satisfied by
// registry.Registry.
type FeedResolver interface {
	FeedFor(symbol string) (string, error)
}

// ParsePriceUpdate validates a raw feed message. Either feed_id or asset
// must identify the feed; a price that is absent, malformed, or not
// positive is rejected here so it never reaches the cache.
func ParsePriceUpdate(data []byte, feeds FeedResolver) (PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return PriceUpdate{}, fmt.Errorf("parse price update: %w", err)
	}

	feedID := j.FeedID
	if feedID == "" {
		if j.Asset == "" {
			return PriceUpdate{}, fmt.Errorf("price update has neither feed_id nor asset")
		}
		resolved, err := feeds.FeedFor(j.Asset)
		if err != nil {
			return PriceUpdate{}, fmt.Errorf("resolve asset %s: %w", j.Asset, err)
		}
		feedID = resolved
	}

	price, ok := new(big.Int).SetString(j.Price, 10)
	if !ok {
		return PriceUpdate{}, fmt.Errorf("parse price %q for %s", j.Price, feedID)
	}
	if price.Sign() <= 0 {
		return PriceUpdate{}, fmt.Errorf("non-positive price %s for %s", price, feedID)
	}
	if j.Decimals > 18 {
		return PriceUpdate{}, fmt.Errorf("feed %s has %d decimals, max is 18", feedID, j.Decimals)
	}

	ts := time.UnixMicro(j.TimestampUs)
	if j.TimestampUs == 0 {
		ts = time.Now()
	}

	return PriceUpdate{
		FeedID:    feedID,
		Price:     price,
		Decimals:  j.Decimals,
		Timestamp: ts,
	}, nil
}
