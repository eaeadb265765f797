package oracle

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Cache is a thread-safe in-memory price store. The NATS price-feed
// subscriber writes into it; the engine reads from it through PriceSource.
// Writes replace the whole quote so a reader never sees a price paired
// with another update's decimals.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewCache() *Cache {
	return &Cache{quotes: make(map[string]Quote)}
}

// Put records the latest quote for a feed. The price is copied.
func (c *Cache) Put(feedID string, price *big.Int, decimals uint8, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[feedID] = Quote{
		Price:     new(big.Int).Set(price),
		Decimals:  decimals,
		UpdatedAt: at,
	}
}

// LatestPrice implements PriceSource.
func (c *Cache) LatestPrice(feedID string) (Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[feedID]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoPrice, feedID)
	}
	return Quote{
		Price:     new(big.Int).Set(q.Price),
		Decimals:  q.Decimals,
		UpdatedAt: q.UpdatedAt,
	}, nil
}

// Feeds returns the feed IDs currently held, for readiness checks.
func (c *Cache) Feeds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.quotes))
	for id := range c.quotes {
		out = append(out, id)
	}
	return out
}
