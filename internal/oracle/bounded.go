package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	// ErrStalePrice is returned when a quote is older than the configured
	// maximum age.
	ErrStalePrice = errors.New("price feed is stale")

	// ErrPriceOutOfBand is returned when a quote falls outside the
	// configured sanity band.
	ErrPriceOutOfBand = errors.New("price outside configured band")
)

// BoundedSource wraps a PriceSource with staleness and sanity-band checks.
// The core engine does not require these; deployments that want defense
// against a wedged or manipulated feed insert this decorator at wiring time.
type BoundedSource struct {
	inner  PriceSource
	maxAge time.Duration
	min    *big.Int // nil disables the lower bound
	max    *big.Int // nil disables the upper bound
	now    func() time.Time
}

func NewBoundedSource(inner PriceSource, maxAge time.Duration, min, max *big.Int) *BoundedSource {
	return &BoundedSource{
		inner:  inner,
		maxAge: maxAge,
		min:    min,
		max:    max,
		now:    time.Now,
	}
}

// LatestPrice implements PriceSource, rejecting stale or out-of-band quotes.
func (b *BoundedSource) LatestPrice(feedID string) (Quote, error) {
	q, err := b.inner.LatestPrice(feedID)
	if err != nil {
		return Quote{}, err
	}

	if b.maxAge > 0 {
		age := b.now().Sub(q.UpdatedAt)
		if age > b.maxAge {
			return Quote{}, fmt.Errorf("%w: %s is %s old (max %s)", ErrStalePrice, feedID, age, b.maxAge)
		}
	}

	if b.min != nil && q.Price.Cmp(b.min) < 0 {
		return Quote{}, fmt.Errorf("%w: %s price %s below %s", ErrPriceOutOfBand, feedID, q.Price, b.min)
	}
	if b.max != nil && q.Price.Cmp(b.max) > 0 {
		return Quote{}, fmt.Errorf("%w: %s price %s above %s", ErrPriceOutOfBand, feedID, q.Price, b.max)
	}

	return q, nil
}
