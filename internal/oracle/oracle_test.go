package oracle_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"StableVault/internal/oracle"
)

func TestCache_PutAndGet(t *testing.T) {
	c := oracle.NewCache()
	at := time.UnixMicro(1_700_000_000_000_000)
	c.Put("feed:eth-usd", big.NewInt(2000_00000000), 8, at)

	q, err := c.LatestPrice("feed:eth-usd")
	if err != nil {
		t.Fatalf("LatestPrice failed: %v", err)
	}
	if q.Price.Cmp(big.NewInt(2000_00000000)) != 0 {
		t.Errorf("price: got %s", q.Price)
	}
	if q.Decimals != 8 {
		t.Errorf("decimals: got %d, want 8", q.Decimals)
	}
	if !q.UpdatedAt.Equal(at) {
		t.Errorf("updated_at: got %v, want %v", q.UpdatedAt, at)
	}
}

func TestCache_UnknownFeed(t *testing.T) {
	c := oracle.NewCache()
	_, err := c.LatestPrice("feed:nope")
	if !errors.Is(err, oracle.ErrNoPrice) {
		t.Errorf("got %v, want ErrNoPrice", err)
	}
}

func TestCache_QuoteIsCopied(t *testing.T) {
	c := oracle.NewCache()
	p := big.NewInt(100)
	c.Put("f", p, 8, time.Now())
	p.SetInt64(999) // mutating the caller's int must not leak in

	q, _ := c.LatestPrice("f")
	if q.Price.Int64() != 100 {
		t.Errorf("cached price aliased caller's value: got %s", q.Price)
	}

	q.Price.SetInt64(555) // mutating the returned quote must not leak back
	q2, _ := c.LatestPrice("f")
	if q2.Price.Int64() != 100 {
		t.Errorf("returned price aliased cache state: got %s", q2.Price)
	}
}

func TestCache_OverwriteKeepsLatest(t *testing.T) {
	c := oracle.NewCache()
	c.Put("f", big.NewInt(100), 8, time.Now())
	c.Put("f", big.NewInt(200), 8, time.Now())

	q, _ := c.LatestPrice("f")
	if q.Price.Int64() != 200 {
		t.Errorf("got %s, want 200", q.Price)
	}
}

func TestBoundedSource_RejectsStale(t *testing.T) {
	c := oracle.NewCache()
	c.Put("f", big.NewInt(100), 8, time.Now().Add(-time.Hour))

	b := oracle.NewBoundedSource(c, time.Minute, nil, nil)
	_, err := b.LatestPrice("f")
	if !errors.Is(err, oracle.ErrStalePrice) {
		t.Errorf("got %v, want ErrStalePrice", err)
	}
}

func TestBoundedSource_RejectsOutOfBand(t *testing.T) {
	c := oracle.NewCache()
	c.Put("f", big.NewInt(5), 8, time.Now())

	b := oracle.NewBoundedSource(c, 0, big.NewInt(10), big.NewInt(1000))
	if _, err := b.LatestPrice("f"); !errors.Is(err, oracle.ErrPriceOutOfBand) {
		t.Errorf("below band: got %v, want ErrPriceOutOfBand", err)
	}

	c.Put("f", big.NewInt(5000), 8, time.Now())
	if _, err := b.LatestPrice("f"); !errors.Is(err, oracle.ErrPriceOutOfBand) {
		t.Errorf("above band: got %v, want ErrPriceOutOfBand", err)
	}
}

func TestBoundedSource_PassesHealthyQuote(t *testing.T) {
	c := oracle.NewCache()
	c.Put("f", big.NewInt(100), 8, time.Now())

	b := oracle.NewBoundedSource(c, time.Minute, big.NewInt(10), big.NewInt(1000))
	q, err := b.LatestPrice("f")
	if err != nil {
		t.Fatalf("healthy quote rejected: %v", err)
	}
	if q.Price.Int64() != 100 {
		t.Errorf("got %s, want 100", q.Price)
	}
}

func TestSnapshot_PinsFirstQuote(t *testing.T) {
	c := oracle.NewCache()
	c.Put("f", big.NewInt(100), 8, time.Now())

	s := oracle.NewSnapshot(c)
	q, err := s.LatestPrice("f")
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if q.Price.Int64() != 100 {
		t.Fatalf("first read price: got %s", q.Price)
	}

	// A feed write after the first read is invisible to the snapshot.
	c.Put("f", big.NewInt(250), 8, time.Now())
	q2, err := s.LatestPrice("f")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if q2.Price.Int64() != 100 {
		t.Errorf("second read price: got %s, want pinned 100", q2.Price)
	}

	// A fresh snapshot sees the new value.
	q3, _ := oracle.NewSnapshot(c).LatestPrice("f")
	if q3.Price.Int64() != 250 {
		t.Errorf("fresh snapshot price: got %s, want 250", q3.Price)
	}
}

func TestSnapshot_PinsErrors(t *testing.T) {
	c := oracle.NewCache()
	s := oracle.NewSnapshot(c)

	if _, err := s.LatestPrice("f"); !errors.Is(err, oracle.ErrNoPrice) {
		t.Fatalf("got %v, want ErrNoPrice", err)
	}

	// The feed arriving mid-call must not surface partway through.
	c.Put("f", big.NewInt(100), 8, time.Now())
	if _, err := s.LatestPrice("f"); !errors.Is(err, oracle.ErrNoPrice) {
		t.Errorf("got %v, want pinned ErrNoPrice", err)
	}
}
