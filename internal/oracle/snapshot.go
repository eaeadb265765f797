package oracle

// Snapshot pins the first quote (or error) observed per feed and replays
// it for every later read. The engine wraps its price source in one of
// these at the start of each call so the whole call computes against a
// single consistent price per feed, regardless of concurrent feed writes.
// Not safe for concurrent use; a Snapshot lives for one call.
type Snapshot struct {
	inner PriceSource
	seen  map[string]snapshotEntry
}

type snapshotEntry struct {
	quote Quote
	err   error
}

func NewSnapshot(inner PriceSource) *Snapshot {
	return &Snapshot{inner: inner, seen: make(map[string]snapshotEntry)}
}

// LatestPrice implements PriceSource, reading each feed from the inner
// source at most once.
func (s *Snapshot) LatestPrice(feedID string) (Quote, error) {
	if e, ok := s.seen[feedID]; ok {
		return e.quote, e.err
	}
	q, err := s.inner.LatestPrice(feedID)
	s.seen[feedID] = snapshotEntry{quote: q, err: err}
	return q, err
}
