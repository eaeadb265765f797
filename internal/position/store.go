// Package position holds per-user collateral balances and minted debt.
// The store does pure accounting: amount validation and solvency checks
// belong to the engine, which is also responsible for serializing access.
package position

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientCollateral is returned when a withdrawal asks for more
	// of an asset than the account holds.
	ErrInsufficientCollateral = errors.New("insufficient collateral balance")

	// ErrInsufficientDebt is returned when a burn exceeds the account's
	// outstanding minted debt.
	ErrInsufficientDebt = errors.New("burn exceeds outstanding debt")
)

// Store tracks deposited collateral per (user, asset) and minted debt per
// user. Positions are created implicitly on first use; zero balances are a
// valid terminal state, never deleted.
type Store struct {
	collateral map[uuid.UUID]map[string]*big.Int
	debt       map[uuid.UUID]*big.Int
}

func NewStore() *Store {
	return &Store{
		collateral: make(map[uuid.UUID]map[string]*big.Int),
		debt:       make(map[uuid.UUID]*big.Int),
	}
}

// AddCollateral increases user's balance of asset.
func (s *Store) AddCollateral(user uuid.UUID, asset string, amount *big.Int) {
	byAsset, ok := s.collateral[user]
	if !ok {
		byAsset = make(map[string]*big.Int)
		s.collateral[user] = byAsset
	}
	bal, ok := byAsset[asset]
	if !ok {
		bal = new(big.Int)
		byAsset[asset] = bal
	}
	bal.Add(bal, amount)
}

// SubCollateral decreases user's balance of asset, failing without any
// change if the balance is short.
func (s *Store) SubCollateral(user uuid.UUID, asset string, amount *big.Int) error {
	bal := s.collateralRef(user, asset)
	if bal == nil || bal.Cmp(amount) < 0 {
		have := new(big.Int)
		if bal != nil {
			have.Set(bal)
		}
		return fmt.Errorf("%w: have %s %s, need %s", ErrInsufficientCollateral, have, asset, amount)
	}
	bal.Sub(bal, amount)
	return nil
}

func (s *Store) collateralRef(user uuid.UUID, asset string) *big.Int {
	byAsset, ok := s.collateral[user]
	if !ok {
		return nil
	}
	return byAsset[asset]
}

// CollateralOf returns a copy of user's balance of asset. Zero for unknown
// users or assets: balance queries never fail.
func (s *Store) CollateralOf(user uuid.UUID, asset string) *big.Int {
	bal := s.collateralRef(user, asset)
	if bal == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// AddDebt increases user's minted debt.
func (s *Store) AddDebt(user uuid.UUID, amount *big.Int) {
	d, ok := s.debt[user]
	if !ok {
		d = new(big.Int)
		s.debt[user] = d
	}
	d.Add(d, amount)
}

// SubDebt decreases user's minted debt, failing without any change if the
// outstanding debt is smaller than amount.
func (s *Store) SubDebt(user uuid.UUID, amount *big.Int) error {
	d, ok := s.debt[user]
	if !ok || d.Cmp(amount) < 0 {
		have := new(big.Int)
		if ok {
			have.Set(d)
		}
		return fmt.Errorf("%w: outstanding %s, burn %s", ErrInsufficientDebt, have, amount)
	}
	d.Sub(d, amount)
	return nil
}

// DebtOf returns a copy of user's minted debt. Zero for unknown users.
func (s *Store) DebtOf(user uuid.UUID) *big.Int {
	d, ok := s.debt[user]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(d)
}

// Users returns every user the store has seen, in stable (sorted) order.
func (s *Store) Users() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(s.collateral)+len(s.debt))
	for u := range s.collateral {
		seen[u] = true
	}
	for u := range s.debt {
		seen[u] = true
	}

	users := make([]uuid.UUID, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].String() < users[j].String()
	})
	return users
}
