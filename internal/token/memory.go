package token

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
)

// MemoryToken is an in-memory fungible balance ledger. It backs collateral
// assets in tests and single-process deployments.
type MemoryToken struct {
	mu       sync.Mutex
	symbol   string
	balances map[uuid.UUID]*big.Int
}

func NewMemoryToken(symbol string) *MemoryToken {
	return &MemoryToken{
		symbol:   symbol,
		balances: make(map[uuid.UUID]*big.Int),
	}
}

// Credit adds amount to holder's balance outside transfer semantics.
// Test and genesis seeding only.
func (t *MemoryToken) Credit(holder uuid.UUID, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.add(holder, amount)
}

func (t *MemoryToken) add(holder uuid.UUID, amount *big.Int) {
	bal, ok := t.balances[holder]
	if !ok {
		bal = new(big.Int)
		t.balances[holder] = bal
	}
	bal.Add(bal, amount)
}

// TransferFrom moves amount from -> to, failing if from's balance is short.
func (t *MemoryToken) TransferFrom(from, to uuid.UUID, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal, ok := t.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s balance of %s is short of %s", ErrTransferFailed, t.symbol, from, amount)
	}

	bal.Sub(bal, amount)
	t.add(to, amount)
	return nil
}

// BalanceOf returns a copy of holder's balance.
func (t *MemoryToken) BalanceOf(holder uuid.UUID) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	bal, ok := t.balances[holder]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// MemoryLedger is an in-memory stable-unit ledger with mint/burn entry
// points. Supply accounting is exact: TotalSupply is the sum of all
// balances at all times.
type MemoryLedger struct {
	mu     sync.Mutex
	token  *MemoryToken
	supply *big.Int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		token:  NewMemoryToken("SUSD"),
		supply: new(big.Int),
	}
}

func (l *MemoryLedger) Mint(to uuid.UUID, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.token.Credit(to, amount)
	l.supply.Add(l.supply, amount)
	return nil
}

func (l *MemoryLedger) Burn(from uuid.UUID, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.token.BalanceOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: burn %s exceeds stable balance %s of %s", ErrTransferFailed, amount, bal, from)
	}

	neg := new(big.Int).Neg(amount)
	l.token.Credit(from, neg)
	l.supply.Sub(l.supply, amount)
	return nil
}

func (l *MemoryLedger) BalanceOf(holder uuid.UUID) *big.Int {
	return l.token.BalanceOf(holder)
}

func (l *MemoryLedger) TransferFrom(from, to uuid.UUID, amount *big.Int) error {
	return l.token.TransferFrom(from, to, amount)
}

// TotalSupply returns the outstanding stable-unit supply.
func (l *MemoryLedger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.supply)
}
