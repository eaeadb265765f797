// Package token defines the engine's boundary with the stable-unit ledger
// and the underlying collateral assets. The engine treats both as external
// collaborators: a failed transfer, mint, or burn aborts the enclosing
// operation in full.
//
// Access control on mint/burn is by capability: only the engine is handed
// a StableLedger value at wiring time, mirroring the on-ledger deployments
// where mint and burn are gated to the engine's address.
package token

import (
	"errors"
	"math/big"

	"github.com/google/uuid"
)

// ErrTransferFailed is returned when an underlying asset or ledger
// movement cannot be performed. The engine maps any such failure to a
// full abort of the operation in flight.
var ErrTransferFailed = errors.New("transfer failed")

// StableLedger is the fungible ledger of the minted stable unit.
type StableLedger interface {
	Mint(to uuid.UUID, amount *big.Int) error
	Burn(from uuid.UUID, amount *big.Int) error
	BalanceOf(holder uuid.UUID) *big.Int
	TransferFrom(from, to uuid.UUID, amount *big.Int) error
}

// Token is a collateral asset balance ledger with transfer semantics.
type Token interface {
	TransferFrom(from, to uuid.UUID, amount *big.Int) error
	BalanceOf(holder uuid.UUID) *big.Int
}
