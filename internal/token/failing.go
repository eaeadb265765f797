package token

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// FailingToken wraps a Token and fails the next N transfers. Used in tests
// to verify that a failed external transfer aborts the whole operation.
type FailingToken struct {
	Inner     Token
	FailNext  int
	failCount int
}

func (f *FailingToken) TransferFrom(from, to uuid.UUID, amount *big.Int) error {
	if f.FailNext > 0 {
		f.FailNext--
		f.failCount++
		return fmt.Errorf("%w: injected failure %d", ErrTransferFailed, f.failCount)
	}
	return f.Inner.TransferFrom(from, to, amount)
}

func (f *FailingToken) BalanceOf(holder uuid.UUID) *big.Int {
	return f.Inner.BalanceOf(holder)
}
