package engine

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// OpKind names a committed engine operation in the journal.
type OpKind string

const (
	OpDeposit     OpKind = "deposit"
	OpMint        OpKind = "mint"
	OpRedeem      OpKind = "redeem"
	OpBurn        OpKind = "burn"
	OpLiquidation OpKind = "liquidation"
)

// OperationRecord is the audit entry emitted for every committed state
// change. Amounts are recorded post-commit; HealthFactor is the acting
// account's health factor after the operation.
type OperationRecord struct {
	ID           uuid.UUID
	Kind         OpKind
	User         uuid.UUID
	Counterparty uuid.UUID // liquidator on liquidation records, zero otherwise
	Asset        string    // empty for pure debt operations
	Amount       *big.Int
	DebtDelta    *big.Int // signed: positive on mint, negative on burn/liquidation
	HealthFactor *big.Int
	Timestamp    time.Time
}

// OperationSink receives committed operation records. Implementations must
// not block the engine; the persistence worker buffers behind a channel.
type OperationSink interface {
	Record(op OperationRecord)
}

// record emits an operation to the sink when one is configured.
func (e *Engine) record(op OperationRecord) {
	if e.sink == nil {
		return
	}
	op.ID = uuid.New()
	op.Timestamp = e.now()
	e.sink.Record(op)
}
