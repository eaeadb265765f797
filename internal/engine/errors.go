package engine

import (
	"errors"

	"StableVault/internal/oracle"
	"StableVault/internal/position"
	"StableVault/internal/registry"
	"StableVault/internal/solvency"
	"StableVault/internal/token"
	"StableVault/internal/valuation"
)

var (
	// ErrZeroAmount is returned by every amount-bearing operation called
	// with a zero amount.
	ErrZeroAmount = errors.New("amount must be greater than zero")

	// ErrHealthFactorOk is returned when liquidation is attempted against
	// an account whose health factor is at or above the minimum.
	ErrHealthFactorOk = errors.New("health factor is not below minimum")

	// ErrHealthFactorNotImproved is returned when a liquidation would not
	// move the target's health factor upward.
	ErrHealthFactorNotImproved = errors.New("liquidation does not improve health factor")
)

// rejectReason maps an operation error to a bounded metrics label.
func rejectReason(err error) string {
	var broke *solvency.BreaksHealthFactorError
	switch {
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, registry.ErrUnknownAsset):
		return "unknown_asset"
	case errors.Is(err, position.ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, position.ErrInsufficientDebt):
		return "insufficient_debt"
	case errors.As(err, &broke):
		return "breaks_health_factor"
	case errors.Is(err, ErrHealthFactorOk):
		return "health_factor_ok"
	case errors.Is(err, ErrHealthFactorNotImproved):
		return "not_improved"
	case errors.Is(err, token.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, valuation.ErrNonPositivePrice), errors.Is(err, oracle.ErrNoPrice):
		return "bad_price"
	default:
		return "other"
	}
}
