package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"StableVault/internal/engine"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AccountSource is the slice of the engine the snapshotter reads from.
type AccountSource interface {
	Users() []uuid.UUID
	Account(user uuid.UUID) (engine.AccountSummary, error)
	CollateralAssets() []string
	CollateralBalance(user uuid.UUID, asset string) *big.Int
}

// PositionSnapshotter periodically upserts every account's debt, collateral
// and health factor into vault.position_snapshots. The table is a
// dashboard and reconciliation surface, not recovery state: the journal in
// vault.operations is the durable record.
type PositionSnapshotter struct {
	db       *sql.DB
	accounts AccountSource
	interval time.Duration
	log      zerolog.Logger
}

func NewPositionSnapshotter(db *sql.DB, accounts AccountSource, interval time.Duration, log zerolog.Logger) *PositionSnapshotter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PositionSnapshotter{
		db:       db,
		accounts: accounts,
		interval: interval,
		log:      log,
	}
}

// Run writes a snapshot every interval until ctx is cancelled.
func (s *PositionSnapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Snapshot(ctx); err != nil {
				s.log.Error().Err(err).Msg("position snapshot failed")
			}
		}
	}
}

// Snapshot upserts one row per known account.
func (s *PositionSnapshotter) Snapshot(ctx context.Context) error {
	users := s.accounts.Users()
	if len(users) == 0 {
		return nil
	}
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, user := range users {
		sum, err := s.accounts.Account(user)
		if err != nil {
			// A missing price makes the account unvaluable right now;
			// the previous snapshot row stays in place.
			s.log.Warn().Err(err).Stringer("user", user).Msg("skipping account in snapshot")
			continue
		}

		balances := make(map[string]string)
		for _, asset := range s.accounts.CollateralAssets() {
			bal := s.accounts.CollateralBalance(user, asset)
			if bal.Sign() > 0 {
				balances[asset] = bal.String()
			}
		}
		balancesJSON, err := json.Marshal(balances)
		if err != nil {
			return fmt.Errorf("marshal balances for %s: %w", user, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vault.position_snapshots
				(user_id, total_debt, collateral_value_usd, health_factor, collateral_balances, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id) DO UPDATE SET
				total_debt = $2,
				collateral_value_usd = $3,
				health_factor = $4,
				collateral_balances = $5,
				updated_at = $6
		`, user, sum.TotalDebt.String(), sum.CollateralValueUsd.String(),
			sum.HealthFactor.String(), balancesJSON, now,
		); err != nil {
			return fmt.Errorf("upsert snapshot for %s: %w", user, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.log.Debug().Int("accounts", len(users)).Msg("position snapshot written")
	return nil
}
