// Package persistence journals committed engine operations to Postgres and
// keeps per-account position snapshots for dashboards. Writes go through a
// batching worker; the engine never waits on the database.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"StableVault/internal/engine"

	"github.com/google/uuid"
)

// OperationRow is a row of vault.operations. Amounts are decimal strings
// bound to NUMERIC(78,0) columns, wide enough for any 256-bit value.
type OperationRow struct {
	OperationID  uuid.UUID
	Kind         string
	UserID       uuid.UUID
	Counterparty *uuid.UUID
	Asset        *string
	Amount       string
	DebtDelta    string
	HealthFactor string
	CreatedAt    time.Time
}

// RowFromRecord converts a committed engine record into its table row.
func RowFromRecord(op engine.OperationRecord) OperationRow {
	row := OperationRow{
		OperationID:  op.ID,
		Kind:         string(op.Kind),
		UserID:       op.User,
		Amount:       numericOrZero(op.Amount),
		DebtDelta:    numericOrZero(op.DebtDelta),
		HealthFactor: numericOrZero(op.HealthFactor),
		CreatedAt:    op.Timestamp,
	}
	if op.Counterparty != uuid.Nil {
		cp := op.Counterparty
		row.Counterparty = &cp
	}
	if op.Asset != "" {
		asset := op.Asset
		row.Asset = &asset
	}
	return row
}

func numericOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// OperationWriter reads and writes vault.operations using multi-row INSERT.
type OperationWriter struct {
	db *sql.DB
}

func NewOperationWriter(db *sql.DB) *OperationWriter {
	return &OperationWriter{db: db}
}

// WriteBatch inserts a batch of operation rows inside tx. The primary key
// conflict clause makes redelivered batches idempotent.
func (w *OperationWriter) WriteBatch(ctx context.Context, tx *sql.Tx, rows []OperationRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO vault.operations
		(operation_id, kind, user_id, counterparty, asset, amount, debt_delta, health_factor, created_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*9)

	for i, r := range rows {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			r.OperationID, r.Kind, r.UserID, r.Counterparty,
			r.Asset, r.Amount, r.DebtDelta, r.HealthFactor, r.CreatedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (operation_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// RecentOperations returns the newest operations touching a user, either as
// the acting account or as the counterparty.
func (w *OperationWriter) RecentOperations(ctx context.Context, user uuid.UUID, limit int) ([]OperationRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := w.db.QueryContext(ctx, `
		SELECT operation_id, kind, user_id, counterparty, asset,
		       amount::text, debt_delta::text, health_factor::text, created_at
		FROM vault.operations
		WHERE user_id = $1 OR counterparty = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, user, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OperationRow
	for rows.Next() {
		var r OperationRow
		if err := rows.Scan(
			&r.OperationID, &r.Kind, &r.UserID, &r.Counterparty,
			&r.Asset, &r.Amount, &r.DebtDelta, &r.HealthFactor, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
