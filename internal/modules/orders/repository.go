// Package orders implements the order orchestrator: fan-out of one
// logical order across all target broker accounts, the local order
// cache, and reconciliation of that cache against the broker.
package orders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravitejakamalapuram/copytradepro/internal/database"
	"github.com/ravitejakamalapuram/copytradepro/internal/domain"
)

// CachedOrder is one row of the local order cache. The broker's view
// is authoritative; these rows exist for history and the dashboard.
type CachedOrder struct {
	ID            int64
	BatchID       string
	AccountID     string
	BrokerOrderID string
	Symbol        string
	Exchange      string
	Side          domain.OrderSide
	Quantity      int
	Kind          domain.OrderKind
	LimitPrice    *float64
	TriggerPrice  *float64
	ProductType   string
	Status        string
	ErrorKind     string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// nonTerminalStatuses are the broker order statuses that can still
// change, making the row a reconciliation candidate.
var nonTerminalStatuses = []string{"PLACED", "OPEN", "PENDING", "TRIGGER_PENDING"}

// Repository persists cached orders in the orders cache database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates an order cache repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "orders").Logger(),
	}
}

// RecordBatch writes one row per outcome of a fan-out, all in one
// transaction.
func (r *Repository) RecordBatch(ctx context.Context, req domain.OrderRequest, result domain.OrderBatchResult) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		for _, outcome := range result.Outcomes {
			status := string(outcome.Status)
			var errorKind, errorMessage string
			if outcome.Error != nil {
				errorKind = string(outcome.Error.Kind)
				errorMessage = outcome.Error.UserMessage
			}

			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_history
					(batch_id, account_id, broker_order_id, symbol, exchange, side, quantity,
					 order_kind, limit_price, trigger_price, product_type, status, error_kind, error_message)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				result.BatchID, outcome.AccountID, nullableString(outcome.BrokerOrderID),
				req.Symbol, req.Exchange, string(req.Side), req.Quantity,
				string(req.Kind), req.LimitPrice, req.TriggerPrice, req.ProductType,
				status, nullableString(errorKind), nullableString(errorMessage))
			if err != nil {
				return fmt.Errorf("failed to record outcome for %s: %w", outcome.AccountID, err)
			}
		}
		return nil
	})
}

// History returns the most recent cached orders.
func (r *Repository) History(ctx context.Context, limit int) ([]CachedOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query order history: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// Batch returns the rows of one fan-out, in insertion order (which is
// the order the target accounts were supplied in).
func (r *Repository) Batch(ctx context.Context, batchID string) ([]CachedOrder, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch %s: %w", batchID, err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ByAccount returns an account's cached orders, newest first.
func (r *Repository) ByAccount(ctx context.Context, accountID string, limit int) ([]CachedOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE account_id = ? ORDER BY id DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders for %s: %w", accountID, err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ByID returns a single cached order row.
func (r *Repository) ByID(ctx context.Context, id int64) (*CachedOrder, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order %d: %w", id, err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, sql.ErrNoRows
	}
	return &orders[0], nil
}

// Unsettled returns the rows reconciliation should check: placed on
// the broker and not yet in a terminal status.
func (r *Repository) Unsettled(ctx context.Context) ([]CachedOrder, error) {
	query := selectColumns + ` WHERE broker_order_id IS NOT NULL AND status IN (?, ?, ?, ?) ORDER BY id`
	args := make([]interface{}, len(nonTerminalStatuses))
	for i, s := range nonTerminalStatuses {
		args[i] = s
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsettled orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// SetStatus overwrites a row's status with the broker's authoritative
// one. Writing the same status again is a no-op; the returned bool
// reports whether the row actually changed.
func (r *Repository) SetStatus(ctx context.Context, brokerOrderID, status string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE order_history
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE broker_order_id = ? AND status != ?`,
		status, brokerOrderID, status)
	if err != nil {
		return false, fmt.Errorf("failed to update status for %s: %w", brokerOrderID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

const selectColumns = `
	SELECT id, batch_id, account_id, broker_order_id, symbol, exchange, side, quantity,
	       order_kind, limit_price, trigger_price, product_type, status, error_kind, error_message,
	       created_at, updated_at
	FROM order_history`

func scanOrders(rows *sql.Rows) ([]CachedOrder, error) {
	var orders []CachedOrder
	for rows.Next() {
		var o CachedOrder
		var brokerOrderID, productType, errorKind, errorMessage sql.NullString
		var side, kind string

		if err := rows.Scan(&o.ID, &o.BatchID, &o.AccountID, &brokerOrderID, &o.Symbol, &o.Exchange,
			&side, &o.Quantity, &kind, &o.LimitPrice, &o.TriggerPrice, &productType,
			&o.Status, &errorKind, &errorMessage, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Side = domain.OrderSide(side)
		o.Kind = domain.OrderKind(kind)
		o.BrokerOrderID = brokerOrderID.String
		o.ProductType = productType.String
		o.ErrorKind = errorKind.String
		o.ErrorMessage = errorMessage.String
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
