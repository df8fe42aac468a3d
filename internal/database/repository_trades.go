package database

import (
	"context"
	"fmt"
	"time"
)

// ==================== EXECUTED TRADES ====================

// CreateExecutedTrade appends one settled-trade record
func (db *DB) CreateExecutedTrade(ctx context.Context, trade *ExecutedTrade) error {
	query := `
		INSERT INTO executed_trades (
			config_id, user_id, symbol, product_id, side, level, quantity,
			entry_price, exit_price, outcome, pnl, fees, entry_order_id,
			executed_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		) RETURNING id`

	now := time.Now()
	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = now
	}

	err := db.Pool.QueryRow(ctx, query,
		trade.ConfigID,
		trade.UserID,
		trade.Symbol,
		trade.ProductID,
		trade.Side,
		trade.Level,
		trade.Quantity,
		trade.EntryPrice,
		trade.ExitPrice,
		trade.Outcome,
		trade.PnL,
		trade.Fees,
		trade.EntryOrderID,
		trade.ExecutedAt,
		now,
	).Scan(&trade.ID)

	if err != nil {
		return fmt.Errorf("failed to create executed trade: %w", err)
	}

	trade.CreatedAt = now
	return nil
}

// GetExecutedTrades returns the most recent settled trades for a user
// and symbol, newest first.
func (db *DB) GetExecutedTrades(ctx context.Context, userID, symbol string, limit int) ([]*ExecutedTrade, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, config_id, user_id, symbol, product_id, side, level, quantity,
			entry_price, exit_price, outcome, pnl, fees, entry_order_id,
			executed_at, created_at
		FROM executed_trades
		WHERE user_id = $1 AND symbol = $2
		ORDER BY executed_at DESC
		LIMIT $3`

	rows, err := db.Pool.Query(ctx, query, userID, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get executed trades: %w", err)
	}
	defer rows.Close()

	var trades []*ExecutedTrade
	for rows.Next() {
		var t ExecutedTrade
		if err := rows.Scan(
			&t.ID,
			&t.ConfigID,
			&t.UserID,
			&t.Symbol,
			&t.ProductID,
			&t.Side,
			&t.Level,
			&t.Quantity,
			&t.EntryPrice,
			&t.ExitPrice,
			&t.Outcome,
			&t.PnL,
			&t.Fees,
			&t.EntryOrderID,
			&t.ExecutedAt,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan executed trade: %w", err)
		}
		trades = append(trades, &t)
	}

	return trades, rows.Err()
}
