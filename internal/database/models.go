package database

import (
	"time"
)

// ExecutedTrade is an append-only record of one settled trade
type ExecutedTrade struct {
	ID           int64     `json:"id"`
	ConfigID     string    `json:"config_id"`
	UserID       string    `json:"user_id"`
	Symbol       string    `json:"symbol"`
	ProductID    int       `json:"product_id"`
	Side         string    `json:"side"`
	Level        int       `json:"level"`
	Quantity     float64   `json:"quantity"`
	EntryPrice   *float64  `json:"entry_price,omitempty"`
	ExitPrice    *float64  `json:"exit_price,omitempty"`
	Outcome      string    `json:"outcome"`
	PnL          float64   `json:"pnl"`
	Fees         float64   `json:"fees"`
	EntryOrderID *string   `json:"entry_order_id,omitempty"`
	ExecutedAt   time.Time `json:"executed_at"`
	CreatedAt    time.Time `json:"created_at"`
}
