package delta

import (
	"fmt"
	"sort"
	"strconv"
)

// OrderSide is the direction of an order
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Opposite returns the closing side for a position opened with this side
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Order status values as reported by the exchange
const (
	OrderStatusOpen      = "OPEN"
	OrderStatusClosed    = "CLOSED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusPending   = "PENDING"
)

// CandleColor classifies a closed candle by its body direction
type CandleColor string

const (
	ColorGreen CandleColor = "green"
	ColorRed   CandleColor = "red"
)

// Candle represents one OHLCV bar. Timestamp is in milliseconds.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// TargetCandle is the most recently closed candle on the decision
// timeframe, tagged with its body color.
type TargetCandle struct {
	Candle
	Color CandleColor `json:"color"`
}

// NewTargetCandle tags a candle with its color (close >= open is green)
func NewTargetCandle(c Candle) TargetCandle {
	color := ColorRed
	if c.Close >= c.Open {
		color = ColorGreen
	}
	return TargetCandle{Candle: c, Color: color}
}

// Ticker holds the subset of ticker fields the trading cycle consumes
type Ticker struct {
	Symbol    string `json:"symbol"`
	ProductID int    `json:"product_id"`
	MarkPrice string `json:"mark_price"`
	SpotPrice string `json:"spot_price"`
	Close     float64 `json:"close"`
}

// Mark returns the mark price as a float, 0 if unparseable
func (t *Ticker) Mark() float64 {
	v, err := strconv.ParseFloat(t.MarkPrice, 64)
	if err != nil {
		return 0
	}
	return v
}

// OrderMeta carries exchange-side metadata attached to an order
type OrderMeta struct {
	PnL          string `json:"pnl,omitempty"`
	EntryPrice   string `json:"entry_price,omitempty"`
	AvgExitPrice string `json:"avg_exit_price,omitempty"`
	Cashflow     string `json:"cashflow,omitempty"`
}

// OrderDetails is a read-only snapshot of an exchange order
type OrderDetails struct {
	ID               string    `json:"id"`
	ProductID        int       `json:"product_id"`
	ProductSymbol    string    `json:"product_symbol"`
	Side             OrderSide `json:"side"`
	Size             float64   `json:"size"`
	UnfilledSize     float64   `json:"unfilled_size"`
	Status           string    `json:"status"`
	LimitPrice       string    `json:"limit_price"`
	AverageFillPrice string    `json:"average_fill_price"`
	PaidCommission   string    `json:"paid_commission"`
	ClientOrderID    string    `json:"client_order_id"`
	BracketOrder     bool      `json:"bracket_order"`
	Meta             OrderMeta `json:"meta_data"`
}

// Commission returns the paid commission as a float, 0 if missing
func (o *OrderDetails) Commission() float64 {
	v, err := strconv.ParseFloat(o.PaidCommission, 64)
	if err != nil {
		return 0
	}
	return v
}

// MetaPnL returns the realized pnl reported on the order, 0 if missing
func (o *OrderDetails) MetaPnL() float64 {
	v, err := strconv.ParseFloat(o.Meta.PnL, 64)
	if err != nil {
		return 0
	}
	return v
}

// ResolveFillPrice returns the average fill price, falling back to the
// limit price for orders that never traded
func (o *OrderDetails) ResolveFillPrice() (float64, error) {
	for _, raw := range []string{o.AverageFillPrice, o.Meta.EntryPrice, o.LimitPrice} {
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err == nil && v > 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("order %s has no resolvable fill price", o.ID)
}

// Position is an open exchange position for a product
type Position struct {
	EntryPrice string  `json:"entry_price"`
	Size       float64 `json:"size"`
}

// EntryResult is returned after placing a market entry order
type EntryResult struct {
	ID               string
	AverageFillPrice float64
}

// BracketResult carries the order ids of a placed TP/SL pair
type BracketResult struct {
	TakeProfitOrderID string
	StopLossOrderID   string
}

// StopLossUpdate is the outcome of an update-stop-loss request
type StopLossUpdate struct {
	Success       bool
	IsUnchanged   bool
	NewLimitPrice float64
}

// SortCandlesAscending orders candles by timestamp, oldest first.
// All indicator code assumes ascending order.
func SortCandlesAscending(candles []Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp < candles[j].Timestamp
	})
}
