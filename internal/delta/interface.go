package delta

import "context"

// BracketRequest describes a paired take-profit + stop-loss order for an
// open position. Buffer percents widen the stop trigger/limit away from
// the raw stop price so limit stops still fill on fast moves.
type BracketRequest struct {
	ProductID            int
	Symbol               string
	Side                 OrderSide // side of the entry order being protected
	TakeProfit           float64
	StopLoss             float64
	TriggerBufferPercent float64
	LimitBufferPercent   float64
	PriceDecimals        int
}

// StopLossRequest describes an edit of an existing stop-loss order
type StopLossRequest struct {
	OrderID              string
	OldLimitPrice        float64
	ProductID            int
	Symbol               string
	Side                 OrderSide
	NewStopPrice         float64
	TriggerBufferPercent float64
	LimitBufferPercent   float64
	PriceDecimals        int
}

// Gateway defines the exchange operations the trading cycle depends on.
// Implemented by Client for the live exchange and by MockGateway in tests.
type Gateway interface {
	// GetCandles fetches OHLCV bars for a symbol/timeframe window,
	// returned ascending by timestamp
	GetCandles(ctx context.Context, symbol, timeframe string, startMs, endMs int64) ([]Candle, error)

	// GetTicker fetches the current ticker snapshot for a symbol
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)

	// GetOrder fetches a single order by id
	GetOrder(ctx context.Context, orderID string) (*OrderDetails, error)

	// PlaceMarketOrder submits a market entry order
	PlaceMarketOrder(ctx context.Context, productID int, symbol string, side OrderSide, qty float64) (*EntryResult, error)

	// PlaceBracketOrder attaches a TP/SL pair to the current position
	PlaceBracketOrder(ctx context.Context, req BracketRequest) (*BracketResult, error)

	// UpdateStopLoss edits the price of an existing stop-loss order
	UpdateStopLoss(ctx context.Context, req StopLossRequest) (*StopLossUpdate, error)

	// CancelAllOpenOrders cancels every open order for a product
	CancelAllOpenOrders(ctx context.Context, productID int) error

	// GetPositions lists open positions for a product
	GetPositions(ctx context.Context, productID int) ([]Position, error)
}
