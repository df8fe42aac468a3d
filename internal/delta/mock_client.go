package delta

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MockGateway implements the Gateway interface for dry-run mode and tests.
// Candle histories are keyed by timeframe; orders by id.
type MockGateway struct {
	mu sync.Mutex

	Candles   map[string][]Candle
	TickerVal *Ticker
	Orders    map[string]*OrderDetails
	Positions []Position

	// Failure switches
	FailCancelAll  bool
	FailSLUpdate   bool
	SLUnchanged    bool
	FailPlaceOrder bool

	// Call records
	PlacedEntries   []EntryResult
	PlacedBrackets  []BracketRequest
	SLUpdates       []StopLossRequest
	CancelAllCalls  int
	GatewayTouched  bool
	nextOrderID     int64
	entryFillPrice  float64
}

// NewMockGateway creates an empty mock exchange
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Candles:        make(map[string][]Candle),
		Orders:         make(map[string]*OrderDetails),
		nextOrderID:    1000,
		entryFillPrice: 100,
	}
}

// SetEntryFillPrice sets the price reported for subsequent market entries
func (m *MockGateway) SetEntryFillPrice(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryFillPrice = p
}

func (m *MockGateway) touch() {
	m.GatewayTouched = true
}

func (m *MockGateway) GetCandles(ctx context.Context, symbol, timeframe string, startMs, endMs int64) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()

	all := m.Candles[timeframe]
	var out []Candle
	for _, c := range all {
		if c.Timestamp >= startMs && c.Timestamp <= endMs {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockGateway) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()

	if m.TickerVal == nil {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}
	t := *m.TickerVal
	return &t, nil
}

func (m *MockGateway) GetOrder(ctx context.Context, orderID string) (*OrderDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()

	o, ok := m.Orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	cp := *o
	return &cp, nil
}

func (m *MockGateway) PlaceMarketOrder(ctx context.Context, productID int, symbol string, side OrderSide, qty float64) (*EntryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()

	if m.FailPlaceOrder {
		return nil, fmt.Errorf("exchange rejected market order")
	}

	m.nextOrderID++
	entry := EntryResult{
		ID:               strconv.FormatInt(m.nextOrderID, 10),
		AverageFillPrice: m.entryFillPrice,
	}
	m.PlacedEntries = append(m.PlacedEntries, entry)
	m.Orders[entry.ID] = &OrderDetails{
		ID:               entry.ID,
		ProductID:        productID,
		ProductSymbol:    symbol,
		Side:             side,
		Size:             qty,
		Status:           OrderStatusClosed,
		AverageFillPrice: strconv.FormatFloat(entry.AverageFillPrice, 'f', -1, 64),
	}
	return &entry, nil
}

func (m *MockGateway) PlaceBracketOrder(ctx context.Context, req BracketRequest) (*BracketResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()

	m.PlacedBrackets = append(m.PlacedBrackets, req)
	m.nextOrderID++
	tpID := strconv.FormatInt(m.nextOrderID, 10)
	m.nextOrderID++
	slID := strconv.FormatInt(m.nextOrderID, 10)

	m.Orders[tpID] = &OrderDetails{ID: tpID, Status: OrderStatusOpen, Side: req.Side.Opposite()}
	m.Orders[slID] = &OrderDetails{ID: slID, Status: OrderStatusOpen, Side: req.Side.Opposite()}

	return &BracketResult{TakeProfitOrderID: tpID, StopLossOrderID: slID}, nil
}

func (m *MockGateway) UpdateStopLoss(ctx context.Context, req StopLossRequest) (*StopLossUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()

	m.SLUpdates = append(m.SLUpdates, req)
	if m.SLUnchanged {
		return &StopLossUpdate{Success: false, IsUnchanged: true, NewLimitPrice: req.OldLimitPrice}, nil
	}
	if m.FailSLUpdate {
		return &StopLossUpdate{Success: false, NewLimitPrice: req.NewStopPrice}, nil
	}
	return &StopLossUpdate{Success: true, NewLimitPrice: req.NewStopPrice}, nil
}

func (m *MockGateway) CancelAllOpenOrders(ctx context.Context, productID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()

	m.CancelAllCalls++
	if m.FailCancelAll {
		return fmt.Errorf("cancel-all rejected for product %d", productID)
	}
	for _, o := range m.Orders {
		if o.Status == OrderStatusOpen {
			o.Status = OrderStatusCancelled
		}
	}
	return nil
}

func (m *MockGateway) GetPositions(ctx context.Context, productID int) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()

	out := make([]Position, len(m.Positions))
	copy(out, m.Positions)
	return out, nil
}
