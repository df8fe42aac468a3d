package delta

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Client talks to the Delta Exchange REST API with HMAC-signed requests
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
}

// NewClient creates a new signed exchange client
func NewClient(apiKey, secretKey, baseURL string) *Client {
	return &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    NewRateLimiter(8, time.Second),
	}
}

// sign computes the request signature over method + timestamp + path + body
func (c *Client) sign(method, path string, ts int64, body string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(fmt.Sprintf("%s%d%s%s", method, ts, path, body)))
	return hex.EncodeToString(mac.Sum(nil))
}

// apiError is the error envelope returned by the exchange
type apiError struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Context any    `json:"context"`
	} `json:"error"`
}

// signedRequest performs one authenticated API call and returns the raw body
func (c *Client) signedRequest(ctx context.Context, method, endpoint string, payload any, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	qs := ""
	if len(query) > 0 {
		qs = "?" + query.Encode()
	}

	var body string
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = string(raw)
	}

	// Signature timestamp is backdated slightly to tolerate clock skew
	ts := time.Now().Unix() - 2
	sig := c.sign(method, "/v2"+endpoint+qs, ts, body)

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint+qs, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("signature", sig)
	req.Header.Set("timestamp", strconv.FormatInt(ts, 10))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange request %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading exchange response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Code != "" {
			return nil, fmt.Errorf("exchange error %d (%s): %s %s", resp.StatusCode, apiErr.Error.Code, method, endpoint)
		}
		return nil, fmt.Errorf("exchange error %d: %s %s", resp.StatusCode, method, endpoint)
	}

	return raw, nil
}

// ==================== MARKET DATA ====================

// candleHistory is the columnar candle payload from /history/candles
type candleHistory struct {
	Result struct {
		Time   []int64   `json:"time"`
		Open   []float64 `json:"open"`
		High   []float64 `json:"high"`
		Low    []float64 `json:"low"`
		Close  []float64 `json:"close"`
		Volume []float64 `json:"volume"`
	} `json:"result"`
}

// GetCandles fetches candlestick history, ascending by timestamp
func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, startMs, endMs int64) ([]Candle, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("resolution", timeframe)
	query.Set("start", strconv.FormatInt(startMs/1000, 10))
	query.Set("end", strconv.FormatInt(endMs/1000, 10))

	raw, err := c.signedRequest(ctx, http.MethodGet, "/history/candles", nil, query)
	if err != nil {
		return nil, err
	}

	var hist candleHistory
	if err := json.Unmarshal(raw, &hist); err != nil {
		return nil, fmt.Errorf("parsing candle history: %w", err)
	}

	candles := make([]Candle, 0, len(hist.Result.Time))
	for i, t := range hist.Result.Time {
		candles = append(candles, Candle{
			Timestamp: t * 1000,
			Open:      hist.Result.Open[i],
			High:      hist.Result.High[i],
			Low:       hist.Result.Low[i],
			Close:     hist.Result.Close[i],
			Volume:    hist.Result.Volume[i],
		})
	}

	SortCandlesAscending(candles)
	return candles, nil
}

// GetTicker fetches the ticker snapshot for a symbol
func (c *Client) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	raw, err := c.signedRequest(ctx, http.MethodGet, "/tickers/"+symbol, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result *Ticker `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parsing ticker: %w", err)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}
	return resp.Result, nil
}

// ==================== ORDERS ====================

// rawOrder matches the exchange order payload; numeric ids and string prices
type rawOrder struct {
	ID               json.Number `json:"id"`
	ProductID        int         `json:"product_id"`
	ProductSymbol    string      `json:"product_symbol"`
	Side             OrderSide   `json:"side"`
	Size             float64     `json:"size"`
	UnfilledSize     float64     `json:"unfilled_size"`
	State            string      `json:"state"`
	Status           string      `json:"status"`
	LimitPrice       string      `json:"limit_price"`
	AverageFillPrice string      `json:"average_fill_price"`
	PaidCommission   string      `json:"paid_commission"`
	ClientOrderID    string      `json:"client_order_id"`
	BracketOrder     *bool       `json:"bracket_order"`
	MetaData         OrderMeta   `json:"meta_data"`
}

func (o *rawOrder) toOrderDetails() *OrderDetails {
	status := o.State
	if status == "" {
		status = o.Status
	}
	d := &OrderDetails{
		ID:               o.ID.String(),
		ProductID:        o.ProductID,
		ProductSymbol:    o.ProductSymbol,
		Side:             o.Side,
		Size:             o.Size,
		UnfilledSize:     o.UnfilledSize,
		Status:           normalizeStatus(status),
		LimitPrice:       o.LimitPrice,
		AverageFillPrice: o.AverageFillPrice,
		PaidCommission:   o.PaidCommission,
		ClientOrderID:    o.ClientOrderID,
		Meta:             o.MetaData,
	}
	if o.BracketOrder != nil {
		d.BracketOrder = *o.BracketOrder
	}
	return d
}

func normalizeStatus(s string) string {
	switch s {
	case "open", "OPEN":
		return OrderStatusOpen
	case "closed", "CLOSED":
		return OrderStatusClosed
	case "cancelled", "CANCELLED":
		return OrderStatusCancelled
	case "pending", "PENDING":
		return OrderStatusPending
	}
	return s
}

// GetOrder fetches a single order by id
func (c *Client) GetOrder(ctx context.Context, orderID string) (*OrderDetails, error) {
	raw, err := c.signedRequest(ctx, http.MethodGet, "/orders/"+orderID, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result *rawOrder `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parsing order %s: %w", orderID, err)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	return resp.Result.toOrderDetails(), nil
}

// PlaceMarketOrder submits a market entry order
func (c *Client) PlaceMarketOrder(ctx context.Context, productID int, symbol string, side OrderSide, qty float64) (*EntryResult, error) {
	payload := map[string]any{
		"product_id":      productID,
		"product_symbol":  symbol,
		"side":            side,
		"size":            math.Floor(qty),
		"order_type":      "market_order",
		"time_in_force":   "gtc",
		"client_order_id": "dtb-" + uuid.NewString()[:18],
	}

	raw, err := c.signedRequest(ctx, http.MethodPost, "/orders", payload, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result *rawOrder `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Result == nil {
		return nil, fmt.Errorf("parsing entry order response: %w", err)
	}

	order := resp.Result.toOrderDetails()
	price, err := order.ResolveFillPrice()
	if err != nil {
		return nil, err
	}
	return &EntryResult{ID: order.ID, AverageFillPrice: price}, nil
}

// clampPrice rounds a price to the product's tick precision
func clampPrice(price float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(price*scale) / scale
}

// stopPrices derives the buffered trigger and limit prices for a stop order.
// Long stops are pushed below the raw stop, short stops above it.
func stopPrices(side OrderSide, stop, triggerBuffer, limitBuffer float64, decimals int) (trigger, limit float64) {
	dir := 1.0
	if side == SideBuy {
		dir = -1.0
	}
	trigger = clampPrice(stop*(1+dir*triggerBuffer/100), decimals)
	limit = clampPrice(stop*(1+dir*limitBuffer/100), decimals)
	return trigger, limit
}

// PlaceBracketOrder attaches a TP/SL pair to the current position
func (c *Client) PlaceBracketOrder(ctx context.Context, req BracketRequest) (*BracketResult, error) {
	slTrigger, slLimit := stopPrices(req.Side, req.StopLoss, req.TriggerBufferPercent, req.LimitBufferPercent, req.PriceDecimals)
	tp := clampPrice(req.TakeProfit, req.PriceDecimals)

	payload := map[string]any{
		"product_id":                  req.ProductID,
		"product_symbol":              req.Symbol,
		"bracket_stop_trigger_method": "last_traded_price",
		"take_profit_order": map[string]any{
			"order_type":  "limit_order",
			"stop_price":  formatPrice(tp),
			"limit_price": formatPrice(tp),
		},
		"stop_loss_order": map[string]any{
			"order_type":  "limit_order",
			"stop_price":  formatPrice(slTrigger),
			"limit_price": formatPrice(slLimit),
		},
	}

	raw, err := c.signedRequest(ctx, http.MethodPost, "/orders/bracket", payload, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result *struct {
			TakeProfitOrder *rawOrder `json:"take_profit_order"`
			StopLossOrder   *rawOrder `json:"stop_loss_order"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parsing bracket response: %w", err)
	}
	if resp.Result == nil || resp.Result.TakeProfitOrder == nil || resp.Result.StopLossOrder == nil {
		return nil, fmt.Errorf("bracket order placement returned incomplete result")
	}

	return &BracketResult{
		TakeProfitOrderID: resp.Result.TakeProfitOrder.ID.String(),
		StopLossOrderID:   resp.Result.StopLossOrder.ID.String(),
	}, nil
}

// UpdateStopLoss edits an existing stop-loss order's trigger/limit prices.
// Returns IsUnchanged when the new buffered limit equals the stored one.
func (c *Client) UpdateStopLoss(ctx context.Context, req StopLossRequest) (*StopLossUpdate, error) {
	trigger, limit := stopPrices(req.Side, req.NewStopPrice, req.TriggerBufferPercent, req.LimitBufferPercent, req.PriceDecimals)

	if limit == clampPrice(req.OldLimitPrice, req.PriceDecimals) {
		return &StopLossUpdate{Success: false, IsUnchanged: true, NewLimitPrice: req.OldLimitPrice}, nil
	}

	payload := map[string]any{
		"id":             req.OrderID,
		"product_id":     req.ProductID,
		"product_symbol": req.Symbol,
		"stop_price":     formatPrice(trigger),
		"limit_price":    formatPrice(limit),
	}

	raw, err := c.signedRequest(ctx, http.MethodPut, "/orders", payload, nil)
	if err != nil {
		return &StopLossUpdate{Success: false, NewLimitPrice: limit}, err
	}

	var resp struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parsing stop-loss update response: %w", err)
	}
	return &StopLossUpdate{Success: resp.Success, NewLimitPrice: limit}, nil
}

// CancelAllOpenOrders cancels every open order for a product
func (c *Client) CancelAllOpenOrders(ctx context.Context, productID int) error {
	payload := map[string]any{
		"contract_types":            "perpetual_futures",
		"cancel_limit_orders":       true,
		"cancel_stop_orders":        true,
		"cancel_reduce_only_orders": true,
		"product_id":                productID,
	}

	raw, err := c.signedRequest(ctx, http.MethodDelete, "/orders/all", payload, nil)
	if err != nil {
		return err
	}

	var resp struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("parsing cancel-all response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("cancel-all rejected for product %d", productID)
	}
	return nil
}

// GetPositions lists open positions for a product
func (c *Client) GetPositions(ctx context.Context, productID int) ([]Position, error) {
	query := url.Values{}
	query.Set("product_id", strconv.Itoa(productID))

	raw, err := c.signedRequest(ctx, http.MethodGet, "/positions", nil, query)
	if err != nil {
		return nil, err
	}

	// The positions endpoint returns a single object when filtered by
	// product and an array otherwise
	var listResp struct {
		Result []Position `json:"result"`
	}
	if err := json.Unmarshal(raw, &listResp); err == nil {
		return listResp.Result, nil
	}

	var oneResp struct {
		Result *Position `json:"result"`
	}
	if err := json.Unmarshal(raw, &oneResp); err != nil {
		return nil, fmt.Errorf("parsing positions: %w", err)
	}
	if oneResp.Result == nil {
		return nil, nil
	}
	return []Position{*oneResp.Result}, nil
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
