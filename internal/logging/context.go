package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext adds a fresh trace ID to the context and returns a
// logger carrying it. Each decision cycle starts here so all entries for
// one run share a trace ID.
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// CycleContext creates a logger context for one trading cycle
func CycleContext(userID, symbol string, productID int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"user_id":    userID,
		"symbol":     symbol,
		"product_id": productID,
	}).WithComponent("cycle")
}

// OrderContext creates a logger context for order operations
func OrderContext(orderID, symbol, side string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"order_id": orderID,
		"symbol":   symbol,
		"side":     side,
	}).WithComponent("order")
}

// ReconcileContext creates a logger context for pending-state resolution
func ReconcileContext(symbol, entryOrderID, orderStatus string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":         symbol,
		"entry_order_id": entryOrderID,
		"order_status":   orderStatus,
	}).WithComponent("reconcile")
}

// RegimeContext creates a logger context for market regime evaluation
func RegimeContext(symbol, timeframe string, score int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"score":     score,
	}).WithComponent("regime")
}

// DeltaAPIContext creates a logger context for exchange API calls
func DeltaAPIContext(endpoint string, params map[string]interface{}) *Logger {
	l := Default().WithFields(map[string]interface{}{
		"endpoint": endpoint,
	}).WithComponent("delta")

	// Add safe params (exclude sensitive data)
	for k, v := range params {
		if k != "signature" && k != "api_key" {
			l = l.WithField(k, v)
		}
	}

	return l
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("database")
}

// SchedulerContext creates a logger context for scheduler rounds
func SchedulerContext(round int64, configCount int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"round":        round,
		"config_count": configCount,
	}).WithComponent("scheduler")
}
