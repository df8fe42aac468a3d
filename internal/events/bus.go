package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventCycleStarted    EventType = "CYCLE_STARTED"
	EventCycleSkipped    EventType = "CYCLE_SKIPPED"
	EventCycleCompleted  EventType = "CYCLE_COMPLETED"
	EventRegimeEvaluated EventType = "REGIME_EVALUATED"
	EventOrderPlaced     EventType = "ORDER_PLACED"
	EventBracketPlaced   EventType = "BRACKET_PLACED"
	EventStopLossMoved   EventType = "STOP_LOSS_MOVED"
	EventOutcomeResolved EventType = "OUTCOME_RESOLVED"
	EventStateReset      EventType = "STATE_RESET"
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishCycleStarted publishes a cycle started event
func (eb *EventBus) PublishCycleStarted(userID, symbol string, productID int) {
	eb.Publish(Event{
		Type: EventCycleStarted,
		Data: map[string]interface{}{
			"user_id":    userID,
			"symbol":     symbol,
			"product_id": productID,
		},
	})
}

// PublishCycleSkipped publishes a cycle skipped event with the skip reason
func (eb *EventBus) PublishCycleSkipped(userID, symbol, reason string) {
	eb.Publish(Event{
		Type: EventCycleSkipped,
		Data: map[string]interface{}{
			"user_id": userID,
			"symbol":  symbol,
			"reason":  reason,
		},
	})
}

// PublishRegimeEvaluated publishes the outcome of a regime evaluation
func (eb *EventBus) PublishRegimeEvaluated(symbol, timeframe string, score int, allowed, breakout bool) {
	eb.Publish(Event{
		Type: EventRegimeEvaluated,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"timeframe": timeframe,
			"score":     score,
			"allowed":   allowed,
			"breakout":  breakout,
		},
	})
}

// PublishOrderPlaced publishes an order placed event
func (eb *EventBus) PublishOrderPlaced(orderID, symbol, side string, quantity, fillPrice float64, level int) {
	eb.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"order_id":   orderID,
			"symbol":     symbol,
			"side":       side,
			"quantity":   quantity,
			"fill_price": fillPrice,
			"level":      level,
		},
	})
}

// PublishBracketPlaced publishes a bracket placed event
func (eb *EventBus) PublishBracketPlaced(symbol, tpOrderID, slOrderID string, tpPrice, slPrice float64) {
	eb.Publish(Event{
		Type: EventBracketPlaced,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"tp_order_id": tpOrderID,
			"sl_order_id": slOrderID,
			"tp_price":    tpPrice,
			"sl_price":    slPrice,
		},
	})
}

// PublishStopLossMoved publishes a trailing stop adjustment event
func (eb *EventBus) PublishStopLossMoved(symbol string, oldPrice, newPrice float64) {
	eb.Publish(Event{
		Type: EventStopLossMoved,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"old_price": oldPrice,
			"new_price": newPrice,
		},
	})
}

// PublishOutcomeResolved publishes the result of a settled trade
func (eb *EventBus) PublishOutcomeResolved(userID, symbol, outcome string, pnl, fees float64, nextLevel int) {
	eb.Publish(Event{
		Type: EventOutcomeResolved,
		Data: map[string]interface{}{
			"user_id":    userID,
			"symbol":     symbol,
			"outcome":    outcome,
			"pnl":        pnl,
			"fees":       fees,
			"next_level": nextLevel,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
