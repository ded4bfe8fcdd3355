package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the event kinds flowing through the system
type EventType string

const (
	EventTradeEntry     EventType = "TRADE_ENTRY"
	EventTradeExit      EventType = "TRADE_EXIT"
	EventTradeUpdate    EventType = "TRADE_UPDATE"
	EventSignal         EventType = "SIGNAL"
	EventSignalRejected EventType = "SIGNAL_REJECTED"
	EventNewsAlert      EventType = "NEWS_ALERT"
	EventSystemMessage  EventType = "SYSTEM_MESSAGE"
	EventError          EventType = "ERROR"
)

// Event is a system event carried to every subscriber
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Symbol    string                 `json:"symbol,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles published events
type Subscriber func(Event)

// Bus fans events out to subscribers. Delivery is asynchronous so the
// trading path never blocks on a slow consumer.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{subscribers: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for one event type
func (b *Bus) Subscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
}

// SubscribeAll registers a subscriber for every event
func (b *Bus) SubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, sub)
}

// Publish delivers an event to matching subscribers, each on its own
// goroutine
func (b *Bus) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishTradeEntry reports a filled entry order
func (b *Bus) PublishTradeEntry(symbol, strategy, side string, ticket int64, price, lots, sl, tp float64) {
	b.Publish(Event{
		Type:   EventTradeEntry,
		Symbol: symbol,
		Data: map[string]interface{}{
			"strategy":    strategy,
			"side":        side,
			"ticket":      ticket,
			"entry_price": price,
			"lots":        lots,
			"stop_loss":   sl,
			"take_profit": tp,
		},
	})
}

// PublishTradeExit reports a confirmed closure with its cause
func (b *Bus) PublishTradeExit(symbol string, ticket int64, pnl float64, duration time.Duration, exitReason string) {
	b.Publish(Event{
		Type:   EventTradeExit,
		Symbol: symbol,
		Data: map[string]interface{}{
			"ticket":      ticket,
			"pnl":         pnl,
			"duration":    duration.String(),
			"exit_reason": exitReason,
		},
	})
}

// PublishTradeUpdate reports an in-trade stop change
func (b *Bus) PublishTradeUpdate(symbol string, ticket int64, kind string, newSL float64) {
	b.Publish(Event{
		Type:   EventTradeUpdate,
		Symbol: symbol,
		Data: map[string]interface{}{
			"ticket":    ticket,
			"kind":      kind,
			"stop_loss": newSL,
		},
	})
}

// PublishSignal reports a selected strategy signal
func (b *Bus) PublishSignal(symbol, strategy, action string, confidence, price float64) {
	b.Publish(Event{
		Type:   EventSignal,
		Symbol: symbol,
		Data: map[string]interface{}{
			"strategy":   strategy,
			"action":     action,
			"confidence": confidence,
			"price":      price,
		},
	})
}

// PublishSignalRejected reports an admission denial
func (b *Bus) PublishSignalRejected(symbol, strategy, action, reason string) {
	b.Publish(Event{
		Type:   EventSignalRejected,
		Symbol: symbol,
		Data: map[string]interface{}{
			"strategy": strategy,
			"action":   action,
			"reason":   reason,
		},
	})
}

// PublishNewsAlert reports an upcoming high impact event
func (b *Bus) PublishNewsAlert(symbol, title, currency string, eventTime time.Time) {
	b.Publish(Event{
		Type:   EventNewsAlert,
		Symbol: symbol,
		Data: map[string]interface{}{
			"title":      title,
			"currency":   currency,
			"event_time": eventTime,
		},
	})
}

// PublishSystemMessage reports operational status
func (b *Bus) PublishSystemMessage(message string) {
	b.Publish(Event{
		Type: EventSystemMessage,
		Data: map[string]interface{}{"message": message},
	})
}

// PublishError reports a component failure
func (b *Bus) PublishError(symbol, component, message string, err error) {
	data := map[string]interface{}{
		"component": component,
		"message":   message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{
		Type:   EventError,
		Symbol: symbol,
		Data:   data,
	})
}
