// Package events broadcasts cache and mutation notifications to subscribers such
// as the UI stream.
package events

import (
	"sync"
	"time"
)

// EventType represents the type of an Event.
type EventType string

const (
	// EventMutationSucceeded is emitted when the remote store confirmed a mutation.
	EventMutationSucceeded EventType = "mutation.succeeded"
	// EventMutationRolledBack is emitted when a mutation failed and its optimistic
	// patches were undone.
	EventMutationRolledBack EventType = "mutation.rolled_back"

	// EventCacheRefetched is emitted after a collection was reloaded from the store.
	EventCacheRefetched EventType = "cache.refetched"
	// EventExternalChange is emitted when another client changed the store.
	EventExternalChange EventType = "cache.external_change"

	// EventEdgesApplied is emitted after a tag relationship batch settled.
	EventEdgesApplied EventType = "relation.applied"

	// EventStatusChanged is emitted after an inventory status transition.
	EventStatusChanged EventType = "lifecycle.status_changed"
	// EventSagaIncomplete is emitted when remove-from-sale stopped after its first step.
	EventSagaIncomplete EventType = "lifecycle.saga_incomplete"

	// EventNotification carries a user-facing message.
	EventNotification EventType = "notification"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event is a notification delivered to subscribers.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	Data          any       `json:"data"`
	Type          EventType `json:"type"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Level grades a notification.
type Level string

// Notification levels.
const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// NotificationData is the payload of notification events.
type NotificationData struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// MutationEventData is the payload of mutation events.
type MutationEventData struct {
	Entity string `json:"entity"`
	Op     string `json:"op"`
	ID     int64  `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CacheEventData is the payload of cache events.
type CacheEventData struct {
	Key  string `json:"key"`
	Rows int    `json:"rows"`
}

// EdgesEventData is the payload of relation events.
type EdgesEventData struct {
	Table    string `json:"table"`
	EntityID int64  `json:"entity_id"`
	Added    int    `json:"added"`
	Removed  int    `json:"removed"`
	Updated  int    `json:"updated"`
	Failed   int    `json:"failed"`
}

// StatusEventData is the payload of lifecycle events.
type StatusEventData struct {
	InventoryID int64  `json:"inventory_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	SaleID      *int64 `json:"sale_id,omitempty"`
}

// HeartbeatEventData is the payload of heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// New creates an event of the given type stamped with the current time.
func New(t EventType, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now()}
}

// NewNotification creates a user-facing notification.
func NewNotification(level Level, message string) Event {
	return New(EventNotification, NotificationData{Level: level, Message: message})
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return New(EventHeartbeat, HeartbeatEventData{ServerTime: time.Now()})
}

// WithCorrelation returns a copy of e tagged with the id of the operation that
// caused it.
func (e Event) WithCorrelation(id string) Event {
	e.CorrelationID = id
	return e
}

// Emitter accepts events for delivery.
type Emitter interface {
	Emit(Event)
}

type discard struct{}

func (discard) Emit(Event) {}

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}

// Recorder is an Emitter that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// All returns the recorded events in emission order.
func (r *Recorder) All() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.All() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
