package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/collectr/collectr/internal/id"
)

// Subscriber receives broadcast events on Events until Done is closed.
type Subscriber struct {
	SubscribedAt time.Time
	Events       chan Event
	Done         chan struct{}
	ID           string
	// Types limits delivery to these event types. Empty means all.
	Types map[EventType]bool
}

func (s *Subscriber) wants(t EventType) bool {
	return len(s.Types) == 0 || s.Types[t]
}

// Manager fans events out to subscribers. Emit never blocks: events are queued in a
// buffer and dropped when the buffer or a subscriber is full.
type Manager struct {
	subscribers       map[string]*Subscriber
	events            chan Event
	logger            *slog.Logger
	wg                sync.WaitGroup
	heartbeatInterval time.Duration
	mu                sync.RWMutex

	// Shutdown state - protected by shutdownMu
	shutdownMu sync.RWMutex
	shutdown   bool
}

var _ Emitter = (*Manager)(nil)

// NewManager creates a new Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		subscribers:       make(map[string]*Subscriber),
		events:            make(chan Event, 1000),
		logger:            logger,
		heartbeatInterval: 30 * time.Second,
	}
}

// Start runs the broadcast loop until ctx is canceled. Call it once, in a goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	m.logger.Info("event manager starting")

	heartbeatTicker := time.NewTicker(m.heartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case event, ok := <-m.events:
			if !ok {
				return
			}
			m.broadcast(event)

		case <-heartbeatTicker.C:
			m.broadcast(NewHeartbeatEvent())

		case <-ctx.Done():
			m.logger.Info("event manager stopping")
			m.closeAllSubscribers()
			return
		}
	}
}

// Shutdown stops accepting events, drains the queue and waits for the broadcast
// loop to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("event manager shutdown initiated")

	// Closing under the write lock keeps Emit, which sends under the read lock,
	// from writing to a closed channel.
	m.shutdownMu.Lock()
	if m.shutdown {
		m.shutdownMu.Unlock()
		return nil
	}
	m.shutdown = true
	close(m.events)
	m.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		for event := range m.events {
			m.broadcast(event)
		}
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("events drained")
	case <-ctx.Done():
		m.logger.Warn("event drain timeout, some events may be lost")
	}

	m.wg.Wait()
	m.closeAllSubscribers()

	m.logger.Info("event manager shutdown complete")
	return nil
}

func (m *Manager) broadcast(event Event) {
	var delivered, dropped, filtered int

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		if !sub.wants(event.Type) {
			filtered++
			continue
		}

		select {
		case sub.Events <- event:
			delivered++
		default:
			dropped++
			m.logger.Warn("dropped event for slow subscriber",
				slog.String("subscriber_id", sub.ID),
				slog.String("event_type", string(event.Type)))
		}
	}

	if event.Type != EventHeartbeat {
		m.logger.Debug("event broadcast",
			slog.String("event_type", string(event.Type)),
			slog.Group("stats",
				slog.Int("delivered", delivered),
				slog.Int("filtered", filtered),
				slog.Int("dropped", dropped)))
	}
}

// Subscribe registers a subscriber for the given event types (all types when none
// are given).
func (m *Manager) Subscribe(types ...EventType) (*Subscriber, error) {
	subID, err := id.Generate("sub")
	if err != nil {
		return nil, err
	}

	sub := &Subscriber{
		ID:           subID,
		Events:       make(chan Event, 100),
		Done:         make(chan struct{}),
		SubscribedAt: time.Now(),
	}
	if len(types) > 0 {
		sub.Types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.Types[t] = true
		}
	}

	m.mu.Lock()
	m.subscribers[sub.ID] = sub
	total := len(m.subscribers)
	m.mu.Unlock()

	m.logger.Info("subscriber added",
		slog.String("subscriber_id", subID),
		slog.Int("total_subscribers", total))
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channels.
func (m *Manager) Unsubscribe(subscriberID string) {
	m.mu.Lock()
	sub, ok := m.subscribers[subscriberID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.subscribers, subscriberID)
	total := len(m.subscribers)
	m.mu.Unlock()

	close(sub.Done)
	close(sub.Events)

	m.logger.Info("subscriber removed",
		slog.String("subscriber_id", subscriberID),
		slog.Duration("duration", time.Since(sub.SubscribedAt)),
		slog.Int("total_subscribers", total))
}

// Emit queues an event for broadcasting.
func (m *Manager) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.shutdownMu.RLock()
	defer m.shutdownMu.RUnlock()

	if m.shutdown {
		return
	}

	select {
	case m.events <- event:
	default:
		m.logger.Error("event queue full, dropping event",
			slog.String("event_type", string(event.Type)))
	}
}

// SubscriberCount returns the number of subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

func (m *Manager) closeAllSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subscribers {
		close(sub.Done)
		close(sub.Events)
	}
	m.subscribers = make(map[string]*Subscriber)
}
