// Package eventbus fans vault lifecycle events (photo saved, deleted,
// masked, cache cleared) out to in-process listeners such as gallery and
// detail views.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"photovault/internal/domain"
)

// Bus delivers each published event to every matching listener on its own
// goroutine, so a slow gallery refresh never stalls the save that triggered
// it. Listeners that panic are recovered and logged.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	byType map[domain.EventType]map[uint64]domain.EventHandler
	every  map[uint64]domain.EventHandler

	inFlight sync.WaitGroup
	closed   atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger,
		byType: make(map[domain.EventType]map[uint64]domain.EventHandler),
		every:  make(map[uint64]domain.EventHandler),
	}
}

// Publish delivers event to typed and all-event listeners. Publishing on a
// closed bus is a no-op.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}
	for _, h := range b.listenersFor(event.Type) {
		b.inFlight.Add(1)
		go b.deliver(ctx, event, h)
	}
}

// listenersFor snapshots the matching handlers under the read lock, so an
// unsubscribe during dispatch never mutates a map being ranged.
func (b *Bus) listenersFor(t domain.EventType) []domain.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.EventHandler, 0, len(b.byType[t])+len(b.every))
	for _, h := range b.byType[t] {
		out = append(out, h)
	}
	for _, h := range b.every {
		out = append(out, h)
	}
	return out
}

func (b *Bus) deliver(ctx context.Context, event domain.Event, h domain.EventHandler) {
	defer b.inFlight.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				"event", string(event.Type),
				"photo_id", event.PhotoID,
				"panic", r,
			)
		}
	}()
	h(ctx, event)
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function.
func (b *Bus) Subscribe(t domain.EventType, h domain.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.byType[t] == nil {
		b.byType[t] = make(map[uint64]domain.EventHandler)
	}
	b.nextID++
	id := b.nextID
	b.byType[t][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.byType[t], id)
	}
}

// SubscribeAll registers a handler for every event and returns its
// unsubscribe function.
func (b *Bus) SubscribeAll(h domain.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.every[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.every, id)
	}
}

// Close stops accepting publishes and waits for in-flight deliveries to
// finish. Idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.inFlight.Wait()
}
