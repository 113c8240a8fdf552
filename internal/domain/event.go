package domain

import (
	"context"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventPhotoSaved   EventType = "photo.saved"
	EventPhotoDeleted EventType = "photo.deleted"
	EventPhotoMasked  EventType = "photo.masked"
	EventFacesUpdated EventType = "photo.faces.updated"
	EventCacheCleared EventType = "cache.cleared"
	EventCacheEvicted EventType = "cache.evicted"
)

// Event is the envelope published on the event bus. The presentation layer
// subscribes to refresh gallery and detail views after library changes.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	PhotoID   string    `json:"photo_id,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for library change events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
