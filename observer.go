// Observer support for load-cycle, cache and middleware events.
// Events are CloudEvents v1.0.
package modserver

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of events emitted by a Runtime.
type Observer interface {
	// OnEvent is called once per event the observer is subscribed to.
	// Observers should return quickly; delivery happens on its own goroutine.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by the runtime, in reverse domain notation.
const (
	// Load cycle events
	EventTypeConfigLoaded = "com.modserver.config.loaded"
	EventTypeConfigFailed = "com.modserver.config.failed"

	// Module and resource events
	EventTypeModuleInitialized   = "com.modserver.module.initialized"
	EventTypeModuleFailed        = "com.modserver.module.failed"
	EventTypeResourceInitialized = "com.modserver.resource.initialized"

	// Cache events
	EventTypeCacheInvalidated = "com.modserver.cache.invalidated"

	// Middleware events
	EventTypeMiddlewareTimeout = "com.modserver.middleware.timeout"
)

// eventSource is the CloudEvents source attribute of every emitted event.
const eventSource = "modserver"

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer that calls handler for every event.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements the Observer interface by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements the Observer interface by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// EventBus fans CloudEvents out to registered observers.
type EventBus struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	logger    Logger
}

// NewEventBus creates an EventBus that logs delivery failures to logger.
func NewEventBus(logger Logger) *EventBus {
	if logger == nil {
		logger = NopLogger()
	}
	return &EventBus{
		observers: make(map[string]*observerRegistration),
		logger:    logger,
	}
}

// RegisterObserver adds an observer. If eventTypes is empty the observer
// receives all events.
func (b *EventBus) RegisterObserver(observer Observer, eventTypes ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}

	b.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}

	b.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. It is idempotent.
func (b *EventBus) UnregisterObserver(observer Observer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.observers[observer.ObserverID()]; exists {
		delete(b.observers, observer.ObserverID())
		b.logger.Debug("Observer unregistered", "observerID", observer.ObserverID())
	}
	return nil
}

// NotifyObservers validates event and delivers it to every interested
// observer on its own goroutine. Observer errors and panics are logged.
func (b *EventBus) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		b.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, registration := range b.observers {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}

		go func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Observer panicked", "observerID", registration.observer.ObserverID(), "event", event.Type(), "panic", r)
				}
			}()

			if err := registration.observer.OnEvent(ctx, event); err != nil {
				b.logger.Error("Observer error", "observerID", registration.observer.ObserverID(), "event", event.Type(), "error", err)
			}
		}()
	}
	return nil
}

// GetObservers returns the registered observers.
func (b *EventBus) GetObservers() []ObserverInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(b.observers))
	for _, registration := range b.observers {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	return info
}

// emit is a nil-safe helper used by the load, cache and execution paths.
// Delivery is detached from ctx cancellation so late observers still
// receive events of a cancelled request.
func (b *EventBus) emit(ctx context.Context, eventType string, data map[string]any) {
	if b == nil {
		return
	}
	var payload any
	if data != nil {
		payload = data
	}
	event := NewCloudEvent(eventType, eventSource, payload, nil)
	if err := b.NotifyObservers(context.WithoutCancel(ctx), event); err != nil {
		b.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}
