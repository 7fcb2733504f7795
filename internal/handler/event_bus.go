// internal/handler/event_bus.go
package handler

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"telemetry-bridge/internal/display"
	"telemetry-bridge/internal/model"
	"telemetry-bridge/internal/permission"
	"telemetry-bridge/internal/telemetry"
)

// Event types published on the bus
const (
	EventReading             = "reading"
	EventDisplayText         = "display_text"
	EventStateChanged        = "state_changed"
	EventFrameRejected       = "frame_rejected"
	EventPermissionRequested = "permission_requested"
	EventForwardCompleted    = "forward_completed"
)

const allEvents = "*"

// EventBus manages event distribution
type EventBus struct {
	subscribers map[string][]chan Event
	events      chan Event
	mutex       sync.RWMutex
	logger      *zap.Logger
	done        chan struct{}
	closeOnce   sync.Once
}

// Event represents a system event
type Event struct {
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan Event),
		events:      make(chan Event, 1000),
		logger:      logger.With(zap.String("component", "event-bus")),
		done:        make(chan struct{}),
	}
}

// Start distributes events until Close is called
func (eb *EventBus) Start() {
	for {
		select {
		case event := <-eb.events:
			eb.distributeEvent(event)
		case <-eb.done:
			return
		}
	}
}

// Close stops distribution
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() { close(eb.done) })
}

// Publish publishes an event without blocking
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", event.Type),
		)
	}
}

// Subscribe subscribes to the given event types, or to every event when
// none are given
func (eb *EventBus) Subscribe(eventTypes ...string) <-chan Event {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if len(eventTypes) == 0 {
		eventTypes = []string{allEvents}
	}
	subscriber := make(chan Event, 100)
	for _, eventType := range eventTypes {
		eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	}
	return subscriber
}

// Unsubscribe removes a subscription returned by Subscribe
func (eb *EventBus) Unsubscribe(subscription <-chan Event) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	for eventType, subscribers := range eb.subscribers {
		kept := subscribers[:0]
		for _, subscriber := range subscribers {
			if (<-chan Event)(subscriber) != subscription {
				kept = append(kept, subscriber)
			}
		}
		if len(kept) == 0 {
			delete(eb.subscribers, eventType)
		} else {
			eb.subscribers[eventType] = kept
		}
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event Event) {
	eb.mutex.RLock()
	subscribers := append([]chan Event(nil), eb.subscribers[event.Type]...)
	subscribers = append(subscribers, eb.subscribers[allEvents]...)
	eb.mutex.RUnlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

var _ display.Display = (*EventBus)(nil)

// ShowReading publishes a decoded reading
func (eb *EventBus) ShowReading(reading model.SensorReading) {
	temperature, humidity := display.Lines(reading)
	eb.Publish(Event{
		Type:   EventReading,
		Source: "display",
		Data: map[string]interface{}{
			"temperature":      reading.Temperature,
			"humidity":         reading.Humidity,
			"temperature_text": temperature,
			"humidity_text":    humidity,
		},
	})
}

// ShowText publishes free display text
func (eb *EventBus) ShowText(text string) {
	eb.Publish(Event{
		Type:   EventDisplayText,
		Source: "display",
		Data:   map[string]interface{}{"text": text},
	})
}

// StateChanged publishes a connection state transition
func (eb *EventBus) StateChanged(change model.StateChange) {
	data := map[string]interface{}{
		"id":     change.ID.String(),
		"from":   change.From.String(),
		"to":     change.To.String(),
		"reason": change.Reason,
	}
	if change.Device != nil {
		data["device"] = *change.Device
	}
	eb.Publish(Event{
		Type:      EventStateChanged,
		Source:    "supervisor",
		Data:      data,
		Timestamp: change.At,
	})
}

// FrameRejected publishes a frame that failed to decode
func (eb *EventBus) FrameRejected(device model.DeviceIdentity, frame model.RawFrame, err error) {
	eb.Publish(Event{
		Type:   EventFrameRejected,
		Source: "supervisor",
		Data: map[string]interface{}{
			"device": device.Handle,
			"seq":    frame.Seq,
			"frame":  string(frame.Data),
			"error":  err.Error(),
		},
	})
}

// PermissionRequested publishes a prompt waiting for an answer
func (eb *EventBus) PermissionRequested(request permission.PendingRequest) {
	eb.Publish(Event{
		Type:   EventPermissionRequested,
		Source: "permission",
		Data: map[string]interface{}{
			"device":       request.Device,
			"requested_at": request.RequestedAt,
		},
	})
}

// ForwardCompleted publishes the outcome of a collector submission
func (eb *EventBus) ForwardCompleted(result telemetry.Completion) {
	data := map[string]interface{}{
		"seq":         result.Seq,
		"target":      result.Target,
		"success":     result.OK(),
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.StatusCode != 0 {
		data["status_code"] = result.StatusCode
	}
	if result.Err != nil {
		data["error"] = result.Err.Error()
	}
	eb.Publish(Event{
		Type:   EventForwardCompleted,
		Source: "forwarder",
		Data:   data,
	})
}
