package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

var (
	// ErrUnknownEventType is returned for an event type nobody registered
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrRouteMismatch is returned when an event or outbox row carries a
	// routing key other than the one its type was registered with
	ErrRouteMismatch = errors.New("routing key does not match event type")
)

// eventRoute is what the codec knows about one outbound event type: the
// concrete struct to decode into and the topic it is published on.
type eventRoute struct {
	goType     reflect.Type
	routingKey string
}

// EventSerializer encodes payment and reconciliation events for the outbox
// and decodes stored payloads back into their concrete types. Only
// registered event types may enter or leave the outbox, each bound to a
// single routing key.
type EventSerializer struct {
	mu     sync.RWMutex
	routes map[string]eventRoute
}

// NewEventSerializer creates a codec with no registered events
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		routes: make(map[string]eventRoute),
	}
}

// Register binds eventType to the concrete type and routing key of instance.
// Registering the same pair again is a no-op. Rebinding an event type to a
// different struct or routing key panics; it is a wiring bug.
func (s *EventSerializer) Register(eventType string, instance shared.RoutableEvent) {
	t := reflect.TypeOf(instance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	route := eventRoute{goType: t, routingKey: instance.RoutingKey()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.routes[eventType]; ok && prev != route {
		panic(fmt.Sprintf("event %s already registered as %s on %q", eventType, prev.goType, prev.routingKey))
	}
	s.routes[eventType] = route
}

// Serialize encodes event for the outbox. The event type must be registered
// and its routing key must be the registered one.
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	routingKey := ""
	if routable, ok := event.(shared.RoutableEvent); ok {
		routingKey = routable.RoutingKey()
	}
	if err := s.CheckRoute(event.EventType(), routingKey); err != nil {
		return nil, err
	}
	return json.Marshal(event)
}

// Deserialize decodes an outbox payload stored under eventType
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	route, ok := s.route(eventType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	eventPtr := reflect.New(route.goType).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("%s does not implement DomainEvent", route.goType)
	}
	if got := event.EventType(); got != "" && got != eventType {
		return nil, fmt.Errorf("payload of %s decodes as %s", eventType, got)
	}
	return event, nil
}

// CheckRoute reports whether an outbox row of eventType may be published on
// routingKey.
func (s *EventSerializer) CheckRoute(eventType, routingKey string) error {
	route, ok := s.route(eventType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	if route.routingKey != routingKey {
		return fmt.Errorf("%w: %s is published on %q, got %q", ErrRouteMismatch, eventType, route.routingKey, routingKey)
	}
	return nil
}

// RoutingKeyOf returns the routing key eventType was registered with
func (s *EventSerializer) RoutingKeyOf(eventType string) (string, bool) {
	route, ok := s.route(eventType)
	return route.routingKey, ok
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	_, ok := s.route(eventType)
	return ok
}

// RegisteredTypes returns all registered event types, sorted
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.routes))
	for t := range s.routes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// RoutingKeys returns the distinct routing keys of all registered events,
// sorted. Brokers subscribe consumers to these.
func (s *EventSerializer) RoutingKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.routes))
	keys := make([]string, 0, len(s.routes))
	for _, r := range s.routes {
		if _, dup := seen[r.routingKey]; dup {
			continue
		}
		seen[r.routingKey] = struct{}{}
		keys = append(keys, r.routingKey)
	}
	sort.Strings(keys)
	return keys
}

func (s *EventSerializer) route(eventType string) (eventRoute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[eventType]
	return r, ok
}
