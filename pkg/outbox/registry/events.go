// Package registry decodes outbox rows into typed marketplace events and
// decides where and how each one is published.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

// EventDescriptor binds an event type to its aggregate, topic and payload type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (payloads.Subjected, error)
}

// ResolvedEvent is a decoded row ready to hand to Pub/Sub.
type ResolvedEvent struct {
	Descriptor  EventDescriptor
	Envelope    outbox.PayloadEnvelope
	Payload     payloads.Subjected
	Attributes  map[string]string
	OrderingKey string
}

// EventRegistry maps each marketplace event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
	ordered bool
}

// NonRetryableError marks a row the publisher must park instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

func typed[T any, PT interface {
	*T
	payloads.Subjected
}](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		decode: func(data json.RawMessage) (payloads.Subjected, error) {
			payload := PT(new(T))
			if err := json.Unmarshal(data, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// Order lifecycle events go to the domain topic; store-scoped events go to
// the seller topic when one is configured.
func descriptors() []EventDescriptor {
	return []EventDescriptor{
		typed[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder),
		typed[payloads.OrderPaidEvent](enums.EventOrderPaid, enums.AggregateOrder),
		typed[payloads.OrderStatusChangedEvent](enums.EventOrderCancelled, enums.AggregateOrder),
		typed[payloads.OrderStatusChangedEvent](enums.EventOrderShipped, enums.AggregateOrder),
		typed[payloads.OrderStatusChangedEvent](enums.EventOrderDelivered, enums.AggregateOrder),
		typed[payloads.OrderStatusChangedEvent](enums.EventOrderRefunded, enums.AggregateOrder),
		typed[payloads.DisputeOpenedEvent](enums.EventDisputeOpened, enums.AggregateOrder),
		typed[payloads.SellerConnectedEvent](enums.EventSellerConnected, enums.AggregateStore),
		typed[payloads.ListingFeeAccruedEvent](enums.EventListingFeeAccrued, enums.AggregateStore),
	}
}

// NewEventRegistry builds the registry for the configured topics.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if strings.TrimSpace(cfg.DomainTopic) == "" {
		return nil, errors.New("domain topic is required")
	}

	reg := &EventRegistry{
		entries: make(map[enums.OutboxEventType]EventDescriptor),
		ordered: cfg.OrderedDelivery,
	}
	for _, desc := range descriptors() {
		desc.Topic = cfg.DomainTopic
		if desc.AggregateType == enums.AggregateStore {
			desc.Topic = cfg.TopicForStoreEvents()
		}
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Topics lists every topic some descriptor publishes to.
func (r *EventRegistry) Topics() []string {
	topics := []string{}
	for _, desc := range r.entries {
		if !slices.Contains(topics, desc.Topic) {
			topics = append(topics, desc.Topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: a row that cannot be decoded now never will be.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, nonRetryable("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	if envelope.Version < 1 || envelope.Version > outbox.CurrentVersion {
		return nil, nonRetryable("unsupported envelope version %d", envelope.Version)
	}
	if envelope.EventType != "" && envelope.EventType != event.EventType {
		return nil, nonRetryable("envelope says %s but row says %s", envelope.EventType, event.EventType)
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", event.EventType)
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}

	resolved := &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
		Attributes: attributes(event, envelope, payload.Subjects()),
	}
	if r.ordered {
		resolved.OrderingKey = string(event.AggregateType) + ":" + event.AggregateID.String()
	}
	return resolved, nil
}

func attributes(event models.OutboxEvent, envelope outbox.PayloadEnvelope, subjects payloads.Subjects) map[string]string {
	attrs := map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"schema_version": strconv.Itoa(envelope.Version),
	}
	if !envelope.OccurredAt.IsZero() {
		attrs["occurred_at"] = envelope.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	if envelope.Actor != nil {
		attrs["actor_kind"] = string(envelope.Actor.Kind)
	}
	if subjects.OrderID != uuid.Nil {
		attrs["order_id"] = subjects.OrderID.String()
	}
	if subjects.UserID != uuid.Nil {
		attrs["user_id"] = subjects.UserID.String()
	}
	if len(subjects.StoreIDs) > 0 {
		ids := make([]string, 0, len(subjects.StoreIDs))
		for _, id := range subjects.StoreIDs {
			ids = append(ids, id.String())
		}
		slices.Sort(ids)
		attrs["store_ids"] = strings.Join(slices.Compact(ids), ",")
	}
	return attrs
}
