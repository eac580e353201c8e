package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// ActorKind says what caused a marketplace event.
type ActorKind string

const (
	ActorUser    ActorKind = "user"
	ActorGateway ActorKind = "gateway"
	ActorSystem  ActorKind = "system"
)

// ActorRef identifies who produced the event. Buyers, sellers and admins carry
// their user id; payment events carry the provider's event id; scheduled jobs
// carry their job name.
type ActorRef struct {
	Kind           ActorKind      `json:"kind"`
	UserID         uuid.UUID      `json:"userId,omitzero"`
	StoreID        *uuid.UUID     `json:"storeId,omitempty"`
	Role           enums.UserRole `json:"role,omitempty"`
	GatewayEventID string         `json:"gatewayEventId,omitempty"`
	Job            string         `json:"job,omitempty"`
}

// UserActor returns nil for an anonymous caller.
func UserActor(userID uuid.UUID, role enums.UserRole) *ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &ActorRef{Kind: ActorUser, UserID: userID, Role: role}
}

func SellerActor(userID, storeID uuid.UUID) *ActorRef {
	return &ActorRef{Kind: ActorUser, UserID: userID, StoreID: &storeID, Role: enums.UserRoleSeller}
}

func GatewayActor(eventID string) *ActorRef {
	return &ActorRef{Kind: ActorGateway, GatewayEventID: eventID}
}

func SystemActor(job string) *ActorRef {
	return &ActorRef{Kind: ActorSystem, Job: job}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events and
// published as the message body. It repeats the row's routing fields so a
// subscriber never needs the message attributes to interpret it.
type PayloadEnvelope struct {
	Version       int                       `json:"version"`
	EventID       string                    `json:"eventId"`
	EventType     enums.OutboxEventType     `json:"eventType"`
	AggregateType enums.OutboxAggregateType `json:"aggregateType"`
	AggregateID   uuid.UUID                 `json:"aggregateId"`
	OccurredAt    time.Time                 `json:"occurredAt"`
	Actor         *ActorRef                 `json:"actor,omitempty"`
	Data          json.RawMessage           `json:"data"`
}
