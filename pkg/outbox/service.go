package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

// CurrentVersion is the envelope version written by Emit when the event leaves it unset.
const CurrentVersion = 1

var errTxRequired = errors.New("transaction required")

// DomainEvent is a marketplace state change queued alongside the write that caused it.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit queues the event in the caller's transaction so it commits or rolls
// back with the order, ledger or store write that produced it.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := event.validate(); err != nil {
		return err
	}

	envelope, err := event.envelope()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       raw,
	}); err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// EmitIfNotExists queues the event unless one of the same type already exists
// for the aggregate. Seller onboarding uses it so a repeated account callback
// announces the connection once.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.Emit(ctx, tx, event)
}

func (e DomainEvent) validate() error {
	if !e.EventType.IsValid() {
		return fmt.Errorf("unknown outbox event type %q", e.EventType)
	}
	if !e.AggregateType.IsValid() {
		return fmt.Errorf("unknown outbox aggregate type %q", e.AggregateType)
	}
	if e.AggregateID == uuid.Nil {
		return errors.New("aggregate id required")
	}

	subjected, ok := e.Data.(payloads.Subjected)
	if !ok {
		return nil
	}
	// the payload must describe the aggregate the row is filed under
	subjects := subjected.Subjects()
	switch e.AggregateType {
	case enums.AggregateOrder:
		if subjects.OrderID != uuid.Nil && subjects.OrderID != e.AggregateID {
			return fmt.Errorf("%s payload names order %s but aggregate is %s", e.EventType, subjects.OrderID, e.AggregateID)
		}
	case enums.AggregateStore:
		if len(subjects.StoreIDs) > 0 && !slices.Contains(subjects.StoreIDs, e.AggregateID) {
			return fmt.Errorf("%s payload does not name store %s", e.EventType, e.AggregateID)
		}
	}
	return nil
}

func (e DomainEvent) envelope() (PayloadEnvelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s payload: %w", e.EventType, err)
	}
	occurredAt := e.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	version := e.Version
	if version == 0 {
		version = CurrentVersion
	}
	return PayloadEnvelope{
		Version:       version,
		EventID:       uuid.NewString(),
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		OccurredAt:    occurredAt.UTC(),
		Actor:         e.Actor,
		Data:          data,
	}, nil
}
