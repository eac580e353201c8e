// Package stripewebhook applies Stripe payment events to orders exactly once.
package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	pkgstripe "github.com/angelmondragon/bazaar-backend/pkg/stripe"
)

const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type lifecycle interface {
	Apply(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, trigger orders.Trigger, opts orders.TransitionOptions) (*orders.TransitionResult, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type eventRecorder interface {
	ObserveWebhookEvent(eventType, outcome string)
}

type ServiceParams struct {
	Repo              Repository
	Orders            orders.Repository
	Lifecycle         lifecycle
	Outbox            outboxPublisher
	TransactionRunner txRunner
	Metrics           eventRecorder
	Logger            *logger.Logger
}

// Service reconciles gateway events against orders.
type Service struct {
	repo      Repository
	orders    orders.Repository
	lifecycle lifecycle
	outbox    outboxPublisher
	txRunner  txRunner
	metrics   eventRecorder
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook repo required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Lifecycle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order lifecycle required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		repo:      params.Repo,
		orders:    params.Orders,
		lifecycle: params.Lifecycle,
		outbox:    params.Outbox,
		txRunner:  params.TransactionRunner,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// HandleEvent records the event id and applies its effect in one transaction.
// A returned error rolls back the record so the gateway redelivers.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil || event.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": eventType})
	}

	outcome := outcomeProcessed
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record := &models.ProcessedWebhookEvent{EventID: event.ID, EventType: eventType}
		claimed, err := repo.Claim(ctx, record)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
		}
		if !claimed {
			outcome = outcomeDuplicate
			return nil
		}

		orderID, handled, err := s.dispatch(ctx, tx, event)
		if err != nil {
			return err
		}
		if !handled {
			outcome = outcomeIgnored
		}
		if orderID != nil {
			if err := repo.AttachOrder(ctx, record.ID, *orderID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link webhook event to order")
			}
		}
		return nil
	})
	if err != nil {
		outcome = outcomeFailed
	}
	if s.metrics != nil {
		s.metrics.ObserveWebhookEvent(eventType, outcome)
	}
	if s.logg != nil {
		if err != nil {
			s.logg.Error(ctx, "stripe event failed", err)
		} else {
			s.logg.Info(s.logg.WithField(ctx, "outcome", outcome), "stripe event reconciled")
		}
	}
	return err
}

// dispatch returns the matched order, if any, and whether the event had an effect.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event *stripe.Event) (*uuid.UUID, bool, error) {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode payment intent")
		}
		return s.paymentSucceeded(ctx, tx, &intent, outbox.GatewayActor(event.ID))
	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode payment intent")
		}
		return s.paymentFailed(ctx, tx, &intent, outbox.GatewayActor(event.ID))
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode charge")
		}
		return s.chargeRefunded(ctx, tx, &charge, outbox.GatewayActor(event.ID))
	case stripe.EventTypeChargeDisputeCreated:
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode dispute")
		}
		return s.disputeCreated(ctx, tx, &dispute)
	default:
		return nil, false, nil
	}
}

func (s *Service) paymentSucceeded(ctx context.Context, tx *gorm.DB, intent *stripe.PaymentIntent, actor *outbox.ActorRef) (*uuid.UUID, bool, error) {
	meta, ok := s.metadata(ctx, intent)
	if !ok {
		return nil, false, nil
	}
	intentID := intent.ID
	opts := orders.TransitionOptions{
		Reason:                 "payment succeeded",
		Actor:                  actor,
		PaymentIntentID:        &intentID,
		ChargeID:               latestChargeID(intent),
		PlatformFeeCents:       meta.PlatformFeeCents,
		ListingFeeAppliedCents: meta.ListingFeeAppliedCents,
		IgnoreIllegal:          true,
	}
	result, err := s.lifecycle.Apply(ctx, tx, meta.OrderID, orders.TriggerPaymentSucceeded, opts)
	if err != nil {
		return nil, false, err
	}
	return &meta.OrderID, result.Changed, nil
}

func (s *Service) paymentFailed(ctx context.Context, tx *gorm.DB, intent *stripe.PaymentIntent, actor *outbox.ActorRef) (*uuid.UUID, bool, error) {
	meta, ok := s.metadata(ctx, intent)
	if !ok {
		return nil, false, nil
	}
	intentID := intent.ID
	result, err := s.lifecycle.Apply(ctx, tx, meta.OrderID, orders.TriggerPaymentFailed, orders.TransitionOptions{
		Reason:          "payment failed",
		Actor:           actor,
		PaymentIntentID: &intentID,
		IgnoreIllegal:   true,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &meta.OrderID, result.Changed, nil
}

func (s *Service) chargeRefunded(ctx context.Context, tx *gorm.DB, charge *stripe.Charge, actor *outbox.ActorRef) (*uuid.UUID, bool, error) {
	order, err := s.orderForCharge(ctx, tx, charge.ID, charge.PaymentIntent)
	if err != nil || order == nil {
		return nil, false, err
	}
	if !charge.Refunded {
		return &order.ID, false, nil
	}
	chargeID := charge.ID
	result, err := s.lifecycle.Apply(ctx, tx, order.ID, orders.TriggerRefund, orders.TransitionOptions{
		Reason:        "charge refunded",
		Actor:         actor,
		ChargeID:      &chargeID,
		IgnoreIllegal: true,
	})
	if err != nil {
		return nil, false, err
	}
	return &order.ID, result.Changed, nil
}

// disputeCreated links the dispute to its order for audit. Status is left alone.
func (s *Service) disputeCreated(ctx context.Context, tx *gorm.DB, dispute *stripe.Dispute) (*uuid.UUID, bool, error) {
	chargeID := ""
	if dispute.Charge != nil {
		chargeID = dispute.Charge.ID
	}
	order, err := s.orderForCharge(ctx, tx, chargeID, dispute.PaymentIntent)
	if err != nil || order == nil {
		return nil, false, err
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDisputeOpened,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.DisputeOpenedEvent{
			OrderID:     order.ID,
			DisputeID:   dispute.ID,
			ChargeID:    chargeID,
			AmountCents: dispute.Amount,
			Reason:      string(dispute.Reason),
		},
	})
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit dispute opened")
	}
	if s.logg != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), fmt.Sprintf("dispute %s opened", dispute.ID))
	}
	return &order.ID, true, nil
}

// metadata reads the order reference off a payment intent. Intents without one
// belong to no order and are ignored, as is unreadable metadata.
func (s *Service) metadata(ctx context.Context, intent *stripe.PaymentIntent) (pkgstripe.ParsedMetadata, bool) {
	meta, ok, err := pkgstripe.PaymentMetadataFromMap(intent.Metadata)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, fmt.Sprintf("payment intent %s: %v", intent.ID, err))
		}
		return meta, false
	}
	return meta, ok
}

// orderForCharge matches by charge id, then by payment intent. A nil order means no match.
func (s *Service) orderForCharge(ctx context.Context, tx *gorm.DB, chargeID string, intent *stripe.PaymentIntent) (*models.Order, error) {
	repo := s.orders.WithTx(tx)
	if chargeID != "" {
		order, err := repo.FindOrderByChargeID(ctx, chargeID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by charge")
		}
	}
	if intent != nil && intent.ID != "" {
		order, err := repo.FindOrderByPaymentIntentID(ctx, intent.ID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by payment intent")
		}
	}
	return nil, nil
}

func latestChargeID(intent *stripe.PaymentIntent) *string {
	if intent.LatestCharge == nil || intent.LatestCharge.ID == "" {
		return nil
	}
	id := intent.LatestCharge.ID
	return &id
}
