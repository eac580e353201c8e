package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

// Trigger is what asks an order to change status.
type Trigger string

const (
	TriggerPaymentSucceeded Trigger = "payment_succeeded"
	TriggerConfirm          Trigger = "confirm"
	TriggerPaymentFailed    Trigger = "payment_failed"
	TriggerCancel           Trigger = "cancel"
	TriggerShip             Trigger = "ship"
	TriggerDeliver          Trigger = "deliver"
	TriggerRefund           Trigger = "refund"
	TriggerExpire           Trigger = "expire"
)

type transitionKey struct {
	from    enums.OrderStatus
	trigger Trigger
}

var transitions = map[transitionKey]enums.OrderStatus{
	{enums.OrderStatusPending, TriggerPaymentSucceeded}: enums.OrderStatusProcessing,
	{enums.OrderStatusPending, TriggerConfirm}:          enums.OrderStatusProcessing,
	{enums.OrderStatusPending, TriggerCancel}:           enums.OrderStatusCancelled,
	{enums.OrderStatusPending, TriggerPaymentFailed}:    enums.OrderStatusCancelled,
	{enums.OrderStatusPending, TriggerExpire}:           enums.OrderStatusCancelled,
	{enums.OrderStatusProcessing, TriggerCancel}:        enums.OrderStatusCancelled,
	{enums.OrderStatusProcessing, TriggerShip}:          enums.OrderStatusShipped,
	{enums.OrderStatusProcessing, TriggerDeliver}:       enums.OrderStatusDelivered,
	{enums.OrderStatusShipped, TriggerDeliver}:          enums.OrderStatusDelivered,
	{enums.OrderStatusPending, TriggerRefund}:           enums.OrderStatusRefunded,
	{enums.OrderStatusProcessing, TriggerRefund}:        enums.OrderStatusRefunded,
	{enums.OrderStatusShipped, TriggerRefund}:           enums.OrderStatusRefunded,
	{enums.OrderStatusDelivered, TriggerRefund}:         enums.OrderStatusRefunded,
}

// NextStatus returns the status trigger moves from into, or a state conflict error.
func NextStatus(from enums.OrderStatus, trigger Trigger) (enums.OrderStatus, error) {
	to, ok := transitions[transitionKey{from: from, trigger: trigger}]
	if !ok {
		return "", pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot %s an order that is %s", trigger, from).
			WithDetails(map[string]any{"status": from, "trigger": trigger})
	}
	return to, nil
}

// TransitionOptions carries trigger context. Fee fields come from payment metadata
// and win over the values stamped on the order at checkout.
type TransitionOptions struct {
	Reason                 string
	Actor                  *outbox.ActorRef
	PaymentIntentID        *string
	ChargeID               *string
	PlatformFeeCents       *int64
	ListingFeeAppliedCents *int64
	// IgnoreIllegal turns a disallowed transition into a no-op; gateway references are still recorded.
	IgnoreIllegal bool
}

// TransitionResult reports what Apply did.
type TransitionResult struct {
	Order              *models.Order
	From               enums.OrderStatus
	To                 enums.OrderStatus
	Changed            bool
	ListingFeesSettled int
}

// LifecycleParams wires a Lifecycle.
type LifecycleParams struct {
	Repo               Repository
	Ledger             ledgerPoster
	Outbox             outboxPublisher
	Logger             *logger.Logger
	PlatformFeePercent decimal.Decimal
	Clock              func() time.Time
}

// Lifecycle is the only writer of order status.
type Lifecycle struct {
	repo               Repository
	ledger             ledgerPoster
	outbox             outboxPublisher
	logg               *logger.Logger
	platformFeePercent decimal.Decimal
	now                func() time.Time
}

func NewLifecycle(params LifecycleParams) (*Lifecycle, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Lifecycle{
		repo:               params.Repo,
		ledger:             params.Ledger,
		outbox:             params.Outbox,
		logg:               params.Logger,
		platformFeePercent: params.PlatformFeePercent,
		now:                clock,
	}, nil
}

// Apply locks the order, validates the transition and runs its side effects inside tx.
func (l *Lifecycle) Apply(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, trigger Trigger, opts TransitionOptions) (*TransitionResult, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	repo := l.repo.WithTx(tx)

	order, err := repo.LockOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	from := order.Status

	to, err := NextStatus(from, trigger)
	if err != nil {
		if !opts.IgnoreIllegal {
			return nil, err
		}
		if refs := paymentRefUpdates(order, opts); len(refs) > 0 {
			if err := repo.UpdateOrder(ctx, order.ID, refs); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment references")
			}
		}
		return &TransitionResult{Order: order, From: from, To: from}, nil
	}

	now := l.now().UTC()
	updates := paymentRefUpdates(order, opts)
	updates["status"] = to
	result := &TransitionResult{From: from, To: to, Changed: true}

	var eventType enums.OutboxEventType
	var eventData any
	switch to {
	case enums.OrderStatusProcessing:
		updates["paid_at"] = now
		settled, paid, err := l.settle(ctx, tx, order, opts, updates, now)
		if err != nil {
			return nil, err
		}
		result.ListingFeesSettled = settled
		eventType, eventData = enums.EventOrderPaid, paid
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = now
		if opts.Reason != "" {
			updates["cancel_reason"] = opts.Reason
		}
		if err := l.restoreStock(ctx, repo, order); err != nil {
			return nil, err
		}
		if from != enums.OrderStatusPending {
			if _, err := l.ledger.ReverseOrder(ctx, tx, order.ID, "cancelled"); err != nil {
				return nil, err
			}
		}
		eventType = enums.EventOrderCancelled
	case enums.OrderStatusShipped:
		updates["shipped_at"] = now
		eventType = enums.EventOrderShipped
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
		eventType = enums.EventOrderDelivered
	case enums.OrderStatusRefunded:
		updates["refunded_at"] = now
		if _, err := l.ledger.ReverseOrder(ctx, tx, order.ID, "refunded"); err != nil {
			return nil, err
		}
		eventType = enums.EventOrderRefunded
	}
	if eventData == nil {
		eventData = payloads.OrderStatusChangedEvent{
			OrderID:    order.ID,
			StoreIDs:   orderStoreIDs(order),
			FromStatus: from,
			ToStatus:   to,
			Reason:     opts.Reason,
			ChangedAt:  now,
		}
	}

	ok, err := repo.TransitionStatus(ctx, order.ID, from, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
	}
	if err := repo.UpdateActiveItemStatuses(ctx, order.ID, enums.ItemStatusFor(to)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order items")
	}

	if err := l.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         opts.Actor,
		Data:          eventData,
		OccurredAt:    now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
	}

	updated, err := repo.FindOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	result.Order = updated

	if l.logg != nil {
		logCtx := l.logg.WithOrderID(ctx, order.ID.String())
		logCtx = l.logg.WithFields(logCtx, map[string]any{
			"from_status": from,
			"to_status":   to,
			"trigger":     trigger,
		})
		l.logg.Info(logCtx, "order status changed")
	}
	return result, nil
}

// settle posts the sale to the seller ledger and pays down outstanding listing fees
// with the amount withheld at checkout.
func (l *Lifecycle) settle(ctx context.Context, tx *gorm.DB, order *models.Order, opts TransitionOptions, updates map[string]any, now time.Time) (int, payloads.OrderPaidEvent, error) {
	platformFee, listingFee := l.fees(order, opts)
	updates["platform_fee_cents"] = platformFee
	updates["listing_fee_applied_cents"] = listingFee

	if _, err := l.ledger.PostSale(ctx, tx, ledger.SaleInput{Order: *order, PlatformFeeCents: platformFee}); err != nil {
		return 0, payloads.OrderPaidEvent{}, err
	}

	settled := 0
	stores := orderStoreIDs(order)
	if listingFee > 0 && len(stores) == 1 {
		n, err := l.ledger.SettleOldestListingFees(ctx, tx, stores[0], listingFee, order.ID)
		if err != nil {
			return 0, payloads.OrderPaidEvent{}, err
		}
		settled = n
	}

	paymentIntentID := order.PaymentIntentID
	if opts.PaymentIntentID != nil {
		paymentIntentID = opts.PaymentIntentID
	}
	return settled, payloads.OrderPaidEvent{
		OrderID:                order.ID,
		StoreIDs:               stores,
		TotalCents:             money.ToCents(order.TotalAmount),
		PlatformFeeCents:       platformFee,
		ListingFeeAppliedCents: listingFee,
		ListingFeesSettled:     settled,
		PaymentIntentID:        paymentIntentID,
		PaidAt:                 now,
	}, nil
}

// fees resolves the split: payment metadata, then the checkout stamp, then the
// configured percent with no listing fee recovery.
func (l *Lifecycle) fees(order *models.Order, opts TransitionOptions) (int64, int64) {
	var platformFee, listingFee int64
	switch {
	case opts.PlatformFeeCents != nil:
		platformFee = *opts.PlatformFeeCents
	case order.PlatformFeeCents != nil:
		platformFee = *order.PlatformFeeCents
	default:
		var itemCents int64
		for _, item := range order.ActiveItems() {
			itemCents += money.ToCents(item.ItemTotal)
		}
		platformFee = money.PercentOf(itemCents, l.platformFeePercent)
	}
	switch {
	case opts.ListingFeeAppliedCents != nil:
		listingFee = *opts.ListingFeeAppliedCents
	case order.ListingFeeAppliedCents != nil:
		listingFee = *order.ListingFeeAppliedCents
	}
	return max(platformFee, 0), max(listingFee, 0)
}

func (l *Lifecycle) restoreStock(ctx context.Context, repo Repository, order *models.Order) error {
	for _, item := range order.ActiveItems() {
		if err := repo.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
		}
	}
	return nil
}

func paymentRefUpdates(order *models.Order, opts TransitionOptions) map[string]any {
	updates := map[string]any{}
	if opts.PaymentIntentID != nil && *opts.PaymentIntentID != "" && !sameRef(order.PaymentIntentID, *opts.PaymentIntentID) {
		updates["payment_intent_id"] = *opts.PaymentIntentID
	}
	if opts.ChargeID != nil && *opts.ChargeID != "" && !sameRef(order.ChargeID, *opts.ChargeID) {
		updates["charge_id"] = *opts.ChargeID
	}
	return updates
}

func sameRef(current *string, next string) bool {
	return current != nil && *current == next
}

func orderStoreIDs(order *models.Order) []uuid.UUID {
	if order.StoreID != nil {
		return []uuid.UUID{*order.StoreID}
	}
	ids := make([]uuid.UUID, 0, 1)
	for _, item := range order.Items {
		ids = appendUnique(ids, item.StoreID)
	}
	return ids
}
