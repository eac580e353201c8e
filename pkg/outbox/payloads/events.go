package payloads

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderCreatedEvent signals a new pending order built from a cart.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID   `json:"order_id"`
	UserID     *uuid.UUID  `json:"user_id,omitempty"`
	GuestEmail *string     `json:"guest_email,omitempty"`
	StoreIDs   []uuid.UUID `json:"store_ids"`
	TotalCents int64       `json:"total_cents"`
	Currency   string      `json:"currency"`
}

// OrderPaidEvent is emitted once payment settles and the seller ledger is posted.
type OrderPaidEvent struct {
	OrderID                uuid.UUID   `json:"order_id"`
	StoreIDs               []uuid.UUID `json:"store_ids"`
	TotalCents             int64       `json:"total_cents"`
	PlatformFeeCents       int64       `json:"platform_fee_cents"`
	ListingFeeAppliedCents int64       `json:"listing_fee_applied_cents"`
	ListingFeesSettled     int         `json:"listing_fees_settled"`
	PaymentIntentID        *string     `json:"payment_intent_id,omitempty"`
	PaidAt                 time.Time   `json:"paid_at"`
}

// OrderStatusChangedEvent covers cancel, ship, deliver and refund transitions.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	StoreIDs   []uuid.UUID       `json:"store_ids"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	Reason     string            `json:"reason,omitempty"`
	ChangedAt  time.Time         `json:"changed_at"`
}

// DisputeOpenedEvent reports a chargeback opened against an order's charge.
type DisputeOpenedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	DisputeID   string    `json:"dispute_id"`
	ChargeID    string    `json:"charge_id,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Reason      string    `json:"reason,omitempty"`
}

// SellerConnectedEvent is emitted when a seller links a payout account.
type SellerConnectedEvent struct {
	UserID          uuid.UUID `json:"user_id"`
	StripeAccountID string    `json:"stripe_account_id"`
}

// ListingFeeAccruedEvent is emitted for every new listing.
type ListingFeeAccruedEvent struct {
	StoreID     uuid.UUID `json:"store_id"`
	ProductID   uuid.UUID `json:"product_id"`
	EntryID     uuid.UUID `json:"entry_id"`
	AmountCents int64     `json:"amount_cents"`
}

// Subjects names the marketplace records an event is about. The publisher
// copies them into message attributes so a subscriber can filter on a store
// or order without decoding the body.
type Subjects struct {
	OrderID  uuid.UUID
	StoreIDs []uuid.UUID
	UserID   uuid.UUID
}

// Subjected is implemented by every payload the registry knows.
type Subjected interface {
	Subjects() Subjects
}

func (e OrderCreatedEvent) Subjects() Subjects {
	s := Subjects{OrderID: e.OrderID, StoreIDs: e.StoreIDs}
	if e.UserID != nil {
		s.UserID = *e.UserID
	}
	return s
}

func (e OrderPaidEvent) Subjects() Subjects {
	return Subjects{OrderID: e.OrderID, StoreIDs: e.StoreIDs}
}

func (e OrderStatusChangedEvent) Subjects() Subjects {
	return Subjects{OrderID: e.OrderID, StoreIDs: e.StoreIDs}
}

func (e DisputeOpenedEvent) Subjects() Subjects {
	return Subjects{OrderID: e.OrderID}
}

func (e SellerConnectedEvent) Subjects() Subjects {
	return Subjects{UserID: e.UserID}
}

func (e ListingFeeAccruedEvent) Subjects() Subjects {
	return Subjects{StoreIDs: []uuid.UUID{e.StoreID}}
}
