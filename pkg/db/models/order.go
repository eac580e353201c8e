package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// Order is one buyer purchase. Money columns are frozen at creation; only
// status-driven fields and gateway references change afterwards.
type Order struct {
	ID                       uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID                   *uuid.UUID            `gorm:"column:user_id;type:uuid;index"`
	GuestEmail               *string               `gorm:"column:guest_email"`
	StoreID                  *uuid.UUID            `gorm:"column:store_id;type:uuid;index"`
	Status                   enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'pending'"`
	ShippingAddress          types.AddressSnapshot `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	BillingAddress           types.AddressSnapshot `gorm:"column:billing_address;type:jsonb;serializer:json;not null"`
	SubtotalAmount           decimal.Decimal       `gorm:"column:subtotal_amount;type:numeric(12,2);not null"`
	TaxAmount                decimal.Decimal       `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	ShippingAmount           decimal.Decimal       `gorm:"column:shipping_amount;type:numeric(12,2);not null"`
	TotalAmount              decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency                 string                `gorm:"column:currency;type:text;not null;default:'usd'"`
	CheckoutSessionID        *string               `gorm:"column:checkout_session_id"`
	CheckoutSessionExpiresAt *time.Time            `gorm:"column:checkout_session_expires_at"`
	PaymentIntentID          *string               `gorm:"column:payment_intent_id;index"`
	ChargeID                 *string               `gorm:"column:charge_id;index"`
	PlatformFeeCents         *int64                `gorm:"column:platform_fee_cents"`
	ListingFeeAppliedCents   *int64                `gorm:"column:listing_fee_applied_cents"`
	CancelReason             *string               `gorm:"column:cancel_reason"`
	PaidAt                   *time.Time            `gorm:"column:paid_at"`
	ShippedAt                *time.Time            `gorm:"column:shipped_at"`
	DeliveredAt              *time.Time            `gorm:"column:delivered_at"`
	CancelledAt              *time.Time            `gorm:"column:cancelled_at"`
	RefundedAt               *time.Time            `gorm:"column:refunded_at"`
	Items                    []OrderItem           `gorm:"foreignKey:OrderID"`
	CreatedAt                time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time             `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt                gorm.DeletedAt        `gorm:"column:deleted_at;index"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// BelongsTo reports whether the order was placed by the given registered buyer.
func (o Order) BelongsTo(userID uuid.UUID) bool {
	return o.UserID != nil && *o.UserID == userID
}

// ActiveItems returns the lines that still count towards the order.
func (o Order) ActiveItems() []OrderItem {
	active := make([]OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		if item.Status == enums.OrderItemStatusCancelled {
			continue
		}
		active = append(active, item)
	}
	return active
}

// OrderItem is an immutable snapshot of one cart line. StoreID is copied at creation.
type OrderItem struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID          uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	StoreID            uuid.UUID             `gorm:"column:store_id;type:uuid;not null;index"`
	ProductTitle       string                `gorm:"column:product_title;not null"`
	Quantity           int                   `gorm:"column:quantity;not null"`
	UnitPrice          decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null"`
	ItemTotal          decimal.Decimal       `gorm:"column:item_total;type:numeric(12,2);not null"`
	ShippingOptionName *string               `gorm:"column:shipping_option_name"`
	ShippingCost       decimal.Decimal       `gorm:"column:shipping_cost;type:numeric(12,2);not null;default:0"`
	Status             enums.OrderItemStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
