package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// OrderDTO is the client view of an order. Amounts are two-decimal strings.
type OrderDTO struct {
	ID                uuid.UUID             `json:"id"`
	Status            enums.OrderStatus     `json:"status"`
	UserID            *uuid.UUID            `json:"user_id,omitempty"`
	GuestEmail        *string               `json:"guest_email,omitempty"`
	StoreID           *uuid.UUID            `json:"store_id,omitempty"`
	ShippingAddress   types.AddressSnapshot `json:"shipping_address"`
	BillingAddress    types.AddressSnapshot `json:"billing_address"`
	Subtotal          string                `json:"subtotal"`
	Tax               string                `json:"tax"`
	Shipping          string                `json:"shipping"`
	Total             string                `json:"total"`
	Currency          string                `json:"currency"`
	CheckoutSessionID *string               `json:"checkout_session_id,omitempty"`
	CancelReason      *string               `json:"cancel_reason,omitempty"`
	Items             []OrderItemDTO        `json:"items"`
	PaidAt            *time.Time            `json:"paid_at,omitempty"`
	ShippedAt         *time.Time            `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time            `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time            `json:"cancelled_at,omitempty"`
	RefundedAt        *time.Time            `json:"refunded_at,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
}

type OrderItemDTO struct {
	ID                 uuid.UUID             `json:"id"`
	ProductID          uuid.UUID             `json:"product_id"`
	StoreID            uuid.UUID             `json:"store_id"`
	Title              string                `json:"title"`
	Quantity           int                   `json:"quantity"`
	UnitPrice          string                `json:"unit_price"`
	ItemTotal          string                `json:"item_total"`
	ShippingOptionName *string               `json:"shipping_option_name,omitempty"`
	ShippingCost       string                `json:"shipping_cost"`
	Status             enums.OrderItemStatus `json:"status"`
}

// NewOrderDTO maps an order row, items included, to its client view.
func NewOrderDTO(o *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                o.ID,
		Status:            o.Status,
		UserID:            o.UserID,
		GuestEmail:        o.GuestEmail,
		StoreID:           o.StoreID,
		ShippingAddress:   o.ShippingAddress,
		BillingAddress:    o.BillingAddress,
		Subtotal:          o.SubtotalAmount.StringFixed(2),
		Tax:               o.TaxAmount.StringFixed(2),
		Shipping:          o.ShippingAmount.StringFixed(2),
		Total:             o.TotalAmount.StringFixed(2),
		Currency:          o.Currency,
		CheckoutSessionID: o.CheckoutSessionID,
		CancelReason:      o.CancelReason,
		Items:             make([]OrderItemDTO, 0, len(o.Items)),
		PaidAt:            o.PaidAt,
		ShippedAt:         o.ShippedAt,
		DeliveredAt:       o.DeliveredAt,
		CancelledAt:       o.CancelledAt,
		RefundedAt:        o.RefundedAt,
		CreatedAt:         o.CreatedAt,
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:                 item.ID,
			ProductID:          item.ProductID,
			StoreID:            item.StoreID,
			Title:              item.ProductTitle,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice.StringFixed(2),
			ItemTotal:          item.ItemTotal.StringFixed(2),
			ShippingOptionName: item.ShippingOptionName,
			ShippingCost:       item.ShippingCost.StringFixed(2),
			Status:             item.Status,
		})
	}
	return dto
}
