package product

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// ProductDTO represents the seller product payload returned to clients.
type ProductDTO struct {
	ID               uuid.UUID           `json:"id"`
	StoreID          uuid.UUID           `json:"store_id"`
	Title            string              `json:"title"`
	Price            string              `json:"price"`
	StockQuantity    int                 `json:"stock_quantity"`
	RequiresShipping bool                `json:"requires_shipping"`
	ShippingOptions  []ShippingOptionDTO `json:"shipping_options,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type ShippingOptionDTO struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Cost string    `json:"cost"`
}

// ListingDTO is a created product plus the fee it accrued.
type ListingDTO struct {
	Product             ProductDTO `json:"product"`
	ListingFeeEntryID   uuid.UUID  `json:"listing_fee_entry_id"`
	ListingFeeCents     int64      `json:"listing_fee_cents"`
	OutstandingFeeCount int64      `json:"outstanding_listing_fees"`
}

// ProductListResult is a cursor page of products.
type ProductListResult struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// FromModel maps a product row to its DTO.
func FromModel(p *models.Product) ProductDTO {
	dto := ProductDTO{
		ID:               p.ID,
		StoreID:          p.StoreID,
		Title:            p.Title,
		Price:            p.Price.StringFixed(2),
		StockQuantity:    p.StockQuantity,
		RequiresShipping: p.RequiresShipping,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	for _, opt := range p.ShippingOptions {
		dto.ShippingOptions = append(dto.ShippingOptions, ShippingOptionDTO{
			ID:   opt.ID,
			Name: opt.Name,
			Cost: opt.Cost.StringFixed(2),
		})
	}
	return dto
}
